// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package store

import (
	"os"
	"path/filepath"

	"github.com/riverdag/riverdag/internal/row"
)

// CheckpointMeta is checkpoint.json's metadata payload (spec.md §6):
// the completed step index, vars snapshot, and prior step records.
type CheckpointMeta struct {
	PipelineName  string           `json:"pipeline_name"`
	PipelineHash  string           `json:"pipeline_hash"`
	CompletedStep int              `json:"completed_step"`
	Vars          map[string]any   `json:"vars"`
	Results       []StepRecordJSON `json:"results"`
}

// CheckpointStore manages a per-pipeline checkpoint directory holding
// checkpoint.json and data.json (spec.md §6).
type CheckpointStore struct {
	dir string
}

// OpenCheckpointStore binds a CheckpointStore to dir. The directory is
// created on the first Save, not here.
func OpenCheckpointStore(dir string) *CheckpointStore {
	return &CheckpointStore{dir: dir}
}

func (c *CheckpointStore) metaPath() string { return filepath.Join(c.dir, "checkpoint.json") }
func (c *CheckpointStore) dataPath() string { return filepath.Join(c.dir, "data.json") }

// Save writes both checkpoint.json and data.json atomically.
func (c *CheckpointStore) Save(meta CheckpointMeta, data row.Dataset) error {
	if err := writeJSONAtomic(c.metaPath(), meta); err != nil {
		return err
	}
	rows := make([]map[string]any, len(data))
	for i, r := range data {
		rows[i] = r.AsMap()
	}
	return writeJSONAtomic(c.dataPath(), rows)
}

// Load reads back a previously saved checkpoint. ok is false if no
// checkpoint.json exists.
func (c *CheckpointStore) Load() (meta CheckpointMeta, data row.Dataset, ok bool, err error) {
	ok, err = readJSON(c.metaPath(), &meta)
	if err != nil || !ok {
		return CheckpointMeta{}, nil, ok, err
	}
	var rows []map[string]any
	if _, err := readJSON(c.dataPath(), &rows); err != nil {
		return CheckpointMeta{}, nil, false, err
	}
	data = make(row.Dataset, len(rows))
	for i, m := range rows {
		data[i] = row.NewRowFromMap(m)
	}
	return meta, data, true, nil
}

// Exists reports whether a checkpoint is present.
func (c *CheckpointStore) Exists() bool {
	_, err := os.Stat(c.metaPath())
	return err == nil
}

// Clear removes the checkpoint directory's contents (called on
// successful completion, spec.md §4.7 step 5).
func (c *CheckpointStore) Clear() error {
	if err := os.Remove(c.metaPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(c.dataPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
