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

// Package cache implements the `cache` step: a TTL-keyed file cache of a
// dataset, mirroring the atomic-JSON-write idiom used by
// internal/store's checkpoint/kanban persistence (write to a temp file,
// then rename).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "cache"

const defaultDir = ".riverdag/cache"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		Description:     "TTL-keyed file cache of a dataset.",
		ConfigDocs: map[string]string{
			"key":    "cache key",
			"ttl":    "seconds the cached entry remains valid (default 3600)",
			"dir":    "cache directory (default .riverdag/cache)",
			"action": "auto (default), read, write, or clear",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

type envelope struct {
	StoredAt int64            `json:"stored_at"`
	TTL      int              `json:"ttl"`
	Rows     []map[string]any `json:"rows"`
}

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	key := cfg.String(s.config, "key", "")
	if key == "" {
		return nil, fmt.Errorf("cache: requires \"key\"")
	}
	ttl := cfg.Int(s.config, "ttl", 3600)
	dir := cfg.String(s.config, "dir", defaultDir)
	action := cfg.String(s.config, "action", "auto")
	path := filepath.Join(dir, key+".json")

	switch action {
	case "clear":
		_ = os.Remove(path)
		return sctx.Data, nil
	case "write":
		return sctx.Data, write(path, sctx.Data, ttl)
	case "read":
		d, ok, err := read(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("cache: no valid entry for key %q", key)
		}
		return d, nil
	default: // auto
		if d, ok, err := read(path); err != nil {
			return nil, err
		} else if ok {
			return d, nil
		}
		return sctx.Data, write(path, sctx.Data, ttl)
	}
}

func read(path string) (row.Dataset, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read %s: %w", path, err)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", path, err)
	}
	if time.Now().Unix()-env.StoredAt > int64(env.TTL) {
		return nil, false, nil
	}
	out := make(row.Dataset, len(env.Rows))
	for i, m := range env.Rows {
		out[i] = row.NewRowFromMap(m)
	}
	return out, true, nil
}

func write(path string, d row.Dataset, ttl int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	rows := make([]map[string]any, len(d))
	for i, r := range d {
		rows[i] = r.AsMap()
	}
	env := envelope{StoredAt: time.Now().Unix(), TTL: ttl, Rows: rows}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}
