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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// KanbanState is one of an item's lifecycle states (spec.md §6).
type KanbanState string

const (
	KanbanBacklog    KanbanState = "backlog"
	KanbanInProgress KanbanState = "in_progress"
	KanbanDone       KanbanState = "done"
	KanbanFailed     KanbanState = "failed"
)

// KanbanItem is one queued/running pipeline item (spec.md §6).
type KanbanItem struct {
	ID           string         `json:"id"`
	PipelineFile string         `json:"pipeline_file"`
	PipelineName string         `json:"pipeline_name"`
	Variables    map[string]any `json:"variables,omitempty"`
	State        KanbanState    `json:"state"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Error        string         `json:"error,omitempty"`
	Summary      string         `json:"summary,omitempty"`
}

type kanbanDoc struct {
	Items []KanbanItem `json:"items"`
}

// KanbanStore is a JSON document of queued/running pipeline items,
// written atomically (spec.md §6).
type KanbanStore struct {
	path string
	mu   sync.Mutex
}

// OpenKanbanStore binds a KanbanStore to the JSON document at path. The
// file is created on first write if absent.
func OpenKanbanStore(path string) *KanbanStore {
	return &KanbanStore{path: path}
}

func (k *KanbanStore) load() (kanbanDoc, error) {
	var doc kanbanDoc
	if _, err := readJSON(k.path, &doc); err != nil {
		return kanbanDoc{}, err
	}
	return doc, nil
}

// Enqueue adds a new backlog item and returns its generated id.
func (k *KanbanStore) Enqueue(pipelineFile, pipelineName string, vars map[string]any) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	doc, err := k.load()
	if err != nil {
		return "", err
	}
	now := time.Now()
	item := KanbanItem{
		ID:           uuid.NewString(),
		PipelineFile: pipelineFile,
		PipelineName: pipelineName,
		Variables:    vars,
		State:        KanbanBacklog,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	doc.Items = append(doc.Items, item)
	if err := writeJSONAtomic(k.path, doc); err != nil {
		return "", err
	}
	return item.ID, nil
}

// NextBacklog returns the oldest backlog item, or ok=false if none.
func (k *KanbanStore) NextBacklog() (KanbanItem, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	doc, err := k.load()
	if err != nil {
		return KanbanItem{}, false, err
	}
	for _, it := range doc.Items {
		if it.State == KanbanBacklog {
			return it, true, nil
		}
	}
	return KanbanItem{}, false, nil
}

// Transition moves an item to a new state, optionally recording an
// error message and summary.
func (k *KanbanStore) Transition(id string, state KanbanState, errMsg, summary string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	doc, err := k.load()
	if err != nil {
		return err
	}
	found := false
	for i := range doc.Items {
		if doc.Items[i].ID == id {
			doc.Items[i].State = state
			doc.Items[i].UpdatedAt = time.Now()
			if errMsg != "" {
				doc.Items[i].Error = errMsg
			}
			if summary != "" {
				doc.Items[i].Summary = summary
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("store: kanban item %q not found", id)
	}
	return writeJSONAtomic(k.path, doc)
}

// List returns every item, in document order.
func (k *KanbanStore) List() ([]KanbanItem, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	doc, err := k.load()
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}
