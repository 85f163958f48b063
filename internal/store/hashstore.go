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
)

// HashStore is the JSON mapping "{pipeline}:step_{i}" -> 16-hex-char
// truncated SHA-256 used by the JIT-skip accounting feature (spec.md
// §6).
type HashStore struct {
	path string
	mu   sync.Mutex
}

// OpenHashStore binds a HashStore to the JSON document at path.
func OpenHashStore(path string) *HashStore {
	return &HashStore{path: path}
}

// Key builds the "{pipeline}:step_{i}" key spec.md §6 specifies.
func Key(pipelineName string, stepIndex int) string {
	return fmt.Sprintf("%s:step_%d", pipelineName, stepIndex)
}

// Get returns the stored hash for key, or ok=false if absent.
func (h *HashStore) Get(key string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]string{}
	if _, err := readJSON(h.path, &m); err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set persists key -> hash, atomically rewriting the whole document.
func (h *HashStore) Set(key, hash string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := map[string]string{}
	if _, err := readJSON(h.path, &m); err != nil {
		return err
	}
	m[key] = hash
	return writeJSONAtomic(h.path, m)
}
