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

package step

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Factory constructs a Step from its resolved config.
type Factory func(config map[string]any) (Step, error)

// Registration bundles a step type's factory and metadata.
type Registration struct {
	Meta    Meta
	Factory Factory
}

// Registry maps registered step-type names to their Registration. The
// source project's registry auto-discovers step implementations by
// walking a package for side-effect registrations; in this statically
// compiled host each step package instead exposes a constructor and a
// Meta value and registers itself explicitly at process init (spec.md
// §9 "Registry & discovery"). Register is idempotent: registering the
// same name twice with an identical Meta is a no-op, registering a
// different Meta under an existing name is an error.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Registration)}
}

// Register adds a step type. Safe to call more than once for the same
// name as long as the Meta is identical each time.
func (r *Registry) Register(name string, meta Meta, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta.Name = name
	if existing, ok := r.items[name]; ok {
		if !reflect.DeepEqual(existing.Meta, meta) {
			return fmt.Errorf("step: %q already registered with different metadata", name)
		}
		return nil
	}
	r.items[name] = Registration{Meta: meta, Factory: factory}
	return nil
}

// Lookup returns the registration for a step type name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.items[name]
	return reg, ok
}

// Meta is a convenience accessor for a step type's metadata.
func (r *Registry) Meta(name string) (Meta, bool) {
	reg, ok := r.Lookup(name)
	return reg.Meta, ok
}

// New constructs a step instance for the given type name.
func (r *Registry) New(name string, config map[string]any) (Step, error) {
	reg, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("step: unknown step type %q", name)
	}
	return reg.Factory(config)
}

// Names returns all registered step type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for n := range r.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Default is the process-wide registry populated by each step package's
// init() via RegisterDefault. Mirrors the teacher's single shared
// registry instance reachable from the CLI, planner, and executor.
var Default = NewRegistry()

// RegisterDefault registers a step type into the process-wide Default
// registry. Called from each concrete step package's init().
func RegisterDefault(name string, meta Meta, factory Factory) {
	if err := Default.Register(name, meta, factory); err != nil {
		panic(err)
	}
}
