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

// Package pipeline implements the one-shot orchestrator (spec.md §4.7):
// a PipelineDefinition loaded from YAML (see internal/yamlload) and a
// Driver that seeds a run context, chooses the DAG path or the
// checkpoint-resume sequential path, and guarantees metrics/kanban/
// checkpoint bookkeeping regardless of outcome.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/riverdag/riverdag/internal/engine"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/step"
)

// Definition is a PipelineDefinition (spec.md §3/§6): either a linear
// Steps list or an explicit Graph, never both.
type Definition struct {
	Name        string
	Description string
	Vars        map[string]any
	OnError     engine.OnError
	JIT         bool
	Checkpoint  bool

	Steps []step.Spec
	Graph map[string]planner.GraphNodeSpec
}

// canonicalForm is what Hash encodes: map[string]any keys are sorted by
// encoding/json already, so the only thing this buys over encoding the
// Definition directly is omitting fields that don't affect execution
// (Description is documentation, not behavior).
type canonicalForm struct {
	Name       string
	Vars       map[string]any
	OnError    engine.OnError
	JIT        bool
	Checkpoint bool
	Steps      []step.Spec                     `json:",omitempty"`
	Graph      map[string]planner.GraphNodeSpec `json:",omitempty"`
}

// Hash returns the 16-hex-char content hash spec.md §6/§4.7 records
// alongside every run and compares checkpoints against.
func (d *Definition) Hash() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(canonicalForm{
		Name:       d.Name,
		Vars:       d.Vars,
		OnError:    d.OnError,
		JIT:        d.JIT,
		Checkpoint: d.Checkpoint,
		Steps:      d.Steps,
		Graph:      d.Graph,
	})
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[:16]
}

// IsGraph reports whether this definition uses the explicit graph form
// rather than a linear step list.
func (d *Definition) IsGraph() bool { return len(d.Graph) > 0 }
