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

// Package planner lowers a step list or explicit graph into an
// ExecutionDAG and applies the five optimization passes from spec.md
// §4.5: operator fusion, filter pushdown, projection tracking, strategy
// annotation, and parallel-level assignment.
package planner

import (
	"fmt"
	"sort"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/step"
)

// FusedStepType is the synthetic step type name the fusion pass
// produces for merged nodes.
const FusedStepType = "_fused"

// GraphNodeSpec is one entry of an explicit graph-mode pipeline
// definition (spec.md §4.5 / §6).
type GraphNodeSpec struct {
	Step   string
	After  []string
	Config map[string]any
}

// FusedOp is one element of a _fused node's "_fused_ops" config entry.
type FusedOp struct {
	Type   string
	Config map[string]any
}

// BuildLinear compiles a linear step list into a chain
// s0 -> s1 -> ... -> sN with ids "s{i}_{type}".
func BuildLinear(steps []step.Spec) (*dag.Graph, error) {
	g := dag.New()
	var ids []string
	for i, s := range steps {
		id := fmt.Sprintf("s%d_%s", i, s.Type)
		if err := g.AddNode(&dag.Node{ID: id, StepType: s.Type, Config: cloneConfig(s.Config)}); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	for i := 0; i+1 < len(ids); i++ {
		if err := g.AddEdge(ids[i], ids[i+1], dag.DefaultPort); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// BuildGraph compiles an explicit graph map into a DAG, using the
// user-provided node ids. Multiple predecessors on one node are wired to
// ports "input_0", "input_1", ... in the order they are listed in
// After.
func BuildGraph(nodes map[string]GraphNodeSpec) (*dag.Graph, error) {
	g := dag.New()
	var ids []string
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		spec := nodes[id]
		if err := g.AddNode(&dag.Node{ID: id, StepType: spec.Step, Config: cloneConfig(spec.Config)}); err != nil {
			return nil, err
		}
	}
	for _, id := range ids {
		spec := nodes[id]
		for i, pred := range spec.After {
			if _, ok := nodes[pred]; !ok {
				return nil, fmt.Errorf("planner: node %q references unknown predecessor %q", id, pred)
			}
			port := dag.DefaultPort
			if len(spec.After) > 1 {
				port = fmt.Sprintf("input_%d", i)
			}
			if err := g.AddEdge(pred, id, port); err != nil {
				return nil, err
			}
		}
	}
	if _, err := g.TopoSort(); err != nil {
		return nil, err
	}
	return g, nil
}

// Optimize runs the five passes, in order, against the registry's step
// metadata. It is deterministic: the same input graph always produces
// the same output graph.
func Optimize(g *dag.Graph, reg *step.Registry) error {
	if err := fuse(g, reg); err != nil {
		return err
	}
	if err := pushdownFilters(g, reg); err != nil {
		return err
	}
	trackProjections(g, reg)
	if err := annotateStrategy(g, reg); err != nil {
		return err
	}
	if _, err := g.Levels(); err != nil {
		return err
	}
	return nil
}

func cloneConfig(c map[string]any) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// userConfigKeys returns config keys not beginning with "_" (planner
// internal annotations are excluded from structural comparisons such as
// the pushdown pass's "exactly {select}" check).
func userConfigKeys(config map[string]any) []string {
	var out []string
	for k := range config {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func keysEqual(keys []string, want ...string) bool {
	if len(keys) != len(want) {
		return false
	}
	sort.Strings(want)
	for i := range keys {
		if keys[i] != want[i] {
			return false
		}
	}
	return true
}
