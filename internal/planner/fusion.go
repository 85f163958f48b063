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

package planner

import (
	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/step"
)

// isFusable reports whether a node is eligible to participate in
// fusion: a "_fused" node is fusable by construction (every op it
// already contains was fusable and breaker-free when merged); any other
// node is fusable iff its step type declares Fusable and its config
// carries none of that type's streaming-breaker keys.
func isFusable(n *dag.Node, reg *step.Registry) bool {
	if n.StepType == FusedStepType {
		return true
	}
	meta, ok := reg.Meta(n.StepType)
	if !ok {
		return false
	}
	if !meta.Fusable {
		return false
	}
	return !meta.HasStreamingBreaker(n.Config)
}

// fuse walks the DAG in topological order, repeatedly merging a fusable
// node with its sole fusable successor (which must in turn have only
// that node as predecessor) into a single "_fused" node, until no
// further merge is possible (spec.md §4.5 pass 1).
func fuse(g *dag.Graph, reg *step.Registry) error {
	for {
		order, err := g.TopoSort()
		if err != nil {
			return err
		}
		merged := false
		for _, id := range order {
			n, ok := g.Nodes[id]
			if !ok || !isFusable(n, reg) {
				continue
			}
			succs := g.Successors(id)
			if len(succs) != 1 {
				continue
			}
			succID := succs[0]
			succ := g.Nodes[succID]
			if succ == nil || !isFusable(succ, reg) {
				continue
			}
			if len(g.Predecessors(succID)) != 1 {
				continue
			}
			mergeNodes(g, n, succ)
			merged = true
			break
		}
		if !merged {
			return nil
		}
	}
}

// mergeNodes merges succ into n (keeping n's id so predecessor edges
// need no rewrite), accumulating "_fused_ops" in encounter order.
func mergeNodes(g *dag.Graph, n, succ *dag.Node) {
	var ops []FusedOp
	if n.StepType == FusedStepType {
		ops = append(ops, opsOf(n)...)
	} else {
		ops = append(ops, FusedOp{Type: n.StepType, Config: userOnly(n.Config)})
	}
	if succ.StepType == FusedStepType {
		ops = append(ops, opsOf(succ)...)
	} else {
		ops = append(ops, FusedOp{Type: succ.StepType, Config: userOnly(succ.Config)})
	}

	n.StepType = FusedStepType
	n.Config = map[string]any{"_fused_ops": ops}

	g.RedirectEdges(succ.ID, n.ID)
	g.RemoveNode(succ.ID)
}

func opsOf(n *dag.Node) []FusedOp {
	if ops, ok := n.Config["_fused_ops"].([]FusedOp); ok {
		return ops
	}
	return nil
}

func userOnly(config map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range config {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}
