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

import "github.com/riverdag/riverdag/internal/step"
import "github.com/riverdag/riverdag/internal/dag"

// pushdownFilters swaps a `transform{filter}`-only node with its
// upstream `transform{select}`-only neighbor so the filter evaluates
// against the full row before select narrows it (spec.md §4.5 pass 2).
// Repeats until no further swap is possible.
func pushdownFilters(g *dag.Graph, _ *step.Registry) error {
	for {
		order, err := g.TopoSort()
		if err != nil {
			return err
		}
		swapped := false
		for _, id := range order {
			n := g.Nodes[id]
			if n == nil || n.StepType != "transform" || !keysEqual(userConfigKeys(n.Config), "filter") {
				continue
			}
			preds := g.Predecessors(id)
			if len(preds) != 1 {
				continue
			}
			p := g.Nodes[preds[0]]
			if p == nil || p.StepType != "transform" || !keysEqual(userConfigKeys(p.Config), "select") {
				continue
			}
			if len(g.Successors(p.ID)) != 1 || len(g.Predecessors(id)) != 1 {
				continue
			}
			if err := g.SwapAdjacent(p.ID, id); err != nil {
				continue
			}
			swapped = true
			break
		}
		if !swapped {
			return nil
		}
	}
}
