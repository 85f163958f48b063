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
	"fmt"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/step"
)

// annotateStrategy sets each node's Strategy (spec.md §4.5 pass 4):
// "_fused" nodes always run "sync"; other nodes start from their step
// type's default strategy and apply ascending-threshold escalations,
// last-applicable-rule-wins, suppressing a "streaming" escalation when
// the node's config carries that type's streaming breaker.
func annotateStrategy(g *dag.Graph, reg *step.Registry) error {
	for _, n := range g.Nodes {
		if n.StepType == FusedStepType {
			n.Strategy = "sync"
			continue
		}
		meta, ok := reg.Meta(n.StepType)
		if !ok {
			return fmt.Errorf("planner: unknown step type %q for node %q", n.StepType, n.ID)
		}
		rows := 0
		if n.EstimatedRows != nil {
			rows = *n.EstimatedRows
		}
		n.Strategy = meta.StrategyFor(rows, n.Config)
	}
	return nil
}
