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
	"regexp"
	"sort"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/step"
)

// funcFieldRE extracts the field name out of a shallow `func(field)`
// aggregate-function expression, e.g. "sum(price)" -> "price".
var funcFieldRE = regexp.MustCompile(`\(([A-Za-z_][A-Za-z0-9_]*)\)`)

// ownReads returns the fields a node reads from its input, and whether
// that set is known. Source nodes read nothing; aggregate reads its
// group-by fields plus any field named inside its function expressions;
// "_fused" abstains (unknown); every other node type abstains too,
// since only aggregate's needs are statically derivable from its
// config shape without interpreting the step's full semantics.
func ownReads(n *dag.Node, reg *step.Registry) (fields map[string]bool, known bool) {
	if n.StepType == FusedStepType {
		return nil, false
	}
	meta, ok := reg.Meta(n.StepType)
	if ok && meta.IsSource {
		return map[string]bool{}, true
	}
	if n.StepType != "aggregate" {
		return nil, false
	}
	out := map[string]bool{}
	if gb, ok := n.Config["group_by"].([]string); ok {
		for _, f := range gb {
			out[f] = true
		}
	} else if gbAny, ok := n.Config["group_by"].([]any); ok {
		for _, f := range gbAny {
			if s, ok := f.(string); ok {
				out[s] = true
			}
		}
	}
	if fns, ok := n.Config["functions"].(map[string]any); ok {
		for _, expr := range fns {
			if s, ok := expr.(string); ok {
				for _, m := range funcFieldRE.FindAllStringSubmatch(s, -1) {
					out[m[1]] = true
				}
			}
		}
	}
	if fns, ok := n.Config["functions"].(map[string]string); ok {
		for _, s := range fns {
			for _, m := range funcFieldRE.FindAllStringSubmatch(s, -1) {
				out[m[1]] = true
			}
		}
	}
	return out, true
}

// trackProjections walks nodes in reverse topological order and
// annotates each with "_needed_fields": the sorted union of what its
// successors need plus its own reads, or omits the annotation when any
// contributing need is unknown (spec.md §4.5 pass 3).
func trackProjections(g *dag.Graph, reg *step.Registry) {
	order, err := g.TopoSort()
	if err != nil {
		return
	}
	needed := map[string]map[string]bool{}
	known := map[string]bool{}
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		n := g.Nodes[id]
		set := map[string]bool{}
		isKnown := true
		for _, succID := range g.Successors(id) {
			if !known[succID] {
				isKnown = false
				continue
			}
			for f := range needed[succID] {
				set[f] = true
			}
		}
		own, ownKnown := ownReads(n, reg)
		if !ownKnown {
			isKnown = false
		} else {
			for f := range own {
				set[f] = true
			}
		}
		needed[id] = set
		known[id] = isKnown
		if isKnown {
			names := make([]string, 0, len(set))
			for f := range set {
				names = append(names, f)
			}
			sort.Strings(names)
			n.Config["_needed_fields"] = names
		} else {
			delete(n.Config, "_needed_fields")
		}
	}
}
