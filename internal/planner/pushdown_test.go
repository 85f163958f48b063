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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/step"
)

// TestPushdownReversesOrder exercises pass 2 in isolation (spec.md §8
// Scenario 2): select then filter, swapped so filter runs first.
func TestPushdownReversesOrder(t *testing.T) {
	g, err := BuildLinear([]step.Spec{
		{Type: "transform", Config: map[string]any{"select": []string{"id", "val"}}},
		{Type: "transform", Config: map[string]any{"filter": "val>0"}},
	})
	require.NoError(t, err)

	require.NoError(t, pushdownFilters(g, step.NewRegistry()))

	order, err := g.TopoSort()
	require.NoError(t, err)
	require.Len(t, order, 2)
	first := g.Nodes[order[0]]
	second := g.Nodes[order[1]]
	_, firstIsFilter := first.Config["filter"]
	_, secondIsSelect := second.Config["select"]
	assert.True(t, firstIsFilter, "filter should run first after pushdown")
	assert.True(t, secondIsSelect, "select should run second after pushdown")
}

func TestPushdownNoOpWhenKeysNotExact(t *testing.T) {
	g, err := BuildLinear([]step.Spec{
		{Type: "transform", Config: map[string]any{"select": []string{"id"}, "rename": map[string]any{"id": "pk"}}},
		{Type: "transform", Config: map[string]any{"filter": "id>0"}},
	})
	require.NoError(t, err)
	require.NoError(t, pushdownFilters(g, step.NewRegistry()))
	order, err := g.TopoSort()
	require.NoError(t, err)
	_, firstHasSelect := g.Nodes[order[0]].Config["select"]
	assert.True(t, firstHasSelect, "swap should not occur when upstream keys are not exactly {select}")
}
