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

package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/step"
)

func testRegistry() *step.Registry {
	r := step.NewRegistry()
	noop := func(map[string]any) (step.Step, error) { return nil, nil }
	_ = r.Register("transform", step.Meta{
		DefaultStrategy:   "sync",
		Fusable:           true,
		StreamingBreakers: map[string]bool{"sort": true, "dedupe": true, "limit": true},
		Streaming:         step.StreamingConditional,
	}, noop)
	_ = r.Register("clean", step.Meta{
		DefaultStrategy: "sync",
		Fusable:         true,
		Streaming:       step.StreamingAlways,
	}, noop)
	_ = r.Register("aggregate", step.Meta{
		DefaultStrategy: "sync",
		Escalations:     []step.Escalation{{Threshold: 50000, Strategy: "multiprocess"}},
	}, noop)
	_ = r.Register("guard", step.Meta{DefaultStrategy: "sync"}, noop)
	_ = r.Register("fetch", step.Meta{DefaultStrategy: "async", IsSource: true}, noop)
	return r
}

func TestFusionMergesConsecutiveFusableSteps(t *testing.T) {
	reg := testRegistry()
	g, err := planner.BuildLinear([]step.Spec{
		{Type: "transform", Config: map[string]any{"filter": "price>10"}},
		{Type: "clean", Config: map[string]any{"trim": []string{"name"}}},
		{Type: "transform", Config: map[string]any{"compute": map[string]any{"total": "price*qty"}}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	require.Len(t, g.Nodes, 1)
	for _, n := range g.Nodes {
		assert.Equal(t, planner.FusedStepType, n.StepType)
		ops, ok := n.Config["_fused_ops"].([]planner.FusedOp)
		require.True(t, ok)
		assert.Len(t, ops, 3)
		assert.Equal(t, "sync", n.Strategy)
	}
}

func TestFusionStopsAtStreamingBreaker(t *testing.T) {
	reg := testRegistry()
	g, err := planner.BuildLinear([]step.Spec{
		{Type: "transform", Config: map[string]any{"filter": "price>10"}},
		{Type: "transform", Config: map[string]any{"sort": "price desc"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))
	assert.Len(t, g.Nodes, 2)
}

func TestFullOptimizeOnSelectFilterPairStillFuses(t *testing.T) {
	// select/filter is also a fusable adjacent pair, so a full Optimize
	// run fuses it per pass 1 before pass 2 ever sees two "transform"
	// nodes to swap. See TestPushdownReversesOrder (white-box, in
	// package planner) for the pushdown pass exercised in isolation,
	// and DESIGN.md's pass-interaction decision for this resolution.
	reg := testRegistry()
	g, err := planner.BuildLinear([]step.Spec{
		{Type: "transform", Config: map[string]any{"select": []string{"id", "val"}}},
		{Type: "transform", Config: map[string]any{"filter": "val>0"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))
	require.Len(t, g.Nodes, 1)
}

func TestParallelLevelAssignment(t *testing.T) {
	reg := testRegistry()
	g, err := planner.BuildGraph(map[string]planner.GraphNodeSpec{
		"r": {Step: "fetch"},
		"a": {Step: "guard", After: []string{"r"}},
		"b": {Step: "guard", After: []string{"r"}},
		"s": {Step: "guard", After: []string{"a", "b"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	groups, err := g.Levels()
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"r"}, groups[0])
	assert.Equal(t, []string{"a", "b"}, groups[1])
	assert.Equal(t, []string{"s"}, groups[2])
}

func TestBuildGraphRejectsUnknownPredecessor(t *testing.T) {
	_, err := planner.BuildGraph(map[string]planner.GraphNodeSpec{
		"a": {Step: "guard", After: []string{"missing"}},
	})
	assert.Error(t, err)
}

func TestStrategyEscalation(t *testing.T) {
	reg := testRegistry()
	rows := 60000
	g := dag.New()
	require.NoError(t, g.AddNode(&dag.Node{ID: "agg", StepType: "aggregate", EstimatedRows: &rows}))
	require.NoError(t, planner.Optimize(g, reg))
	assert.Equal(t, "multiprocess", g.Nodes["agg"].Strategy)
}

func TestProjectionTrackingAggregate(t *testing.T) {
	reg := testRegistry()
	g := dag.New()
	require.NoError(t, g.AddNode(&dag.Node{
		ID:       "agg",
		StepType: "aggregate",
		Config: map[string]any{
			"group_by":  []string{"c"},
			"functions": map[string]any{"s": "sum(n)"},
		},
	}))
	require.NoError(t, planner.Optimize(g, reg))
	needed, ok := g.Nodes["agg"].Config["_needed_fields"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"c", "n"}, needed)
}

func TestDeterministicOptimize(t *testing.T) {
	reg := testRegistry()
	build := func() *dag.Graph {
		g, err := planner.BuildLinear([]step.Spec{
			{Type: "transform", Config: map[string]any{"filter": "x>1"}},
			{Type: "clean", Config: map[string]any{"trim": []string{"y"}}},
		})
		require.NoError(t, err)
		require.NoError(t, planner.Optimize(g, reg))
		return g
	}
	g1 := build()
	g2 := build()
	o1, err := g1.TopoSort()
	require.NoError(t, err)
	o2, err := g2.TopoSort()
	require.NoError(t, err)
	assert.Equal(t, o1, o2)
}
