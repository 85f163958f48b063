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

package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/engine"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
)

// sleepStep sleeps for a configured duration and passes its input
// through unchanged, used to exercise level-parallelism timing
// (spec.md §8 Scenario 3).
type sleepStep struct{ delay time.Duration }

func (s *sleepStep) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	time.Sleep(s.delay)
	return sctx.Data, nil
}

// failStep always fails, used to exercise on_error semantics.
type failStep struct{}

func (s *failStep) Execute(_ context.Context, _ *step.Context) (row.Dataset, error) {
	return nil, fmt.Errorf("boom")
}

func newTestRegistry(t *testing.T) *step.Registry {
	t.Helper()
	reg := step.NewRegistry()
	require.NoError(t, reg.Register("sleep10", step.Meta{DefaultStrategy: "sync"}, func(map[string]any) (step.Step, error) {
		return &sleepStep{delay: 40 * time.Millisecond}, nil
	}))
	require.NoError(t, reg.Register("fail", step.Meta{DefaultStrategy: "sync"}, func(map[string]any) (step.Step, error) {
		return &failStep{}, nil
	}))
	return reg
}

func sampleData() row.Dataset {
	r := row.NewRow()
	r.Set("x", row.Int(1))
	return row.Dataset{r}
}

// TestParallelLevelsRunConcurrently exercises spec.md §8 Scenario 3: a
// root feeding two independent children that both sleep, feeding a
// sink; wall clock must be close to one sleep duration, not two.
func TestParallelLevelsRunConcurrently(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := planner.BuildGraph(map[string]planner.GraphNodeSpec{
		"r": {Step: "sleep10"},
		"a": {Step: "sleep10", After: []string{"r"}},
		"b": {Step: "sleep10", After: []string{"r"}},
		"s": {Step: "sleep10", After: []string{"a", "b"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	groups, err := g.Levels()
	require.NoError(t, err)
	require.Equal(t, []string{"r"}, groups[0])
	assert.ElementsMatch(t, []string{"a", "b"}, groups[1])
	assert.Equal(t, []string{"s"}, groups[2])

	exec := engine.NewExecutor(reg)
	ctx := engine.NewContext("p", nil)
	ctx.Data = sampleData()

	start := time.Now()
	require.NoError(t, exec.Run(context.Background(), g, ctx, engine.OnErrorStop))
	elapsed := time.Since(start)

	// 3 sequential sleeps (r, {a,b} concurrently, s) should take ~120ms;
	// if a/b ran sequentially it would be ~160ms. Allow generous slack.
	assert.Less(t, elapsed, 150*time.Millisecond)
	assert.Len(t, ctx.Data, 1)
}

func TestOnErrorStopAbortsRun(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := planner.BuildLinear([]step.Spec{{Type: "fail"}})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	exec := engine.NewExecutor(reg)
	ctx := engine.NewContext("p", nil)
	ctx.Data = sampleData()

	err = exec.Run(context.Background(), g, ctx, engine.OnErrorStop)
	require.Error(t, err)
	var stepErr *engine.StepError
	require.ErrorAs(t, err, &stepErr)
}

func TestOnErrorSkipContinuesWithPreviousDataset(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := planner.BuildLinear([]step.Spec{{Type: "fail"}})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	exec := engine.NewExecutor(reg)
	ctx := engine.NewContext("p", nil)
	ctx.Data = sampleData()

	require.NoError(t, exec.Run(context.Background(), g, ctx, engine.OnErrorSkip))
	require.Len(t, ctx.Data, 1)
	require.Len(t, ctx.Results, 1)
	assert.NotEmpty(t, ctx.Results[0].Error)
}

func TestStepRecordsSequentialAcrossDAG(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := planner.BuildGraph(map[string]planner.GraphNodeSpec{
		"r": {Step: "sleep10"},
		"a": {Step: "sleep10", After: []string{"r"}},
		"b": {Step: "sleep10", After: []string{"r"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	exec := engine.NewExecutor(reg)
	ctx := engine.NewContext("p", nil)
	ctx.Data = sampleData()
	require.NoError(t, exec.Run(context.Background(), g, ctx, engine.OnErrorStop))

	require.Len(t, ctx.Results, 3)
	seen := map[int]bool{}
	for _, rec := range ctx.Results {
		seen[rec.Index] = true
	}
	assert.Len(t, seen, 3)
}

func TestMultipleLeavesConcatenatedInDiscoveryOrder(t *testing.T) {
	reg := newTestRegistry(t)
	g, err := planner.BuildGraph(map[string]planner.GraphNodeSpec{
		"r": {Step: "sleep10"},
		"a": {Step: "sleep10", After: []string{"r"}},
		"b": {Step: "sleep10", After: []string{"r"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))
	require.ElementsMatch(t, []string{"a", "b"}, g.Leaves())

	exec := engine.NewExecutor(reg)
	ctx := engine.NewContext("p", nil)
	ctx.Data = sampleData()
	require.NoError(t, exec.Run(context.Background(), g, ctx, engine.OnErrorStop))

	// Both leaves emit the same single row unchanged; concatenated
	// output from two leaves has 2 rows.
	assert.Len(t, ctx.Data, 2)
}

func TestIsolationSiblingWritesDoNotLeak(t *testing.T) {
	reg := step.NewRegistry()
	require.NoError(t, reg.Register("setvar", step.Meta{DefaultStrategy: "sync"}, func(config map[string]any) (step.Step, error) {
		name, _ := config["name"].(string)
		return &setVarStep{name: name}, nil
	}))
	g, err := planner.BuildGraph(map[string]planner.GraphNodeSpec{
		"r": {Step: "setvar", Config: map[string]any{"name": "root"}},
		"a": {Step: "setvar", After: []string{"r"}, Config: map[string]any{"name": "a"}},
		"b": {Step: "setvar", After: []string{"r"}, Config: map[string]any{"name": "b"}},
	})
	require.NoError(t, err)
	require.NoError(t, planner.Optimize(g, reg))

	exec := engine.NewExecutor(reg)
	ctx := engine.NewContext("p", nil)
	ctx.Data = sampleData()
	require.NoError(t, exec.Run(context.Background(), g, ctx, engine.OnErrorStop))

	// Both siblings' var writes are visible after the run (merged back
	// after each completes), but neither observed the other's write
	// during its own execution (checked via the step's own recorded
	// snapshot).
	assert.Equal(t, true, ctx.Vars["wrote_a"])
	assert.Equal(t, true, ctx.Vars["wrote_b"])
	assert.Nil(t, ctx.Vars["a_saw_b"])
	assert.Nil(t, ctx.Vars["b_saw_a"])
}

// setVarStep writes "wrote_<name>" into its own context vars and
// records whether it observed a sibling's write at entry.
type setVarStep struct{ name string }

func (s *setVarStep) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	time.Sleep(5 * time.Millisecond)
	other := map[string]string{"a": "b", "b": "a"}[s.name]
	if other != "" {
		if v, ok := sctx.Vars["wrote_"+other]; ok {
			sctx.Vars[s.name+"_saw_"+other] = v
		}
	}
	sctx.Vars["wrote_"+s.name] = true
	return sctx.Data, nil
}
