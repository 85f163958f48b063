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

package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
)

// StepError wraps a step execution failure with the offending node's
// identity (spec.md §4.6/§7 "step runtime error").
type StepError struct {
	NodeID   string
	StepType string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s): %v", e.NodeID, e.StepType, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// NodeResult is the stored outcome of running one DAG node (spec.md
// §4.6).
type NodeResult struct {
	NodeID   string
	Data     row.Dataset
	Schema   row.DataSchema
	Duration time.Duration
	Errors   []string
}

// OnError selects the pipeline's failure policy (spec.md §4.6).
type OnError string

const (
	OnErrorStop OnError = "stop"
	OnErrorSkip OnError = "skip"
)

// Executor runs an optimized ExecutionDAG level by level against a
// step registry.
type Executor struct {
	Registry *step.Registry

	// OnNodeComplete, if set, is called once per node immediately after
	// its StepRecord is appended to the driver context, with the
	// node's output dataset. The pipeline driver uses this to compute
	// JIT-skip hashes and per-node checkpoints without the executor
	// needing to know about either concern (spec.md §4.7).
	OnNodeComplete func(rec StepRecord, data row.Dataset)
}

// NewExecutor returns an Executor bound to the given step registry.
func NewExecutor(reg *step.Registry) *Executor {
	return &Executor{Registry: reg}
}

// Run traverses g level by level (spec.md §4.6), dispatching nodes
// within a level concurrently, feeding each node's primary/secondary
// inputs from its predecessors, and finally setting driverCtx.Data from
// the unique leaf (or the concatenation of all leaves in
// leaf-discovery order). driverCtx.Data on entry is the initial dataset
// fed to root nodes.
func (e *Executor) Run(ctx context.Context, g *dag.Graph, driverCtx *Context, onError OnError) error {
	groups, err := g.Levels()
	if err != nil {
		return err
	}

	initial := driverCtx.Data
	results := make(map[string]*NodeResult, len(g.Nodes))
	var stepIndex int
	var resultsMu sync.Mutex
	var varsMu sync.Mutex

	for _, level := range groups {
		type outcome struct {
			id  string
			res *NodeResult
			err error
		}
		outcomes := make(chan outcome, len(level))
		var wg sync.WaitGroup
		for _, id := range level {
			id := id
			n := g.Nodes[id]
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := e.runNode(ctx, g, n, initial, results, &resultsMu, driverCtx, &varsMu)
				outcomes <- outcome{id: id, res: res, err: err}
			}()
		}
		go func() {
			wg.Wait()
			close(outcomes)
		}()

		var firstErr error
		for o := range outcomes {
			n := g.Nodes[o.id]
			resultsMu.Lock()
			stepIndex++
			idx := stepIndex - 1
			resultsMu.Unlock()

			rec := StepRecord{Index: idx, StepType: n.StepType, NodeID: o.id}
			var completedData row.Dataset
			if o.err != nil {
				rec.Error = o.err.Error()
				if onError == OnErrorSkip {
					fallback := e.primaryInput(g, n, initial, results)
					resultsMu.Lock()
					results[o.id] = &NodeResult{NodeID: o.id, Data: fallback, Errors: []string{o.err.Error()}}
					resultsMu.Unlock()
					rec.Rows = len(fallback)
					completedData = fallback
				} else if firstErr == nil {
					firstErr = o.err
				}
			} else {
				resultsMu.Lock()
				results[o.id] = o.res
				resultsMu.Unlock()
				rec.Rows = len(o.res.Data)
				rec.Duration = o.res.Duration
				completedData = o.res.Data
			}
			driverCtx.Results = append(driverCtx.Results, rec)
			if e.OnNodeComplete != nil && (o.err == nil || onError == OnErrorSkip) {
				e.OnNodeComplete(rec, completedData)
			}
		}
		if firstErr != nil {
			return firstErr
		}
	}

	leaves := g.Leaves()
	var final row.Dataset
	for _, id := range leaves {
		if r, ok := results[id]; ok {
			final = append(final, r.Data...)
		}
	}
	driverCtx.SetData(final)
	return nil
}

// primaryInput resolves the dataset a node would have used as its
// primary input, for the on_error=skip fallback ("the step's
// contribution becomes the previous dataset").
func (e *Executor) primaryInput(g *dag.Graph, n *dag.Node, initial row.Dataset, results map[string]*NodeResult) row.Dataset {
	in := g.InEdges(n.ID)
	if len(in) == 0 {
		return initial
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Port < in[j].Port })
	if r, ok := results[in[0].Source]; ok {
		return r.Data
	}
	return nil
}

// runNode executes one node: it collects inputs, builds an isolated
// per-node context, dispatches by strategy, and returns the NodeResult.
func (e *Executor) runNode(
	ctx context.Context,
	g *dag.Graph,
	n *dag.Node,
	initial row.Dataset,
	results map[string]*NodeResult,
	resultsMu *sync.Mutex,
	driverCtx *Context,
	varsMu *sync.Mutex,
) (*NodeResult, error) {
	in := g.InEdges(n.ID)
	sort.Slice(in, func(i, j int) bool { return in[i].Port < in[j].Port })

	var primary row.Dataset
	inputs := map[string]row.Dataset{}
	if len(in) == 0 {
		primary = initial
	} else {
		resultsMu.Lock()
		for i, e := range in {
			r, ok := results[e.Source]
			if !ok {
				continue
			}
			if i == 0 {
				primary = r.Data
			} else {
				inputs[e.Port] = r.Data
			}
		}
		resultsMu.Unlock()
	}

	varsMu.Lock()
	vars := make(map[string]any, len(driverCtx.Vars))
	for k, v := range driverCtx.Vars {
		vars[k] = v
	}
	varsMu.Unlock()

	sctx := &step.Context{
		Data:         primary,
		Vars:         vars,
		Inputs:       inputs,
		PipelineName: driverCtx.PipelineName,
		Run: func(ctx context.Context, steps []step.Spec, data row.Dataset, vars map[string]any) (row.Dataset, error) {
			return e.RunSubPipeline(ctx, steps, data, vars)
		},
	}

	start := time.Now()
	var out row.Dataset
	var err error
	if n.StepType == planner.FusedStepType {
		out, err = e.runFused(ctx, n, sctx)
	} else {
		out, err = e.dispatch(ctx, n, sctx)
	}
	duration := time.Since(start)

	varsMu.Lock()
	for k, v := range sctx.Vars {
		driverCtx.Vars[k] = v
	}
	varsMu.Unlock()

	if err != nil {
		return nil, &StepError{NodeID: n.ID, StepType: n.StepType, Err: err}
	}
	return &NodeResult{
		NodeID:   n.ID,
		Data:     out,
		Schema:   row.InferSchema(out, 0),
		Duration: duration,
	}, nil
}

// strippedConfig removes planner-internal annotation keys (those
// beginning with "_") before handing config to a step (spec.md §4.6).
func strippedConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}

// dispatch builds the step instance for n and runs it via the
// interface matching n.Strategy, falling back to Execute (spec.md
// §4.3/§4.6).
func (e *Executor) dispatch(ctx context.Context, n *dag.Node, sctx *step.Context) (row.Dataset, error) {
	s, err := e.Registry.New(n.StepType, strippedConfig(n.Config))
	if err != nil {
		return nil, err
	}
	switch n.Strategy {
	case "streaming":
		if ss, ok := s.(step.StreamingStep); ok && ss.SupportsStreaming() {
			ch, err := ss.ExecuteStream(ctx, sctx)
			if err != nil {
				return nil, err
			}
			var out row.Dataset
			for item := range ch {
				if item.Err != nil {
					return nil, item.Err
				}
				out = append(out, item.Row)
			}
			return out, nil
		}
		return s.Execute(ctx, sctx)
	case "async":
		if as, ok := s.(step.AsyncStep); ok {
			return as.ExecuteAsync(ctx, sctx)
		}
		return s.Execute(ctx, sctx)
	case "multiprocess":
		if ps, ok := s.(step.PooledStep); ok {
			return ps.ExecutePooled(ctx, sctx)
		}
		return s.Execute(ctx, sctx)
	default:
		return s.Execute(ctx, sctx)
	}
}

// runFused runs a "_fused" node's contained ops sequentially on an
// inner context, reusing a single data list and propagating vars back
// (spec.md §4.6 step 3).
func (e *Executor) runFused(ctx context.Context, n *dag.Node, sctx *step.Context) (row.Dataset, error) {
	ops, _ := n.Config["_fused_ops"].([]planner.FusedOp)
	data := sctx.Data
	for _, op := range ops {
		s, err := e.Registry.New(op.Type, op.Config)
		if err != nil {
			return nil, fmt.Errorf("_fused: op %q: %w", op.Type, err)
		}
		inner := &step.Context{
			Data:         data,
			Vars:         sctx.Vars,
			Inputs:       sctx.Inputs,
			PipelineName: sctx.PipelineName,
			Run:          sctx.Run,
		}
		data, err = s.Execute(ctx, inner)
		if err != nil {
			return nil, fmt.Errorf("_fused: op %q: %w", op.Type, err)
		}
	}
	return data, nil
}

// RunSubPipeline plans and executes a linear step list as a standalone
// run against data, returning its final dataset. Used to implement the
// step.Context.Run capability that `branch` and `parallel` steps embed
// sub-pipelines through.
func (e *Executor) RunSubPipeline(ctx context.Context, steps []step.Spec, data row.Dataset, vars map[string]any) (row.Dataset, error) {
	if len(steps) == 0 {
		return data, nil
	}
	g, err := planner.BuildLinear(steps)
	if err != nil {
		return nil, err
	}
	if err := planner.Optimize(g, e.Registry); err != nil {
		return nil, err
	}
	sub := NewContext("", vars)
	sub.Data = data
	if err := e.Run(ctx, g, sub, OnErrorStop); err != nil {
		return nil, err
	}
	return sub.Data, nil
}
