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

package pipeline

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/engine"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/store"
)

// RunOptions carries the per-invocation knobs spec.md §6's `run` command
// exposes: `--var`-style overrides, `--resume`, and the Kanban item this
// run was popped from (if any, when driven by `riverdag work`).
type RunOptions struct {
	KanbanItemID string
	Resume       bool
	VarOverrides map[string]any
}

// Driver is the one-shot orchestrator of spec.md §4.7, wired to the
// external stores it reports through. Any store may be nil, in which
// case that concern is silently skipped (a Driver built for `validate`
// or in-process tests has no need for a metrics DB, say).
type Driver struct {
	Registry    *step.Registry
	Metrics     *store.MetricsStore
	Kanban      *store.KanbanStore
	Checkpoints *store.CheckpointStore
	Hashes      *store.HashStore
}

// NewDriver builds a Driver over the given registry and stores.
func NewDriver(reg *step.Registry, metrics *store.MetricsStore, kanban *store.KanbanStore, checkpoints *store.CheckpointStore, hashes *store.HashStore) *Driver {
	return &Driver{Registry: reg, Metrics: metrics, Kanban: kanban, Checkpoints: checkpoints, Hashes: hashes}
}

// Run executes def against initialData, following spec.md §4.7's
// five-step sequence, and returns the terminal driver context
// (including accumulated StepRecords) regardless of success or failure.
func (d *Driver) Run(ctx context.Context, def *Definition, initialData row.Dataset, opts RunOptions) (*engine.Context, error) {
	vars := make(map[string]any, len(def.Vars))
	for k, v := range def.Vars {
		vars[k] = v
	}
	if len(opts.VarOverrides) > 0 {
		if err := mergo.Merge(&vars, opts.VarOverrides, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("pipeline: merge var overrides: %w", err)
		}
	}

	dctx := engine.NewContext(def.Name, vars)
	dctx.Data = initialData
	pipelineHash := def.Hash()

	if d.Kanban != nil && opts.KanbanItemID != "" {
		_ = d.Kanban.Transition(opts.KanbanItemID, store.KanbanInProgress, "", "")
	}

	startedAt := time.Now()

	var runErr error
	if opts.Resume && d.Checkpoints != nil && d.Checkpoints.Exists() {
		runErr = d.runFromCheckpoint(ctx, def, dctx)
	} else {
		runErr = d.runFresh(ctx, def, dctx, pipelineHash)
	}

	finishedAt := time.Now()
	d.recordMetrics(ctx, def, dctx, pipelineHash, startedAt, finishedAt, runErr)

	if d.Kanban != nil && opts.KanbanItemID != "" {
		if runErr != nil {
			_ = d.Kanban.Transition(opts.KanbanItemID, store.KanbanFailed, runErr.Error(), "")
		} else {
			_ = d.Kanban.Transition(opts.KanbanItemID, store.KanbanDone, "", fmt.Sprintf("%d rows", len(dctx.Data)))
		}
	}

	if runErr == nil && d.Checkpoints != nil {
		_ = d.Checkpoints.Clear()
	}

	return dctx, runErr
}

// recordMetrics persists the run's metrics row. Per spec.md §7 this is
// best-effort: a failure to record never becomes the run's error.
func (d *Driver) recordMetrics(ctx context.Context, def *Definition, dctx *engine.Context, pipelineHash string, startedAt, finishedAt time.Time, runErr error) {
	if d.Metrics == nil {
		return
	}
	status := "success"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}
	steps := make([]store.StepRecordJSON, len(dctx.Results))
	for i, r := range dctx.Results {
		steps[i] = store.StepRecordJSON{
			Index: r.Index, StepType: r.StepType, NodeID: r.NodeID,
			Rows: r.Rows, Duration: r.Duration.Milliseconds(), Error: r.Error,
		}
	}
	_ = d.Metrics.Record(ctx, store.RunRecord{
		PipelineName:   def.Name,
		PipelineHash:   pipelineHash,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
		TotalRows:      len(dctx.Data),
		TotalDuration:  finishedAt.Sub(startedAt),
		Status:         status,
		ErrorMessage:   errMsg,
		Steps:          steps,
		MemoryPeakMB:   float64(dctx.MemoryPeakBytes) / (1024 * 1024),
		PeakBufferRows: dctx.PeakBufferRows,
	})
}

// buildGraph lowers def's steps or graph into an ExecutionDAG.
func (d *Driver) buildGraph(def *Definition) (*dag.Graph, error) {
	if def.IsGraph() {
		return planner.BuildGraph(def.Graph)
	}
	return planner.BuildLinear(def.Steps)
}

// runFresh invokes the planner and executor (spec.md §4.7 step 4),
// injecting the andon historical-average baseline beforehand and
// wiring JIT-skip accounting and failure-path checkpointing through the
// executor's OnNodeComplete hook.
func (d *Driver) runFresh(ctx context.Context, def *Definition, dctx *engine.Context, pipelineHash string) error {
	if d.Metrics != nil {
		if avg, count, err := d.Metrics.AverageRows(ctx, def.Name); err == nil && count > 0 {
			dctx.Vars["_andon_baseline_rows"] = avg
			dctx.Vars["_andon_baseline_count"] = count
		}
	}

	g, err := d.buildGraph(def)
	if err != nil {
		return err
	}
	if err := planner.Optimize(g, d.Registry); err != nil {
		return err
	}

	lastCompletedStep := -1
	var lastCompletedData row.Dataset

	exec := engine.NewExecutor(d.Registry)
	if def.JIT || (def.Checkpoint && d.Checkpoints != nil) {
		exec.OnNodeComplete = func(rec engine.StepRecord, data row.Dataset) {
			lastCompletedStep = rec.Index
			lastCompletedData = data
			if def.JIT && d.Hashes != nil && rec.Error == "" {
				d.recordJITHash(def.Name, rec.Index, data, dctx)
			}
		}
	}

	onError := def.OnError
	if onError == "" {
		onError = engine.OnErrorStop
	}

	runErr := exec.Run(ctx, g, dctx, onError)
	if runErr != nil && def.Checkpoint && d.Checkpoints != nil && lastCompletedStep >= 0 {
		meta := store.CheckpointMeta{
			PipelineName:  def.Name,
			PipelineHash:  pipelineHash,
			CompletedStep: lastCompletedStep,
			Vars:          dctx.Vars,
			Results:       toStepRecordJSON(dctx.Results),
		}
		_ = d.Checkpoints.Save(meta, lastCompletedData)
	}
	return runErr
}

// recordJITHash compares step index's output hash against the prior
// run's stored hash for this pipeline+step position, bumping
// dctx.JITSkipped on a match (spec.md §4.7 "JIT skip" — a pure
// accounting feature; the step still ran).
func (d *Driver) recordJITHash(pipelineName string, stepIndex int, data row.Dataset, dctx *engine.Context) {
	key := store.Key(pipelineName, stepIndex)
	h := row.ShortHash(data, 16)
	if prev, ok, err := d.Hashes.Get(key); err == nil && ok && prev == h {
		dctx.JITSkipped++
	}
	_ = d.Hashes.Set(key, h)
}

// runFromCheckpoint reloads a checkpoint's data/vars/results and
// resumes on the legacy sequential path starting immediately after the
// last completed step (spec.md §4.7 step 3) — the only path that
// bypasses the DAG, since DAG execution has no reentrant state. Only
// supported for linear (Steps) definitions: a graph's topological order
// is not a simple step-index sequence to resume from, so graph-mode
// resume is rejected rather than guessed at (see DESIGN.md).
func (d *Driver) runFromCheckpoint(ctx context.Context, def *Definition, dctx *engine.Context) error {
	if def.IsGraph() {
		return fmt.Errorf("pipeline: resume is not supported for graph-mode pipelines")
	}

	meta, data, ok, err := d.Checkpoints.Load()
	if err != nil {
		return fmt.Errorf("pipeline: load checkpoint: %w", err)
	}
	if !ok {
		return fmt.Errorf("pipeline: resume requested but no checkpoint exists")
	}

	for k, v := range meta.Vars {
		dctx.Vars[k] = v
	}
	dctx.SetData(data)
	for _, r := range meta.Results {
		dctx.Results = append(dctx.Results, engine.StepRecord{
			Index: r.Index, StepType: r.StepType, NodeID: r.NodeID,
			Rows: r.Rows, Duration: time.Duration(r.Duration) * time.Millisecond, Error: r.Error,
		})
	}

	if meta.CompletedStep+1 >= len(def.Steps) {
		return nil
	}
	remaining := def.Steps[meta.CompletedStep+1:]

	onError := def.OnError
	if onError == "" {
		onError = engine.OnErrorStop
	}

	exec := engine.NewExecutor(d.Registry)
	for i, s := range remaining {
		idx := meta.CompletedStep + 1 + i
		nodeID := fmt.Sprintf("s%d_%s", idx, s.Type)

		inst, err := d.Registry.New(s.Type, s.Config)
		if err != nil {
			return fmt.Errorf("pipeline: resume: %w", err)
		}
		sctx := &step.Context{
			Data:         dctx.Data,
			Vars:         dctx.Vars,
			PipelineName: dctx.PipelineName,
			Run: func(ctx context.Context, steps []step.Spec, data row.Dataset, vars map[string]any) (row.Dataset, error) {
				return exec.RunSubPipeline(ctx, steps, data, vars)
			},
		}

		start := time.Now()
		out, runErr := inst.Execute(ctx, sctx)
		duration := time.Since(start)
		rec := engine.StepRecord{Index: idx, StepType: s.Type, NodeID: nodeID, Duration: duration}

		if runErr != nil {
			rec.Error = runErr.Error()
			if onError == engine.OnErrorSkip {
				rec.Rows = len(dctx.Data)
				dctx.Results = append(dctx.Results, rec)
				continue
			}
			dctx.Results = append(dctx.Results, rec)
			return &engine.StepError{NodeID: nodeID, StepType: s.Type, Err: runErr}
		}

		for k, v := range sctx.Vars {
			dctx.Vars[k] = v
		}
		dctx.SetData(out)
		rec.Rows = len(out)
		dctx.Results = append(dctx.Results, rec)
	}
	return nil
}

func toStepRecordJSON(records []engine.StepRecord) []store.StepRecordJSON {
	out := make([]store.StepRecordJSON, len(records))
	for i, r := range records {
		out[i] = store.StepRecordJSON{
			Index: r.Index, StepType: r.StepType, NodeID: r.NodeID,
			Rows: r.Rows, Duration: r.Duration.Milliseconds(), Error: r.Error,
		}
	}
	return out
}
