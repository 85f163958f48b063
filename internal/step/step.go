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

// Package step defines the per-operation contract every step type
// implements (spec.md §4.3): a batch execution path plus optional
// streaming/async/pooled overrides, an immutable StepMeta descriptor,
// and a name-keyed registry.
package step

import (
	"context"

	"github.com/riverdag/riverdag/internal/row"
)

// Context is the mutable per-node execution context a step runs with.
// Its shape mirrors spec.md §3's Context, trimmed to what a single step
// invocation needs; the engine owns merging results back into the
// driver-level context.
type Context struct {
	Data         row.Dataset
	Vars         map[string]any
	Inputs       map[string]row.Dataset // port name -> dataset, for multi-input nodes
	PipelineName string

	// Run executes a named sub-pipeline (linear steps) against the given
	// dataset, for steps that embed sub-pipelines (branch, parallel).
	// Populated by the engine; nil when a step is run outside that
	// capability (e.g. unit tests that do not need it).
	Run func(ctx context.Context, steps []Spec, data row.Dataset, vars map[string]any) (row.Dataset, error)
}

// SetData replaces the context's primary dataset, mirroring spec.md §3's
// set_data operation.
func (c *Context) SetData(d row.Dataset) { c.Data = d }

// Spec is one (step_type, config) pair, the unit sub-pipelines are built
// from.
type Spec struct {
	Type   string
	Config map[string]any
}

// Step is a unit of work over a dataset.
type Step interface {
	// Execute returns the full output dataset.
	Execute(ctx context.Context, sctx *Context) (row.Dataset, error)
}

// AsyncStep is implemented by steps that override the default
// execute-is-execute_async delegation for I/O-bound work.
type AsyncStep interface {
	ExecuteAsync(ctx context.Context, sctx *Context) (row.Dataset, error)
}

// PooledStep is implemented by steps that override the default
// delegation for CPU-parallel work.
type PooledStep interface {
	ExecutePooled(ctx context.Context, sctx *Context) (row.Dataset, error)
}

// StreamingStep is implemented by steps that can emit rows lazily
// instead of materializing the full output up front.
type StreamingStep interface {
	SupportsStreaming() bool
	ExecuteStream(ctx context.Context, sctx *Context) (<-chan StreamItem, error)
}

// StreamItem is one row (or terminal error) yielded by ExecuteStream.
type StreamItem struct {
	Row *row.Row
	Err error
}

// SchemaStep is implemented by steps that can declare their
// input/output schema without running.
type SchemaStep interface {
	InputSchema() row.DataSchema
	OutputSchema(input row.DataSchema, config map[string]any) row.DataSchema
}

// ExecuteDefault runs a Step through its plain Execute method and
// returns the materialized batch result; strategy-specific interfaces
// (async, stream) are not consulted.
func ExecuteDefault(ctx context.Context, s Step, sctx *Context) (row.Dataset, error) {
	return s.Execute(ctx, sctx)
}
