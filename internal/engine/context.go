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

// Package engine implements the DAG executor (spec.md §4.6): it
// traverses an optimized ExecutionDAG level by level, dispatching
// independent nodes within a level concurrently, and feeds each node's
// output into its successors.
package engine

import (
	"time"

	"github.com/riverdag/riverdag/internal/row"
)

// StepRecord is one entry of Context.Results: spec.md §3's per-step
// outcome record.
type StepRecord struct {
	Index    int
	StepType string
	NodeID   string
	Rows     int
	Duration time.Duration
	Error    string
}

// Context is the driver-level run context (spec.md §3): the current
// dataset, named vars (including the reserved "_pipeline_name"), and
// the ordered list of step outcomes accumulated across the run. It is
// mutated sequentially by the driver and, after each node completes, by
// the executor merging that node's var writes back in.
type Context struct {
	Data         row.Dataset
	Vars         map[string]any
	PipelineName string
	Results      []StepRecord

	// MemoryPeakBytes is a best-effort estimate of the largest dataset
	// materialized during the run, used by the driver's metrics record.
	MemoryPeakBytes int64
	// PeakBufferRows is the largest number of rows any single node
	// produced, surfaced in the metrics record (spec.md §6).
	PeakBufferRows int
	// Streaming is the run's streaming-mode flag; informational only.
	// The executor does not set it.
	Streaming bool
	// JITSkipped counts steps whose output hash matched the prior run's
	// hash for the same pipeline+step position (spec.md §4.7).
	JITSkipped int
}

// NewContext creates a run context seeded with vars and the reserved
// "_pipeline_name" var.
func NewContext(pipelineName string, vars map[string]any) *Context {
	v := make(map[string]any, len(vars)+1)
	for k, val := range vars {
		v[k] = val
	}
	v["_pipeline_name"] = pipelineName
	return &Context{PipelineName: pipelineName, Vars: v}
}

// SetData replaces the context's current dataset (spec.md §3's
// set_data), tracking the peak buffer/memory estimates.
func (c *Context) SetData(d row.Dataset) {
	c.Data = d
	if len(d) > c.PeakBufferRows {
		c.PeakBufferRows = len(d)
	}
	if est := estimateBytes(d); est > c.MemoryPeakBytes {
		c.MemoryPeakBytes = est
	}
}

// estimateBytes returns a rough, non-authoritative memory estimate for
// a dataset, used only for the metrics record's "peak memory estimate"
// field (spec.md §6); it is not intended to reflect actual heap usage.
func estimateBytes(d row.Dataset) int64 {
	const perRowOverhead = 64
	const perFieldOverhead = 32
	var total int64
	for _, r := range d {
		total += perRowOverhead
		for _, name := range r.Names() {
			total += perFieldOverhead + int64(len(name))
			total += valueSize(r.Get(name))
		}
	}
	return total
}

func valueSize(v row.Value) int64 {
	switch v.Kind() {
	case row.KindString:
		return int64(len(v.Str()))
	case row.KindList:
		var sum int64
		for _, e := range v.List() {
			sum += valueSize(e)
		}
		return sum
	case row.KindRow:
		if v.Row() == nil {
			return 0
		}
		var sum int64
		for _, n := range v.Row().Names() {
			sum += valueSize(v.Row().Get(n))
		}
		return sum
	default:
		return 8
	}
}
