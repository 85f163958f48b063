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
	"time"

	"github.com/riverdag/riverdag/internal/engine"
)

// StepTiming is one step's wall-clock duration from a completed run.
type StepTiming struct {
	NodeID   string
	StepType string
	Duration time.Duration
}

// StepTimings returns a per-step wall-clock breakdown of dctx's
// accumulated results, in completion order. Supplements the aggregate
// total_duration_ms metric with the per-node granularity the
// benchmark harnesses this spec was distilled from reported via a
// --profile-style summary.
func StepTimings(dctx *engine.Context) []StepTiming {
	out := make([]StepTiming, len(dctx.Results))
	for i, r := range dctx.Results {
		out[i] = StepTiming{NodeID: r.NodeID, StepType: r.StepType, Duration: r.Duration}
	}
	return out
}
