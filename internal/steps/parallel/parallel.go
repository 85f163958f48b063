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

// Package parallel implements the `parallel` step: run a list of step
// branches concurrently against the same input dataset and merge their
// outputs by concatenation, positional zip, or into a dict keyed by
// branch index/name.
package parallel

import (
	"context"
	"fmt"
	"sync"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "parallel"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "async",
		Description:     "Run step branches concurrently over the same input and merge their outputs.",
		ConfigDocs: map[string]string{
			"branches": "list of {name?, steps} sub-pipelines, each run against the full input dataset",
			"merge":    "concat (default), zip, or dict",
		},
	}, New)
}

type branchSpec struct {
	name  string
	steps []step.Spec
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	return s.ExecuteAsync(ctx, sctx)
}

func (s *Step) ExecuteAsync(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	branches, err := parseBranches(s.config)
	if err != nil {
		return nil, err
	}
	merge := cfg.String(s.config, "merge", "concat")

	results := make([]row.Dataset, len(branches))
	errs := make([]error, len(branches))
	var wg sync.WaitGroup
	for i, b := range branches {
		wg.Add(1)
		go func(i int, b branchSpec) {
			defer wg.Done()
			if sctx.Run == nil {
				results[i] = sctx.Data
				return
			}
			out, err := sctx.Run(ctx, b.steps, sctx.Data, sctx.Vars)
			if err != nil {
				errs[i] = fmt.Errorf("parallel: branch %q: %w", b.name, err)
				return
			}
			results[i] = out
		}(i, b)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	switch merge {
	case "zip":
		return zipMerge(branches, results), nil
	case "dict":
		return dictMerge(branches, results), nil
	default:
		out := row.Dataset{}
		for _, r := range results {
			out = append(out, r...)
		}
		return out, nil
	}
}

func parseBranches(config map[string]any) ([]branchSpec, error) {
	raw, _ := config["branches"].([]any)
	out := make([]branchSpec, 0, len(raw))
	for i, b := range raw {
		bm, ok := b.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parallel: branch %d must be a map", i)
		}
		name := fmt.Sprintf("branch_%d", i)
		if n, ok := bm["name"].(string); ok && n != "" {
			name = n
		}
		var steps []step.Spec
		stepsRaw, _ := bm["steps"].([]any)
		for _, s := range stepsRaw {
			sm, ok := s.(map[string]any)
			if !ok {
				continue
			}
			typ, _ := sm["step"].(string)
			sc, _ := sm["config"].(map[string]any)
			steps = append(steps, step.Spec{Type: typ, Config: sc})
		}
		out = append(out, branchSpec{name: name, steps: steps})
	}
	return out, nil
}

// zipMerge combines the i-th row of every branch's output into one
// row, namespacing each branch's fields under "<branch_name>.".
func zipMerge(branches []branchSpec, results []row.Dataset) row.Dataset {
	maxLen := 0
	for _, r := range results {
		if len(r) > maxLen {
			maxLen = len(r)
		}
	}
	out := make(row.Dataset, maxLen)
	for i := 0; i < maxLen; i++ {
		nr := row.NewRow()
		for bi, b := range branches {
			if i >= len(results[bi]) {
				continue
			}
			src := results[bi][i]
			for _, name := range src.Names() {
				nr.Set(b.name+"."+name, src.Get(name))
			}
		}
		out[i] = nr
	}
	return out
}

// dictMerge produces a single row whose fields are each branch's name
// mapped to its full output as a list of nested rows.
func dictMerge(branches []branchSpec, results []row.Dataset) row.Dataset {
	nr := row.NewRow()
	for bi, b := range branches {
		vs := make([]row.Value, len(results[bi]))
		for i, r := range results[bi] {
			vs[i] = row.RowValue(r)
		}
		nr.Set(b.name, row.List(vs))
	}
	return row.Dataset{nr}
}
