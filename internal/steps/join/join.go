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

// Package join implements the `join` step: a hash join against a right
// dataset supplied either as a secondary DAG input (port "input_1") or
// inline in config, with inner/left/outer modes and optional right-side
// projection and field prefixing.
package join

import (
	"context"
	"fmt"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "join"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		Description:     "Hash-join the primary dataset against a right-hand dataset.",
		ConfigDocs: map[string]string{
			"right":        "inline right-hand dataset (list of field maps); ignored if a secondary DAG input is present",
			"right_table":  "same as right, alternate key accepted for readability",
			"on":           "join key field, when the same name appears on both sides",
			"left_on":      "left-side join key field",
			"right_on":     "right-side join key field",
			"how":          "inner (default), left, or outer",
			"select_right": "fields to keep from the right row (default: all)",
			"prefix_right": "prefix applied to kept right-side field names",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	right := rightDataset(sctx, s.config)
	return Apply(sctx.Data, right, s.config)
}

func rightDataset(sctx *step.Context, config map[string]any) row.Dataset {
	if sctx != nil && sctx.Inputs != nil {
		if d, ok := sctx.Inputs["input_1"]; ok {
			return d
		}
	}
	inline := config["right"]
	if inline == nil {
		inline = config["right_table"]
	}
	list, ok := inline.([]any)
	if !ok {
		return nil
	}
	out := make(row.Dataset, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, row.NewRowFromMap(m))
	}
	return out
}

// Apply joins left against right using config's key/mode/projection
// settings.
func Apply(left, right row.Dataset, config map[string]any) (row.Dataset, error) {
	leftOn := cfg.String(config, "left_on", cfg.String(config, "on", ""))
	rightOn := cfg.String(config, "right_on", cfg.String(config, "on", ""))
	if leftOn == "" || rightOn == "" {
		return nil, fmt.Errorf("join: requires \"on\" or both \"left_on\" and \"right_on\"")
	}
	how := cfg.String(config, "how", "inner")
	selectRight := cfg.Strings(config, "select_right")
	prefix := cfg.String(config, "prefix_right", "")

	index := map[string][]*row.Row{}
	for _, r := range right {
		k := fmt.Sprintf("%v", r.Get(rightOn).AsAny())
		index[k] = append(index[k], r)
	}
	matchedRight := map[*row.Row]bool{}

	out := row.Dataset{}
	for _, l := range left {
		k := fmt.Sprintf("%v", l.Get(leftOn).AsAny())
		matches := index[k]
		if len(matches) == 0 {
			if how == "left" || how == "outer" {
				out = append(out, mergeRow(l, nil, selectRight, prefix))
			}
			continue
		}
		for _, r := range matches {
			matchedRight[r] = true
			out = append(out, mergeRow(l, r, selectRight, prefix))
		}
	}
	if how == "outer" {
		for _, r := range right {
			if !matchedRight[r] {
				out = append(out, mergeRow(nil, r, selectRight, prefix))
			}
		}
	}
	return out, nil
}

func mergeRow(l, r *row.Row, selectRight []string, prefix string) *row.Row {
	nr := row.NewRow()
	if l != nil {
		for _, n := range l.Names() {
			nr.Set(n, l.Get(n))
		}
	}
	if r != nil {
		names := selectRight
		if len(names) == 0 {
			names = r.Names()
		}
		for _, n := range names {
			nr.Set(prefix+n, r.Get(n))
		}
	}
	return nr
}
