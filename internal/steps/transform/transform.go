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

// Package transform implements the `transform` step: row-level ops then
// collection ops, in the fixed order flatten, select, rename, filter,
// compute, sort, dedupe, limit (spec.md §4.3).
package transform

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/riverdag/riverdag/internal/expr"
	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "transform"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy:   "sync",
		Fusable:           true,
		Streaming:         step.StreamingConditional,
		StreamingBreakers: map[string]bool{"sort": true, "dedupe": true, "limit": true},
		Description:       "Apply row-level then collection operations to a dataset.",
		ConfigDocs: map[string]string{
			"select":  "fields to keep, in order",
			"rename":  "map of old field name -> new field name",
			"filter":  "boolean expression; truthy keeps the row",
			"compute": "map of new field name -> expression",
			"flatten": "list of list-valued fields to explode into one row per element",
			"sort":    "\"field\" or \"field desc\" (comma-separated for multiple keys)",
			"dedupe":  "list of fields defining row identity for deduplication",
			"limit":   "maximum number of rows to keep",
		},
	}, New)
}

// Step implements the transform operation; it is also reused directly
// by the engine's "_fused" node dispatch (one Step per contained op).
type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	return Apply(sctx.Data, s.config)
}

func (s *Step) SupportsStreaming() bool {
	for k := range s.config {
		if k == "sort" || k == "dedupe" || k == "limit" {
			return false
		}
	}
	return true
}

func (s *Step) ExecuteStream(ctx context.Context, sctx *step.Context) (<-chan step.StreamItem, error) {
	out := make(chan step.StreamItem)
	go func() {
		defer close(out)
		result, err := s.Execute(ctx, sctx)
		if err != nil {
			out <- step.StreamItem{Err: err}
			return
		}
		for _, r := range result {
			select {
			case out <- step.StreamItem{Row: r}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Apply runs the eight transform ops over d in the fixed spec order.
func Apply(d row.Dataset, config map[string]any) (row.Dataset, error) {
	var err error
	if d, err = applyFlatten(d, config); err != nil {
		return nil, err
	}
	if d, err = applySelect(d, config); err != nil {
		return nil, err
	}
	if d, err = applyRename(d, config); err != nil {
		return nil, err
	}
	if d, err = applyFilter(d, config); err != nil {
		return nil, err
	}
	if d, err = applyCompute(d, config); err != nil {
		return nil, err
	}
	if d, err = applySort(d, config); err != nil {
		return nil, err
	}
	if d, err = applyDedupe(d, config); err != nil {
		return nil, err
	}
	d = applyLimit(d, config)
	return d, nil
}

func applyFlatten(d row.Dataset, config map[string]any) (row.Dataset, error) {
	fields := cfg.Strings(config, "flatten")
	if len(fields) == 0 {
		return d, nil
	}
	out := make(row.Dataset, 0, len(d))
	for _, r := range d {
		elems := [][]row.Value{}
		for _, f := range fields {
			v := r.Get(f)
			if v.Kind() == row.KindList {
				elems = append(elems, v.List())
			}
		}
		if len(elems) == 0 {
			out = append(out, r)
			continue
		}
		n := len(elems[0])
		for i := 0; i < n; i++ {
			nr := r.Clone()
			for fi, f := range fields {
				if fi < len(elems) && i < len(elems[fi]) {
					nr.Set(f, elems[fi][i])
				}
			}
			out = append(out, nr)
		}
	}
	return out, nil
}

func applySelect(d row.Dataset, config map[string]any) (row.Dataset, error) {
	fields := cfg.Strings(config, "select")
	if len(fields) == 0 {
		return d, nil
	}
	out := make(row.Dataset, len(d))
	for i, r := range d {
		out[i] = r.Project(fields)
	}
	return out, nil
}

func applyRename(d row.Dataset, config map[string]any) (row.Dataset, error) {
	renames := cfg.StringMap(config, "rename")
	if len(renames) == 0 {
		return d, nil
	}
	out := make(row.Dataset, len(d))
	for i, r := range d {
		nr := row.NewRow()
		for _, name := range r.Names() {
			target := name
			if to, ok := renames[name]; ok {
				target = to
			}
			nr.Set(target, r.Get(name))
		}
		out[i] = nr
	}
	return out, nil
}

func applyFilter(d row.Dataset, config map[string]any) (row.Dataset, error) {
	src, ok := config["filter"].(string)
	if !ok || src == "" {
		return d, nil
	}
	e, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("transform: invalid filter expression: %w", err)
	}
	out := make(row.Dataset, 0, len(d))
	for _, r := range d {
		if e.Filter(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func applyCompute(d row.Dataset, config map[string]any) (row.Dataset, error) {
	computes := cfg.StringMap(config, "compute")
	if len(computes) == 0 {
		return d, nil
	}
	// Deterministic evaluation order, e.g. so one computed field can
	// reference another computed earlier in name-sorted order.
	names := make([]string, 0, len(computes))
	for k := range computes {
		names = append(names, k)
	}
	sort.Strings(names)
	compiled := make(map[string]*expr.Expr, len(names))
	for _, name := range names {
		e, err := expr.Compile(computes[name])
		if err != nil {
			return nil, fmt.Errorf("transform: invalid compute expression for %q: %w", name, err)
		}
		compiled[name] = e
	}
	out := make(row.Dataset, len(d))
	for i, r := range d {
		nr := r.Clone()
		for _, name := range names {
			nr.Set(name, compiled[name].Eval(nr))
		}
		out[i] = nr
	}
	return out, nil
}

func applySort(d row.Dataset, config map[string]any) (row.Dataset, error) {
	spec, ok := config["sort"].(string)
	if !ok || spec == "" {
		return d, nil
	}
	type key struct {
		field string
		desc  bool
	}
	var keys []key
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		k := key{field: fields[0]}
		if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
			k.desc = true
		}
		keys = append(keys, k)
	}
	out := make(row.Dataset, len(d))
	copy(out, d)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range keys {
			a, b := out[i].Get(k.field), out[j].Get(k.field)
			if a.Equal(b) {
				continue
			}
			if k.desc {
				return b.Less(a)
			}
			return a.Less(b)
		}
		return false
	})
	return out, nil
}

func applyDedupe(d row.Dataset, config map[string]any) (row.Dataset, error) {
	fields := cfg.Strings(config, "dedupe")
	if !cfg.Has(config, "dedupe") {
		return d, nil
	}
	seen := map[string]bool{}
	out := make(row.Dataset, 0, len(d))
	for _, r := range d {
		key := dedupeKey(r, fields)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, nil
}

func dedupeKey(r *row.Row, fields []string) string {
	names := fields
	if len(names) == 0 {
		names = r.Names()
	}
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString(n)
		sb.WriteByte('=')
		fmt.Fprintf(&sb, "%v", r.Get(n).AsAny())
		sb.WriteByte('\x1f')
	}
	return sb.String()
}

func applyLimit(d row.Dataset, config map[string]any) row.Dataset {
	n := cfg.Int(config, "limit", -1)
	if n < 0 || n >= len(d) {
		return d
	}
	return d[:n]
}
