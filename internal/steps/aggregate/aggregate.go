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

// Package aggregate implements the `aggregate` step: group-by with
// sum/avg/min/max/count/count_distinct aggregate functions, an optional
// having filter, and an optional sort (spec.md §4.3). It escalates to
// the multiprocess strategy above 50k estimated rows (see StrategyFor).
package aggregate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/riverdag/riverdag/internal/expr"
	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "aggregate"

// EscalationThreshold is the estimated-row-count above which this step
// type escalates to the multiprocess strategy (spec.md §4.3).
const EscalationThreshold = 50000

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		Escalations:     []step.Escalation{{Threshold: EscalationThreshold, Strategy: "multiprocess"}},
		Description:     "Group rows and compute aggregate functions, with optional having filter and sort.",
		ConfigDocs: map[string]string{
			"group_by":  "fields to group by",
			"functions": "map of output field -> aggregate expression, e.g. sum(amount)",
			"having":    "boolean expression evaluated against the aggregated row",
			"sort":      "\"field\" or \"field desc\", as in transform",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	return Apply(sctx.Data, s.config)
}

var funcCallRE = regexp.MustCompile(`^\s*(\w+)\s*\(\s*([\w.]*)\s*\)\s*$`)

type aggFunc struct {
	name  string
	field string
}

func parseFunc(src string) (aggFunc, error) {
	m := funcCallRE.FindStringSubmatch(src)
	if m == nil {
		return aggFunc{}, fmt.Errorf("aggregate: invalid function expression %q", src)
	}
	return aggFunc{name: strings.ToLower(m[1]), field: m[2]}, nil
}

// Apply groups d by group_by, computes functions per group, applies an
// optional having filter, and an optional sort.
func Apply(d row.Dataset, config map[string]any) (row.Dataset, error) {
	groupBy := cfg.Strings(config, "group_by")
	functions := cfg.StringMap(config, "functions")

	names := make([]string, 0, len(functions))
	for k := range functions {
		names = append(names, k)
	}
	sort.Strings(names)

	parsed := make(map[string]aggFunc, len(names))
	for _, name := range names {
		f, err := parseFunc(functions[name])
		if err != nil {
			return nil, err
		}
		parsed[name] = f
	}

	type group struct {
		key  string
		keys map[string]row.Value
		rows row.Dataset
	}
	order := []string{}
	groups := map[string]*group{}
	for _, r := range d {
		var sb strings.Builder
		keyVals := make(map[string]row.Value, len(groupBy))
		for _, g := range groupBy {
			v := r.Get(g)
			keyVals[g] = v
			fmt.Fprintf(&sb, "%v\x1f", v.AsAny())
		}
		key := sb.String()
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, keys: keyVals}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, r)
	}

	var havingExpr *expr.Expr
	if src, ok := config["having"].(string); ok && src != "" {
		e, err := expr.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("aggregate: invalid having expression: %w", err)
		}
		havingExpr = e
	}

	out := make(row.Dataset, 0, len(order))
	for _, key := range order {
		g := groups[key]
		nr := row.NewRow()
		for _, gb := range groupBy {
			nr.Set(gb, g.keys[gb])
		}
		for _, name := range names {
			v, err := computeAgg(parsed[name], g.rows)
			if err != nil {
				return nil, err
			}
			nr.Set(name, v)
		}
		if havingExpr != nil && !havingExpr.Filter(nr) {
			continue
		}
		out = append(out, nr)
	}

	if spec, ok := config["sort"].(string); ok && spec != "" {
		out = sortDataset(out, spec)
	}
	return out, nil
}

func computeAgg(f aggFunc, rows row.Dataset) (row.Value, error) {
	switch f.name {
	case "count":
		return row.Int(int64(len(rows))), nil
	case "count_distinct":
		seen := map[string]bool{}
		for _, r := range rows {
			seen[fmt.Sprintf("%v", r.Get(f.field).AsAny())] = true
		}
		return row.Int(int64(len(seen))), nil
	case "sum":
		allInt := true
		var fsum float64
		var isum int64
		for _, r := range rows {
			v := r.Get(f.field)
			nf, ok := v.Numeric()
			if !ok {
				continue
			}
			fsum += nf
			if v.Kind() == row.KindInt {
				isum += v.Int()
			} else {
				allInt = false
			}
		}
		if allInt {
			return row.Int(isum), nil
		}
		return row.Float(fsum), nil
	case "avg":
		var fsum float64
		var n int
		for _, r := range rows {
			if nf, ok := r.Get(f.field).Numeric(); ok {
				fsum += nf
				n++
			}
		}
		if n == 0 {
			return row.Null(), nil
		}
		return row.Float(fsum / float64(n)), nil
	case "min", "max":
		var best row.Value
		has := false
		for _, r := range rows {
			v := r.Get(f.field)
			if v.IsNull() {
				continue
			}
			if !has {
				best = v
				has = true
				continue
			}
			if f.name == "min" && v.Less(best) {
				best = v
			}
			if f.name == "max" && best.Less(v) {
				best = v
			}
		}
		if !has {
			return row.Null(), nil
		}
		return best, nil
	}
	return row.Null(), fmt.Errorf("aggregate: unknown function %q", f.name)
}

func sortDataset(d row.Dataset, spec string) row.Dataset {
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
	return out
}
