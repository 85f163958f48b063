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

// Package branch implements the `branch` step: route rows to the first
// matching route (by field value or `when` expression) and run each
// route's sub-pipeline, merging results either by concatenation or by
// keeping only the last route's output.
package branch

import (
	"context"
	"fmt"
	"sort"

	"github.com/riverdag/riverdag/internal/expr"
	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "branch"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		Description:     "Route rows to the first matching route and run each route's sub-pipeline.",
		ConfigDocs: map[string]string{
			"on":     "field whose value selects a route by equality against each route's \"value\"",
			"routes": "map of route name -> {value|when, steps}",
			"merge":  "concat (default) or last",
		},
	}, New)
}

type route struct {
	name  string
	value any
	when  *expr.Expr
	steps []step.Spec
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func parseRoutes(config map[string]any) ([]route, error) {
	raw := cfg.Map(config, "routes")
	names := make([]string, 0, len(raw))
	for n := range raw {
		names = append(names, n)
	}
	// Route order matters for first-match "when" semantics; config maps
	// have no inherent order, so routes are tried in name-sorted order.
	sort.Strings(names)
	routes := make([]route, 0, len(names))
	for _, n := range names {
		rv, ok := raw[n].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("branch: route %q must be a map", n)
		}
		rt := route{name: n}
		if v, ok := rv["value"]; ok {
			rt.value = v
		}
		if whenSrc, ok := rv["when"].(string); ok && whenSrc != "" {
			e, err := expr.Compile(whenSrc)
			if err != nil {
				return nil, fmt.Errorf("branch: route %q invalid when expression: %w", n, err)
			}
			rt.when = e
		}
		stepsRaw, _ := rv["steps"].([]any)
		for _, s := range stepsRaw {
			sm, ok := s.(map[string]any)
			if !ok {
				continue
			}
			typ, _ := sm["step"].(string)
			sc, _ := sm["config"].(map[string]any)
			rt.steps = append(rt.steps, step.Spec{Type: typ, Config: sc})
		}
		routes = append(routes, rt)
	}
	return routes, nil
}

func (s *Step) Execute(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	routes, err := parseRoutes(s.config)
	if err != nil {
		return nil, err
	}
	on := cfg.String(s.config, "on", "")
	merge := cfg.String(s.config, "merge", "concat")

	byRoute := make(map[string]row.Dataset, len(routes))
	for _, r := range routes {
		byRoute[r.name] = nil
	}
	for _, r := range sctx.Data {
		match := matchRoute(r, routes, on)
		if match == "" {
			continue
		}
		byRoute[match] = append(byRoute[match], r)
	}

	var last row.Dataset
	out := row.Dataset{}
	for _, rt := range routes {
		rows := byRoute[rt.name]
		if len(rows) == 0 {
			continue
		}
		result := rows
		if sctx.Run != nil && len(rt.steps) > 0 {
			result, err = sctx.Run(ctx, rt.steps, rows, sctx.Vars)
			if err != nil {
				return nil, fmt.Errorf("branch: route %q: %w", rt.name, err)
			}
		}
		last = result
		out = append(out, result...)
	}
	if merge == "last" {
		return last, nil
	}
	return out, nil
}

func matchRoute(r *row.Row, routes []route, on string) string {
	for _, rt := range routes {
		if rt.when != nil {
			if rt.when.Filter(r) {
				return rt.name
			}
			continue
		}
		if on != "" && rt.value != nil {
			if r.Get(on).Equal(row.FromAny(rt.value)) {
				return rt.name
			}
		}
	}
	return ""
}
