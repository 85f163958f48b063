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

// Package guard implements the `guard` step: a JIDOKA-style data-quality
// checkpoint that validates schema, required fields, row-count range,
// and no-null fields, with an optional "andon" comparison against
// historical run averages. Never fusable — a guard must see the exact
// dataset the upstream step produced.
package guard

import (
	"context"
	"fmt"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "guard"

// GuardError reports a failed data-quality check; guard steps return it
// directly as a *GuardError, so callers can tell guard failures apart
// from other step errors with errors.As.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string { return "guard: " + e.Reason }

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		Fusable:         false,
		Description:     "Validate schema, required fields, row count, and null constraints.",
		ConfigDocs: map[string]string{
			"schema":          "map of field -> expected type (int, float, string, bool, list, dict)",
			"required":        "fields that must be present in every row",
			"expect_rows":     "[min, max] row-count range",
			"expect_no_nulls": "fields that must never be null",
			"andon":           "map with \"field\", \"tolerance\" (fraction) vs a supplied \"baseline\" average",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	if err := CheckWithVars(sctx.Data, s.config, sctx.Vars); err != nil {
		return nil, err
	}
	return sctx.Data, nil
}

// Check runs every configured validation over d, returning the first
// failure as a *GuardError.
func Check(d row.Dataset, config map[string]any) error {
	return CheckWithVars(d, config, nil)
}

// CheckWithVars is Check, additionally consulting vars for an
// andon baseline the driver injected from the metrics store
// ("_andon_baseline_rows"/"_andon_baseline_count", spec.md §4.7/§8
// Scenario 6) when the andon config itself carries no inline
// "baseline".
func CheckWithVars(d row.Dataset, config map[string]any, vars map[string]any) error {
	if lo, hi, ok := expectRows(config); ok {
		if len(d) < lo || (hi >= 0 && len(d) > hi) {
			return &GuardError{Reason: fmt.Sprintf("row count %d outside expected range [%d, %d]", len(d), lo, hi)}
		}
	}
	required := cfg.Strings(config, "required")
	noNulls := cfg.Strings(config, "expect_no_nulls")
	schema := cfg.Map(config, "schema")

	for i, r := range d {
		for _, f := range required {
			if !r.Has(f) {
				return &GuardError{Reason: fmt.Sprintf("row %d missing required field %q", i, f)}
			}
		}
		for _, f := range noNulls {
			if r.Get(f).IsNull() {
				return &GuardError{Reason: fmt.Sprintf("row %d has null value for %q", i, f)}
			}
		}
		for f, want := range schema {
			wantType, ok := want.(string)
			if !ok {
				continue
			}
			if !r.Has(f) {
				continue
			}
			if !kindMatches(r.Get(f).Kind(), wantType) {
				return &GuardError{Reason: fmt.Sprintf("row %d field %q expected type %q, got %s", i, f, wantType, r.Get(f).Kind())}
			}
		}
	}

	if raw, present := config["andon"]; present {
		if err := checkAndonConfig(d, raw, vars); err != nil {
			return err
		}
	}
	return nil
}

// checkAndonConfig dispatches on the andon config's shape: a bare
// "andon: true" compares the current row count against the historical
// average row count the driver injected into vars (spec.md §8 Scenario
// 6); a map form compares a named field's average against an inline
// baseline (spec.md §4.3 "andon: map with field/tolerance vs a supplied
// baseline").
func checkAndonConfig(d row.Dataset, raw any, vars map[string]any) error {
	switch v := raw.(type) {
	case bool:
		if !v {
			return nil
		}
		return checkAndonRowCount(d, defaultAndonTolerance, vars)
	case map[string]any:
		if _, hasField := v["field"]; hasField {
			return checkAndon(d, v)
		}
		tolerance := defaultAndonTolerance
		if t, ok := v["tolerance"].(float64); ok {
			tolerance = t
		}
		return checkAndonRowCount(d, tolerance, vars)
	default:
		return nil
	}
}

// defaultAndonTolerance is the fraction-deviation threshold used when an
// andon check specifies none explicitly; spec.md §7 calls out "andon
// deviation >= 50% vs window average" as the fatal condition.
const defaultAndonTolerance = 0.5

// checkAndonRowCount compares the current dataset's row count against
// the historical per-pipeline average the driver records into vars as
// "_andon_baseline_rows"/"_andon_baseline_count" before running the DAG
// (internal/pipeline.Driver). With no prior runs (count < 1) the check
// is silently skipped — there is no baseline to compare against yet.
func checkAndonRowCount(d row.Dataset, tolerance float64, vars map[string]any) error {
	baselineRows, ok := vars["_andon_baseline_rows"].(float64)
	count, _ := vars["_andon_baseline_count"].(int)
	if !ok || count < 1 || baselineRows == 0 {
		return nil
	}
	current := float64(len(d))
	deviation := (current - baselineRows) / baselineRows
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation >= tolerance {
		return &GuardError{Reason: fmt.Sprintf("andon: row count %d deviates %.1f%% from historical average %.1f (tolerance %.1f%%)", len(d), deviation*100, baselineRows, tolerance*100)}
	}
	return nil
}

func expectRows(config map[string]any) (lo, hi int, ok bool) {
	v, present := config["expect_rows"]
	if !present {
		return 0, -1, false
	}
	list, isList := v.([]any)
	if !isList || len(list) != 2 {
		return 0, -1, false
	}
	lo = asInt(list[0], 0)
	hi = asInt(list[1], -1)
	return lo, hi, true
}

func asInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return def
}

func kindMatches(k row.Kind, want string) bool {
	switch want {
	case "int":
		return k == row.KindInt
	case "float":
		return k == row.KindFloat || k == row.KindInt
	case "string":
		return k == row.KindString
	case "bool":
		return k == row.KindBool
	case "list":
		return k == row.KindList
	case "dict":
		return k == row.KindRow
	}
	return true
}

func checkAndon(d row.Dataset, andon map[string]any) error {
	field, _ := andon["field"].(string)
	if field == "" {
		return nil
	}
	tolerance := 0.2
	if t, ok := andon["tolerance"].(float64); ok {
		tolerance = t
	}
	baseline, ok := andon["baseline"].(float64)
	if !ok {
		return nil
	}
	var sum float64
	var n int
	for _, r := range d {
		if f, ok := r.Get(field).Numeric(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	deviation := (avg - baseline) / baseline
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > tolerance {
		return &GuardError{Reason: fmt.Sprintf("andon: %q average %.4f deviates %.2f%% from baseline %.4f (tolerance %.2f%%)", field, avg, deviation*100, baseline, tolerance*100)}
	}
	return nil
}
