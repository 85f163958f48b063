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

// Package clean implements the `clean` step: row-level normalization
// (coerce, default fill, trim/lower/upper, replace, rename, drop rows
// with null/empty fields). Every op is independent of row order, so the
// step always supports streaming.
package clean

import (
	"context"
	"strconv"
	"strings"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "clean"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		Fusable:         true,
		Streaming:       step.StreamingAlways,
		Description:     "Row-level normalization: coerce, fill defaults, trim/case, replace, rename, drop null/empty rows.",
		ConfigDocs: map[string]string{
			"coerce":      "map of field -> target type (int, float, string, bool)",
			"defaults":    "map of field -> default value used when the field is null or absent",
			"trim":        "fields to strip leading/trailing whitespace from",
			"lowercase":   "fields to lowercase",
			"uppercase":   "fields to uppercase",
			"replace":     "map of field -> {old: new} substring replacements",
			"drop_nulls":  "fields that must be non-null; rows missing any are dropped",
			"drop_empty":  "fields that must be a non-empty string; rows failing are dropped",
			"rename":      "map of old field name -> new field name, applied last",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	return Apply(sctx.Data, s.config), nil
}

func (s *Step) SupportsStreaming() bool { return true }

func (s *Step) ExecuteStream(ctx context.Context, sctx *step.Context) (<-chan step.StreamItem, error) {
	out := make(chan step.StreamItem)
	go func() {
		defer close(out)
		for _, r := range sctx.Data {
			cleaned, ok := cleanRow(r, s.config)
			if !ok {
				continue
			}
			select {
			case out <- step.StreamItem{Row: cleaned}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Apply runs coerce, defaults, trim, lowercase, uppercase, replace,
// drop_nulls, drop_empty, then rename over every row.
func Apply(d row.Dataset, config map[string]any) row.Dataset {
	out := make(row.Dataset, 0, len(d))
	for _, r := range d {
		if cleaned, ok := cleanRow(r, config); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

func cleanRow(r *row.Row, config map[string]any) (*row.Row, bool) {
	nr := r.Clone()

	for f, target := range cfg.StringMap(config, "coerce") {
		nr.Set(f, coerce(nr.Get(f), target))
	}
	if defaults := cfg.Map(config, "defaults"); len(defaults) > 0 {
		for f, def := range defaults {
			if !nr.Has(f) || nr.Get(f).IsNull() {
				nr.Set(f, row.FromAny(def))
			}
		}
	}
	for _, f := range cfg.Strings(config, "trim") {
		if nr.Get(f).Kind() == row.KindString {
			nr.Set(f, row.String(strings.TrimSpace(nr.Get(f).Str())))
		}
	}
	for _, f := range cfg.Strings(config, "lowercase") {
		if nr.Get(f).Kind() == row.KindString {
			nr.Set(f, row.String(strings.ToLower(nr.Get(f).Str())))
		}
	}
	for _, f := range cfg.Strings(config, "uppercase") {
		if nr.Get(f).Kind() == row.KindString {
			nr.Set(f, row.String(strings.ToUpper(nr.Get(f).Str())))
		}
	}
	if replaces := cfg.Map(config, "replace"); len(replaces) > 0 {
		for f, spec := range replaces {
			if nr.Get(f).Kind() != row.KindString {
				continue
			}
			pairs, ok := spec.(map[string]any)
			if !ok {
				continue
			}
			s := nr.Get(f).Str()
			for old, newV := range pairs {
				s = strings.ReplaceAll(s, old, fmtAny(newV))
			}
			nr.Set(f, row.String(s))
		}
	}
	for _, f := range cfg.Strings(config, "drop_nulls") {
		if !nr.Has(f) || nr.Get(f).IsNull() {
			return nil, false
		}
	}
	for _, f := range cfg.Strings(config, "drop_empty") {
		v := nr.Get(f)
		if v.Kind() != row.KindString || v.Str() == "" {
			return nil, false
		}
	}
	for old, newName := range cfg.StringMap(config, "rename") {
		if nr.Has(old) {
			v := nr.Get(old)
			nr.Delete(old)
			nr.Set(newName, v)
		}
	}
	return nr, true
}

func fmtAny(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func coerce(v row.Value, target string) row.Value {
	switch target {
	case "int":
		switch v.Kind() {
		case row.KindInt:
			return v
		case row.KindFloat:
			return row.Int(int64(v.Float()))
		case row.KindBool:
			if v.Bool() {
				return row.Int(1)
			}
			return row.Int(0)
		case row.KindString:
			if i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64); err == nil {
				return row.Int(i)
			}
		}
		return v
	case "float":
		switch v.Kind() {
		case row.KindFloat:
			return v
		case row.KindInt:
			return row.Float(float64(v.Int()))
		case row.KindString:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64); err == nil {
				return row.Float(f)
			}
		}
		return v
	case "string":
		if v.Kind() == row.KindString {
			return v
		}
		switch v.Kind() {
		case row.KindInt:
			return row.String(strconv.FormatInt(v.Int(), 10))
		case row.KindFloat:
			return row.String(strconv.FormatFloat(v.Float(), 'g', -1, 64))
		case row.KindBool:
			return row.String(strconv.FormatBool(v.Bool()))
		case row.KindNull:
			return row.String("")
		}
		return v
	case "bool":
		if v.Kind() == row.KindBool {
			return v
		}
		return row.Bool(v.Truthy())
	}
	return v
}
