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

// Package file implements the `file` step: read, write, or glob JSON,
// CSV, and text files. Glob patterns support brace/alternation groups
// via bmatcuk/doublestar/v4, matching the teacher's path-matching choice
// for workflow file triggers.
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "file"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		IsSource:        true,
		Description:     "Read, write, or glob JSON/CSV/text files.",
		ConfigDocs: map[string]string{
			"action": "read, write, or glob",
			"path":   "file path (read/write) or glob pattern (glob)",
			"format": "json, csv, or text",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(_ context.Context, sctx *step.Context) (row.Dataset, error) {
	action := cfg.String(s.config, "action", "read")
	path := cfg.String(s.config, "path", "")
	format := cfg.String(s.config, "format", "json")

	switch action {
	case "read":
		return readFile(path, format)
	case "write":
		if err := writeFile(sctx.Data, path, format); err != nil {
			return nil, err
		}
		return sctx.Data, nil
	case "glob":
		return globFiles(path)
	default:
		return nil, fmt.Errorf("file: unknown action %q", action)
	}
}

func readFile(path, format string) (row.Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", path, err)
	}
	switch format {
	case "json":
		return parseJSON(b)
	case "csv":
		return parseCSV(b)
	case "text":
		lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
		out := make(row.Dataset, len(lines))
		for i, l := range lines {
			r := row.NewRow()
			r.Set("line", row.String(l))
			out[i] = r
		}
		return out, nil
	}
	return nil, fmt.Errorf("file: unknown format %q", format)
}

func parseJSON(b []byte) (row.Dataset, error) {
	var arr []map[string]any
	if err := json.Unmarshal(b, &arr); err != nil {
		var single map[string]any
		if err2 := json.Unmarshal(b, &single); err2 != nil {
			return nil, fmt.Errorf("file: json parse: %w", err)
		}
		return row.Dataset{row.NewRowFromMap(single)}, nil
	}
	out := make(row.Dataset, len(arr))
	for i, m := range arr {
		out[i] = row.NewRowFromMap(m)
	}
	return out, nil
}

func parseCSV(b []byte) (row.Dataset, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("file: csv parse: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	out := make(row.Dataset, 0, len(records)-1)
	for _, rec := range records[1:] {
		nr := row.NewRow()
		for i, h := range header {
			if i < len(rec) {
				nr.Set(h, row.String(rec[i]))
			}
		}
		out = append(out, nr)
	}
	return out, nil
}

func writeFile(d row.Dataset, path, format string) error {
	switch format {
	case "json":
		out := make([]map[string]any, len(d))
		for i, r := range d {
			out[i] = r.AsMap()
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("file: json marshal: %w", err)
		}
		return os.WriteFile(path, b, 0o644)
	case "csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("file: create %s: %w", path, err)
		}
		defer f.Close()
		w := csv.NewWriter(f)
		defer w.Flush()
		if len(d) == 0 {
			return nil
		}
		header := d[0].Names()
		if err := w.Write(header); err != nil {
			return err
		}
		for _, r := range d {
			rec := make([]string, len(header))
			for i, h := range header {
				rec[i] = fmt.Sprintf("%v", r.Get(h).AsAny())
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	case "text":
		var sb strings.Builder
		for _, r := range d {
			sb.WriteString(r.Get("line").Str())
			sb.WriteByte('\n')
		}
		return os.WriteFile(path, []byte(sb.String()), 0o644)
	}
	return fmt.Errorf("file: unknown format %q", format)
}

func globFiles(pattern string) (row.Dataset, error) {
	base, pat := doublestar.SplitPattern(pattern)
	fsys := os.DirFS(base)
	matches, err := doublestar.Glob(fsys, pat)
	if err != nil {
		return nil, fmt.Errorf("file: glob %s: %w", pattern, err)
	}
	out := make(row.Dataset, len(matches))
	for i, m := range matches {
		full := filepath.Join(base, m)
		info, err := os.Stat(full)
		r := row.NewRow()
		r.Set("path", row.String(full))
		if err == nil {
			r.Set("size", row.Int(info.Size()))
		}
		out[i] = r
	}
	return out, nil
}
