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

// Package load implements the `load` step: writes a dataset to SQLite,
// CSV, JSON, or stdout. The SQLite sink runs in WAL mode with
// insert/upsert/replace write modes and batched execution, via
// modernc.org/sqlite's pure-Go driver (no cgo).
package load

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "load"

const defaultBatchSize = 500

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy:   "sync",
		Streaming:         step.StreamingConditional,
		StreamingBreakers: map[string]bool{},
		Description:       "Write the dataset to a SQLite table, CSV/JSON file, or stdout.",
		ConfigDocs: map[string]string{
			"target":     "sqlite:<path>, csv:<path>, json:<path>, or stdout",
			"table":      "SQLite table name",
			"mode":       "insert (default), upsert, or replace",
			"key":        "conflict key field(s) for upsert, comma-separated",
			"batch_size": "rows per SQLite executemany batch (default 500)",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	if err := Apply(ctx, sctx.Data, s.config); err != nil {
		return nil, err
	}
	return sctx.Data, nil
}

// Apply dispatches to the sink implied by the target URI's scheme.
func Apply(ctx context.Context, d row.Dataset, config map[string]any) error {
	target := cfg.String(config, "target", "stdout")
	switch {
	case target == "stdout":
		return writeStdout(d)
	case strings.HasPrefix(target, "sqlite:"):
		return writeSQLite(ctx, d, strings.TrimPrefix(target, "sqlite:"), config)
	case strings.HasPrefix(target, "csv:"):
		return writeCSV(d, strings.TrimPrefix(target, "csv:"))
	case strings.HasPrefix(target, "json:"):
		return writeJSON(d, strings.TrimPrefix(target, "json:"))
	default:
		return fmt.Errorf("load: unsupported target %q", target)
	}
}

func writeStdout(d row.Dataset) error {
	enc := json.NewEncoder(os.Stdout)
	for _, r := range d {
		if err := enc.Encode(r.AsMap()); err != nil {
			return fmt.Errorf("load: stdout write: %w", err)
		}
	}
	return nil
}

func writeJSON(d row.Dataset, path string) error {
	out := make([]map[string]any, len(d))
	for i, r := range d {
		out[i] = r.AsMap()
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("load: json marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("load: json write %s: %w", path, err)
	}
	return nil
}

func writeCSV(d row.Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("load: csv create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if len(d) == 0 {
		return nil
	}
	header := d[0].Names()
	if err := w.Write(header); err != nil {
		return fmt.Errorf("load: csv header: %w", err)
	}
	for _, r := range d {
		rec := make([]string, len(header))
		for i, name := range header {
			rec[i] = csvCell(r.Get(name))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("load: csv row: %w", err)
		}
	}
	return nil
}

func csvCell(v row.Value) string {
	switch v.Kind() {
	case row.KindNull:
		return ""
	case row.KindString:
		return v.Str()
	default:
		b, err := json.Marshal(v.AsAny())
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

func writeSQLite(ctx context.Context, d row.Dataset, dsn string, config map[string]any) error {
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("load: open sqlite %s: %w", dsn, err)
	}
	defer db.Close()

	table := cfg.String(config, "table", "data")
	mode := cfg.String(config, "mode", "insert")
	key := cfg.String(config, "key", "")
	batchSize := cfg.Int(config, "batch_size", defaultBatchSize)
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if len(d) == 0 {
		return nil
	}

	cols := d[0].Names()
	if err := ensureTable(ctx, db, table, cols); err != nil {
		return err
	}

	stmt := insertStatement(table, cols, mode, key)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("load: begin tx: %w", err)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("load: prepare: %w", err)
	}
	defer prepared.Close()

	for i, r := range d {
		args := make([]any, len(cols))
		for ci, c := range cols {
			args[ci] = r.Get(c).AsAny()
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("load: insert row %d: %w", i, err)
		}
		if (i+1)%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("load: commit batch: %w", err)
			}
			tx, err = db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("load: begin tx: %w", err)
			}
			prepared, err = tx.PrepareContext(ctx, stmt)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("load: prepare: %w", err)
			}
		}
	}
	return tx.Commit()
}

func ensureTable(ctx context.Context, db *sql.DB, table string, cols []string) error {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table, strings.Join(quoted, ", "))
	_, err := db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("load: create table %s: %w", table, err)
	}
	return nil
}

func insertStatement(table string, cols []string, mode, key string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
	}
	verb := "INSERT"
	switch mode {
	case "replace":
		verb = "INSERT OR REPLACE"
	case "upsert":
		if key != "" {
			isKey := map[string]bool{}
			var quotedKeys []string
			for _, k := range strings.Split(key, ",") {
				k = strings.TrimSpace(k)
				isKey[k] = true
				quotedKeys = append(quotedKeys, fmt.Sprintf("%q", k))
			}
			sets := make([]string, 0, len(cols))
			for _, c := range cols {
				if isKey[c] {
					continue
				}
				sets = append(sets, fmt.Sprintf("%q=excluded.%q", c, c))
			}
			return fmt.Sprintf(
				"INSERT INTO %q (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
				table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "), strings.Join(quotedKeys, ", "), strings.Join(sets, ", "),
			)
		}
		verb = "INSERT OR REPLACE"
	}
	return fmt.Sprintf("%s INTO %q (%s) VALUES (%s)", verb, table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}
