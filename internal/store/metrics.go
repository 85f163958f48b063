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

// Package store implements the external collaborators spec.md §6 names
// as contracts: the metrics relational table, the Kanban JSON document,
// the checkpoint directory, and the JIT-skip hash store. Each is an
// injected resource with explicit open/close lifecycle (spec.md §9
// "Global state"); none of them are process-wide singletons.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// StepRecordJSON is the JSON-serializable shape of one per-step outcome,
// stored in pipeline_runs.steps_json (spec.md §6).
type StepRecordJSON struct {
	Index    int    `json:"index"`
	StepType string `json:"step_type"`
	NodeID   string `json:"node_id"`
	Rows     int    `json:"rows"`
	Duration int64  `json:"duration_ms"`
	Error    string `json:"error,omitempty"`
}

// RunRecord is one row of pipeline_runs (spec.md §6).
type RunRecord struct {
	ID              int64
	PipelineName    string
	PipelineHash    string
	StartedAt       time.Time
	FinishedAt      time.Time
	TotalRows       int
	TotalDuration   time.Duration
	Status          string
	ErrorMessage    string
	Steps           []StepRecordJSON
	MemoryPeakMB    float64
	PeakBufferRows  int
}

// MetricsStore is a single long-lived SQLite connection per pipeline
// run, opened eagerly by OpenMetricsStore (which enables WAL and
// creates the schema) and closed in the terminal scope (spec.md §5
// "single long-lived connection per pipeline run").
type MetricsStore struct {
	db *sql.DB
}

// OpenMetricsStore opens (creating if necessary) the SQLite-backed
// metrics table at path.
func OpenMetricsStore(path string) (*MetricsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open metrics db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline_name TEXT NOT NULL,
	pipeline_hash TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total_rows INTEGER NOT NULL,
	total_duration_ms INTEGER NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	steps_json TEXT NOT NULL,
	memory_peak_mb REAL NOT NULL,
	peak_buffer_rows INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_name ON pipeline_runs(pipeline_name);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &MetricsStore{db: db}, nil
}

// Close releases the underlying connection.
func (m *MetricsStore) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Record persists one run's metrics. Per spec.md §7, metrics
// persistence failures never propagate — callers should treat a
// non-nil error here as best-effort/log-only, never fatal to the
// pipeline result.
func (m *MetricsStore) Record(ctx context.Context, r RunRecord) error {
	stepsJSON, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("store: marshal steps: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
INSERT INTO pipeline_runs
	(pipeline_name, pipeline_hash, started_at, finished_at, total_rows,
	 total_duration_ms, status, error_message, steps_json, memory_peak_mb, peak_buffer_rows)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PipelineName, r.PipelineHash,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.TotalRows, r.TotalDuration.Milliseconds(), r.Status, r.ErrorMessage, string(stepsJSON),
		r.MemoryPeakMB, r.PeakBufferRows,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// LastForPipeline returns the most recent run recorded for a pipeline
// name, or ok=false if none exists. The andon baseline does not use it;
// that comes from AverageRows.
func (m *MetricsStore) LastForPipeline(ctx context.Context, pipelineName string) (RunRecord, bool, error) {
	runs, err := m.RecentForPipeline(ctx, pipelineName, 1)
	if err != nil || len(runs) == 0 {
		return RunRecord{}, false, err
	}
	return runs[0], true, nil
}

// RecentForPipeline returns up to limit most-recent runs for a
// pipeline, newest first.
func (m *MetricsStore) RecentForPipeline(ctx context.Context, pipelineName string, limit int) ([]RunRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
SELECT id, pipeline_name, pipeline_hash, started_at, finished_at, total_rows,
       total_duration_ms, status, error_message, steps_json, memory_peak_mb, peak_buffer_rows
FROM pipeline_runs WHERE pipeline_name = ? ORDER BY started_at DESC LIMIT ?`, pipelineName, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished, stepsJSON string
		var durationMS int64
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.PipelineName, &r.PipelineHash, &started, &finished,
			&r.TotalRows, &durationMS, &r.Status, &errMsg, &stepsJSON, &r.MemoryPeakMB, &r.PeakBufferRows); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.TotalDuration = time.Duration(durationMS) * time.Millisecond
		r.ErrorMessage = errMsg.String
		_ = json.Unmarshal([]byte(stepsJSON), &r.Steps)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AverageRows returns the mean total_rows across a pipeline's recorded
// runs and the run count, used by guard's andon baseline (spec.md §8
// Scenario 6: "historical mean rows ... with >=1 prior run").
func (m *MetricsStore) AverageRows(ctx context.Context, pipelineName string) (avg float64, count int, err error) {
	row := m.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(total_rows), 0) FROM pipeline_runs WHERE pipeline_name = ?`, pipelineName)
	if err := row.Scan(&count, &avg); err != nil {
		return 0, 0, fmt.Errorf("store: average rows: %w", err)
	}
	return avg, count, nil
}
