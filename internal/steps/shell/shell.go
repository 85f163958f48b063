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

// Package shell implements the `shell` step: run a command with a
// timeout and capture its output as lines, JSON, or raw text, using
// mvdan.cc/sh/v3 to parse and interpret the command the way the teacher
// runs its own shell-backed steps, instead of shelling out via os/exec.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "shell"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "sync",
		IsSource:        true,
		Description:     "Run a shell command and capture its output as rows.",
		ConfigDocs: map[string]string{
			"command": "the shell command to run",
			"timeout": "timeout in seconds (default 30)",
			"capture": "lines (default), json, or raw",
		},
		RequiredAlternatives: [][]string{{"command"}},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(ctx context.Context, _ *step.Context) (row.Dataset, error) {
	command := cfg.String(s.config, "command", "")
	if command == "" {
		return nil, fmt.Errorf("shell: requires \"command\"")
	}
	timeout := cfg.Int(s.config, "timeout", 30)
	capture := cfg.String(s.config, "capture", "lines")

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("shell: parse: %w", err)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("shell: create runner: %w", err)
	}
	if err := runner.Run(runCtx, file); err != nil {
		return nil, fmt.Errorf("shell: command failed: %w (stderr: %s)", err, stderr.String())
	}

	return parseCapture(stdout.String(), capture)
}

func parseCapture(output, capture string) (row.Dataset, error) {
	switch capture {
	case "json":
		var decoded any
		if err := json.Unmarshal([]byte(output), &decoded); err != nil {
			return nil, fmt.Errorf("shell: capture json: %w", err)
		}
		switch t := decoded.(type) {
		case []any:
			out := make(row.Dataset, 0, len(t))
			for _, e := range t {
				if m, ok := e.(map[string]any); ok {
					out = append(out, row.NewRowFromMap(m))
				}
			}
			return out, nil
		case map[string]any:
			return row.Dataset{row.NewRowFromMap(t)}, nil
		}
		return nil, fmt.Errorf("shell: capture json: unsupported shape")
	case "raw":
		r := row.NewRow()
		r.Set("output", row.String(output))
		return row.Dataset{r}, nil
	default: // lines
		lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
		out := make(row.Dataset, 0, len(lines))
		for _, l := range lines {
			if l == "" {
				continue
			}
			r := row.NewRow()
			r.Set("line", row.String(l))
			out = append(out, r)
		}
		return out, nil
	}
}
