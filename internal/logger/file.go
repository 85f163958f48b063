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

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// LogFileConfig describes where a per-run log file should live
// (mirrors the teacher's cmd/logger.go logFileSettings, renamed to
// this domain's vocabulary).
type LogFileConfig struct {
	Prefix         string
	LogDir         string
	PipelineLogDir string // overrides LogDir when set, e.g. a pipeline-local log directory
	PipelineName   string
	RequestID      string
}

// OpenLogFile creates (or appends to) the log file config describes,
// creating its parent directory if necessary.
func OpenLogFile(config LogFileConfig) (*os.File, error) {
	if err := validateLogFileConfig(config); err != nil {
		return nil, fmt.Errorf("logger: invalid log file settings: %w", err)
	}
	dir, err := prepareLogDirectory(config)
	if err != nil {
		return nil, fmt.Errorf("logger: prepare log directory: %w", err)
	}
	return createLogFile(filepath.Join(dir, buildLogFilename(config)))
}

func validateLogFileConfig(config LogFileConfig) error {
	if config.PipelineName == "" {
		return fmt.Errorf("PipelineName cannot be empty")
	}
	if config.LogDir == "" && config.PipelineLogDir == "" {
		return fmt.Errorf("either LogDir or PipelineLogDir must be specified")
	}
	return nil
}

func prepareLogDirectory(config LogFileConfig) (string, error) {
	base := config.LogDir
	if config.PipelineLogDir != "" {
		base = config.PipelineLogDir
	}
	dir := filepath.Join(base, safeName(config.PipelineName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}

func buildLogFilename(config LogFileConfig) string {
	timestamp := time.Now().Format("20060102.15:04:05.000")
	return fmt.Sprintf("%s%s.%s.%s.log",
		config.Prefix,
		safeName(config.PipelineName),
		timestamp,
		truncString(config.RequestID, 8),
	)
}

func createLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create/open log file %s: %w", path, err)
	}
	return f, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName replaces any character unsafe for a filesystem path
// component with an underscore.
func safeName(s string) string {
	if s == "" {
		return "_"
	}
	return unsafeNameChars.ReplaceAllString(s, "_")
}

func truncString(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
