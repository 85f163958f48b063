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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) Logger {
	return NewLogger(WithDebug(), WithFormat("text"), WithWriter(buf), WithQuiet())
}

func TestLoggerSourceLocation(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(Logger)
	}{
		{"Info", func(l Logger) { l.Info("test message") }},
		{"Debug", func(l Logger) { l.Debug("debug message") }},
		{"Warn", func(l Logger) { l.Warn("warn message") }},
		{"Error", func(l Logger) { l.Error("error message") }},
		{"Infof", func(l Logger) { l.Infof("formatted %s", "message") }},
		{"Debugf", func(l Logger) { l.Debugf("debug %d", 42) }},
		{"Warnf", func(l Logger) { l.Warnf("warn %s", "x") }},
		{"Errorf", func(l Logger) { l.Errorf("error %v", "test") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := newTestLogger(&buf)
			tt.logFunc(l)

			out := buf.String()
			require.Contains(t, out, "logger_test.go:")
			require.NotContains(t, out, "internal/logger/logger.go")
			require.NotContains(t, out, "slog-multi")
		})
	}
}

func TestLoggerSourceLocationWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	ctx := WithLogger(context.Background(), l)

	Info(ctx, "context info message")
	Debugf(ctx, "context debug %d", 1)

	out := buf.String()
	require.Contains(t, out, "logger_test.go:")
	require.NotContains(t, out, "internal/logger/context.go")
	require.NotContains(t, out, "internal/logger/logger.go")
}

func TestLoggerSourceLocationWithNestedCalls(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	logHelper := func(l Logger) { l.Info("from helper") }
	outerHelper := func(l Logger) { logHelper(l) }
	outerHelper(l)

	out := buf.String()
	require.NotContains(t, out, "internal/logger/logger.go")
	require.Contains(t, out, "logger_test.go")
}

func TestLoggerWithAttributesAndGroup(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.With("key", "value").Info("with attributes")
	require.Contains(t, buf.String(), "key=value")

	buf.Reset()
	l.WithGroup("g").Info("with group")
	out := buf.String()
	require.NotContains(t, out, "internal/logger/logger.go")
}

func TestLoggerProductionModeHidesSource(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormat("text"), WithWriter(&buf), WithQuiet())
	l.Info("production mode")

	require.NotContains(t, buf.String(), "source=")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithDebug(), WithFormat("json"), WithWriter(&buf), WithQuiet())
	l.Info("json format test")

	out := buf.String()
	require.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
	require.Contains(t, out, "logger_test.go")
}

func TestLoggerQuietSuppressesDefaultStdout(t *testing.T) {
	// No WithWriter: quiet means nothing is written anywhere (no default
	// destination to suppress into) unless a log file is attached.
	l := NewLogger(WithQuiet())
	require.NotNil(t, l)
	l.Info("should not panic even though there is no destination")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormat("text"), WithWriter(&buf), WithQuiet()) // no WithDebug => info level
	l.Debug("hidden")
	require.Empty(t, buf.String())

	l.Info("shown")
	require.Contains(t, buf.String(), "shown")
}
