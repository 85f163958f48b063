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

// Package logger wraps log/slog in the small functional-options Logger
// the teacher's cmd/logger.go builds: text or JSON output, an optional
// debug level with source locations, and fan-out to both stdout and an
// open log file via samber/slog-multi.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the interface every pipeline component logs through.
// Deliberately small: four levels, printf variants, and the two
// attribute/grouping hooks slog.Logger itself exposes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type logger struct {
	handler slog.Handler
}

// callerSkip is the runtime.Callers skip count that lands on the public
// method's caller: Callers itself, logAt, and the one-hop public method
// (Info/Infof/...) or package-level function account for three frames.
const callerSkip = 3

// Option configures a Logger built by NewLogger.
type Option func(*options)

type options struct {
	debug   bool
	quiet   bool
	format  string
	writer  io.Writer
	hasW    bool
	logFile *os.File
}

func WithDebug() Option { return func(o *options) { o.debug = true } }
func WithQuiet() Option { return func(o *options) { o.quiet = true } }
func WithFormat(format string) Option { return func(o *options) { o.format = format } }
func WithWriter(w io.Writer) Option   { return func(o *options) { o.writer = w; o.hasW = true } }
func WithLogFile(f *os.File) Option   { return func(o *options) { o.logFile = f } }

// NewLogger builds a Logger from the given options. With no WithWriter,
// console output goes to os.Stdout unless WithQuiet suppresses it (the
// teacher's "Run in quiet mode" flag: useful once a log file is also
// configured and a duplicate stdout stream is unwanted).
func NewLogger(opts ...Option) Logger {
	o := options{format: "text"}
	for _, opt := range opts {
		opt(&o)
	}

	var handlers []slog.Handler
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: o.debug}

	switch {
	case o.hasW:
		handlers = append(handlers, newHandler(o.format, o.writer, hopts))
	case !o.quiet:
		handlers = append(handlers, newHandler(o.format, os.Stdout, hopts))
	}
	if o.logFile != nil {
		handlers = append(handlers, newHandler(o.format, o.logFile, hopts))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, hopts)
	case 1:
		h = handlers[0]
	default:
		h = slogmulti.Fanout(handlers...)
	}
	return &logger{handler: h}
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (l *logger) logAt(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(callerSkip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.handler.Handle(ctx, r)
}

func (l *logger) Debug(msg string, args ...any) { l.logAt(slog.LevelDebug, msg, args...) }
func (l *logger) Info(msg string, args ...any)  { l.logAt(slog.LevelInfo, msg, args...) }
func (l *logger) Warn(msg string, args ...any)  { l.logAt(slog.LevelWarn, msg, args...) }
func (l *logger) Error(msg string, args ...any) { l.logAt(slog.LevelError, msg, args...) }

func (l *logger) Debugf(format string, args ...any) { l.logAt(slog.LevelDebug, fmt.Sprintf(format, args...)) }
func (l *logger) Infof(format string, args ...any)  { l.logAt(slog.LevelInfo, fmt.Sprintf(format, args...)) }
func (l *logger) Warnf(format string, args ...any)  { l.logAt(slog.LevelWarn, fmt.Sprintf(format, args...)) }
func (l *logger) Errorf(format string, args ...any) { l.logAt(slog.LevelError, fmt.Sprintf(format, args...)) }

func (l *logger) With(args ...any) Logger {
	return &logger{handler: l.handler.WithAttrs(toAttrs(args))}
}

func (l *logger) WithGroup(name string) Logger {
	return &logger{handler: l.handler.WithGroup(name)}
}

func toAttrs(args []any) []slog.Attr {
	var attrs []slog.Attr
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
