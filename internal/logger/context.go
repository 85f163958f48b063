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
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

type ctxKey struct{}

// defaultLogger is used by the context-level helpers below when no
// Logger has been attached to the context (e.g. a package running
// outside cmd/riverdag, such as a unit test).
var defaultLogger Logger = NewLogger()

// WithLogger attaches l to ctx, retrievable by FromContext and the
// package-level Debug/Info/Warn/Error helpers.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger attached to ctx, or defaultLogger if
// none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

// logAtCtx mirrors (*logger).logAt and sits at the same depth from the
// user's call site (user -> package-level helper below -> logAtCtx), so
// it shares the same callerSkip constant.
func logAtCtx(ctx context.Context, level slog.Level, msg string, args ...any) {
	l, ok := FromContext(ctx).(*logger)
	if !ok {
		FromContext(ctx).Info(msg, args...)
		return
	}
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(callerSkip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.handler.Handle(ctx, r)
}

func Debug(ctx context.Context, msg string, args ...any) { logAtCtx(ctx, slog.LevelDebug, msg, args...) }
func Info(ctx context.Context, msg string, args ...any)  { logAtCtx(ctx, slog.LevelInfo, msg, args...) }
func Warn(ctx context.Context, msg string, args ...any)  { logAtCtx(ctx, slog.LevelWarn, msg, args...) }
func Error(ctx context.Context, msg string, args ...any) { logAtCtx(ctx, slog.LevelError, msg, args...) }

func Debugf(ctx context.Context, format string, args ...any) {
	logAtCtx(ctx, slog.LevelDebug, sprintf(format, args...))
}
func Infof(ctx context.Context, format string, args ...any) {
	logAtCtx(ctx, slog.LevelInfo, sprintf(format, args...))
}
func Warnf(ctx context.Context, format string, args ...any) {
	logAtCtx(ctx, slog.LevelWarn, sprintf(format, args...))
}
func Errorf(ctx context.Context, format string, args ...any) {
	logAtCtx(ctx, slog.LevelError, sprintf(format, args...))
}

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }
