// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a process-wide structured logger. It never logs
// encryption key material, access/refresh tokens, or client secrets -
// only fingerprints and classification labels (see pkg/crypto.Fingerprint).
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// EnvReader abstracts environment variable lookup so the initialization
// logic is testable without mutating the process environment.
type EnvReader interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

var singleton atomic.Pointer[slog.Logger]

func init() {
	InitializeWithEnv(osEnv{})
}

// unstructuredLogsWithEnv reports whether logs should be rendered as plain
// text rather than JSON. Defaults to true (unstructured) on any value that
// doesn't parse as exactly "false", matching the operational default of
// "readable unless explicitly told otherwise".
func unstructuredLogsWithEnv(env EnvReader) bool {
	return env.Getenv("UNSTRUCTURED_LOGS") != "false"
}

func newHandler(w io.Writer, unstructured bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if unstructured {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// Initialize (re)builds the singleton logger from the real process
// environment.
func Initialize() {
	InitializeWithEnv(osEnv{})
}

// InitializeWithEnv (re)builds the singleton logger using the given
// environment reader, for tests.
func InitializeWithEnv(env EnvReader) {
	l := slog.New(newHandler(os.Stderr, unstructuredLogsWithEnv(env), slog.LevelInfo))
	singleton.Store(l)
}

// Get returns the current process logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// setForTest installs l as the singleton; used only by this package's
// own tests (logger_test.go).
func setForTest(l *slog.Logger) { singleton.Store(l) }

func log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l := Get()
	if l == nil {
		return
	}
	l.Log(ctx, level, msg, args...)
}

// Debug logs msg at debug level.
func Debug(msg string) { log(context.Background(), slog.LevelDebug, msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { log(context.Background(), slog.LevelDebug, sprintf(format, args...)) }

// Debugw logs msg with structured key/value pairs at debug level.
func Debugw(msg string, kv ...any) { log(context.Background(), slog.LevelDebug, msg, kv...) }

// Info logs msg at info level.
func Info(msg string) { log(context.Background(), slog.LevelInfo, msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { log(context.Background(), slog.LevelInfo, sprintf(format, args...)) }

// Infow logs msg with structured key/value pairs at info level.
func Infow(msg string, kv ...any) { log(context.Background(), slog.LevelInfo, msg, kv...) }

// Warn logs msg at warn level.
func Warn(msg string) { log(context.Background(), slog.LevelWarn, msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { log(context.Background(), slog.LevelWarn, sprintf(format, args...)) }

// Warnw logs msg with structured key/value pairs at warn level.
func Warnw(msg string, kv ...any) { log(context.Background(), slog.LevelWarn, msg, kv...) }

// Error logs msg at error level.
func Error(msg string) { log(context.Background(), slog.LevelError, msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { log(context.Background(), slog.LevelError, sprintf(format, args...)) }

// Errorw logs msg with structured key/value pairs at error level.
func Errorw(msg string, kv ...any) { log(context.Background(), slog.LevelError, msg, kv...) }

// dpanicLevel is a custom level between Error and the fatal levels, used
// for conditions that should panic in development but only log in
// production. The gateway always panics on DPanic* - there is no
// "development mode" distinction worth keeping ambient state for.
const dpanicLevel = slog.Level(9)

// DPanic logs msg then panics.
func DPanic(msg string) {
	log(context.Background(), dpanicLevel, msg)
	panic(msg)
}

// DPanicf logs a formatted message then panics.
func DPanicf(format string, args ...any) {
	m := sprintf(format, args...)
	log(context.Background(), dpanicLevel, m)
	panic(m)
}

// DPanicw logs msg with structured key/value pairs then panics.
func DPanicw(msg string, kv ...any) {
	log(context.Background(), dpanicLevel, msg, kv...)
	panic(msg)
}

// Panic logs msg at error level then panics.
func Panic(msg string) {
	log(context.Background(), slog.LevelError, msg)
	panic(msg)
}

// Panicf logs a formatted message at error level then panics.
func Panicf(format string, args ...any) {
	m := sprintf(format, args...)
	log(context.Background(), slog.LevelError, m)
	panic(m)
}

// Panicw logs msg with structured key/value pairs at error level then panics.
func Panicw(msg string, kv ...any) {
	log(context.Background(), slog.LevelError, msg, kv...)
	panic(msg)
}

// Fatalf logs a formatted message at error level then exits the process.
func Fatalf(format string, args ...any) {
	log(context.Background(), slog.LevelError, sprintf(format, args...))
	os.Exit(1)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
