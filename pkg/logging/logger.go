// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for Aleutian components.
//
// Output goes to stderr by default, following the Unix convention that
// stdout is reserved for program output. A log file can be attached on
// top of stderr; file output is always JSON so it stays machine
// readable, while the stderr handler is text for daemons run in a
// terminal and JSON when Config.JSONStderr is set (the normal mode for
// containerized deployments).
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    Service: "regressd",
//	})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// # Security Considerations
//
// This package does NOT redact sensitive data. Callers must ensure
// tokens and secrets are not logged: log metadata ("token_present",
// true), never the value itself.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a case-insensitive level name to a Level.
//
// Unrecognized names fall back to LevelInfo so a typo in an
// environment variable degrades to the default rather than silencing
// or flooding the log.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum severity emitted. Defaults to LevelInfo.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// FilePath, when non-empty, attaches a JSON log file in addition
	// to stderr. Parent directories are created as needed and a
	// leading "~" expands to the user's home directory.
	FilePath string

	// JSONStderr switches the stderr handler from text to JSON.
	JSONStderr bool
}

// Logger wraps an slog.Logger together with the optional log file so
// the file can be closed on shutdown.
//
// # Thread Safety
//
// Safe for concurrent use; slog handlers are thread-safe and Close is
// guarded by a mutex.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger from config.
//
// # Description
//
// When the log file cannot be opened the logger still works with
// stderr only and reports the failure through that handler; a broken
// log path must not take the service down.
//
// # Inputs
//
//   - config: Config. The zero value yields an info-level text logger
//     on stderr.
//
// # Outputs
//
//   - *Logger: never nil.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var stderrHandler slog.Handler
	if config.JSONStderr {
		stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		stderrHandler = slog.NewTextHandler(os.Stderr, opts)
	}

	l := &Logger{}
	handlers := []slog.Handler{stderrHandler}

	if config.FilePath != "" {
		path := expandPath(config.FilePath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			f, ferr := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if ferr == nil {
				l.file = f
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			} else {
				fmt.Fprintf(os.Stderr, "logging: cannot open log file %s: %v\n", path, ferr)
			}
		} else {
			fmt.Fprintf(os.Stderr, "logging: cannot create log directory for %s: %v\n", path, err)
		}
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = &multiHandler{handlers: handlers}
	}

	sl := slog.New(h)
	if config.Service != "" {
		sl = sl.With(slog.String("service", config.Service))
	}
	l.slog = sl
	return l
}

// Default returns an info-level stderr logger with no file attached.
func Default() *Logger {
	return New(Config{})
}

// Slog exposes the underlying slog.Logger for handoff to libraries
// that take one, including slog.SetDefault.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the log file if one was attached. Safe to
// call multiple times.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// multiHandler fans a record out to every underlying handler. Enabled
// reports true if any handler would accept the record; Handle then
// lets each handler apply its own level filter.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sub := range h.handlers {
		if sub.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, sub := range h.handlers {
		if !sub.Enabled(ctx, r.Level) {
			continue
		}
		if err := sub.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		next[i] = sub.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		next[i] = sub.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
