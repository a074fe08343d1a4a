// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging builds the process-wide slog.Logger and the upstream
// HTTP transport's logging wrapper. It is grounded on the teacher's own
// two logging idioms: internal.LogTransport/internal.TransportLog (a
// hand-rolled roundtrippers.Capture consumer) and, more directly,
// providers/cerebras's use of roundtrippers.Log itself as the transport --
// since the latter already does exactly what's needed here, it's reused
// verbatim rather than reimplemented.
package logging

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/maruel/roundtrippers"
)

// Level and Format mirror the Config.Logging shape (internal/config),
// kept here as plain strings so this package has no dependency on config.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// NewLogger builds the process-wide logger per opts, defaulting to
// info/text the way the teacher's own command-line tools do (flag-driven,
// no config file mandatory).
func NewLogger(opts Options) *slog.Logger {
	return NewLoggerTo(os.Stderr, opts)
}

// NewLoggerTo is NewLogger with an explicit writer, split out for tests.
func NewLoggerTo(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.Format == "json" {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Transport wraps base with request-id tagging and structured logging at
// debug level, the composable-transport idiom every provider client in the
// teacher repo uses for its own outbound calls (e.g.
// providers/cerebras/client.go's Transport: &roundtrippers.Header{
// Transport: &roundtrippers.RequestID{Transport: t}}).
func Transport(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	return &roundtrippers.Log{
		Transport: &roundtrippers.RequestID{Transport: base},
		Logger:    logger,
		Level:     slog.LevelDebug,
	}
}
