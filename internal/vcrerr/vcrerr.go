// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vcrerr defines the typed error kinds shared across the proxy's
// normalizer, stores, and request handler.
package vcrerr

import "fmt"

// Kind identifies the class of failure so callers (mainly internal/handler)
// can map it to an HTTP status without string matching.
type Kind string

// The error kinds named by the design. Values are lowercase so they can be
// used directly as the JSON "error" field of an error response.
const (
	InvalidRequest      Kind = "invalid_request"
	BodyTooLarge        Kind = "body_too_large"
	CassetteMiss        Kind = "cassette_miss"
	UpstreamTimeout     Kind = "upstream_timeout"
	UpstreamUnavailable Kind = "upstream_unavailable"
	StoreIO             Kind = "store_io"
	ConfigInvalid       Kind = "config_invalid"
	ModeInvalid         Kind = "mode_invalid"
)

// Error wraps an underlying error with a Kind and the operation that failed.
// It intentionally stays flat (no tree of error types) to match how small
// the rest of the domain's error surface is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error without a wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error around an existing error.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error. The zero Kind is returned otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if v, ok := err.(*Error); ok {
			e = v
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
