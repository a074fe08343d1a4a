// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package coordinator deduplicates concurrent identical upstream
// fetch-and-record operations (spec.md §4.5, §5). It is a thin named
// wrapper over golang.org/x/sync/singleflight, whose "forget after
// completion, never cache errors across calls" behavior is already exactly
// what the spec requires, so no bespoke coordination logic is needed here
// (the teacher's cmd/cache-mgr reaches for singleflight's sibling package,
// errgroup, for the same kind of fan-out/fan-in problem).
package coordinator

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent Do calls sharing the same fingerprint key:
// only one caller actually runs fn; the rest block and receive its result.
type Group struct {
	g singleflight.Group
}

// Do runs fn, or waits for and shares the result of an in-flight call
// already running for the same key. shared reports whether this caller
// received a result computed by a different, concurrent call.
func (g *Group) Do(key string, fn func() (any, error)) (v any, shared bool, err error) {
	return g.g.Do(key, fn)
}
