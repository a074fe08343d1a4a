// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mode holds the proxy's current operating mode and request
// counters as lock-free atomics (spec.md §4.6, §5), so the admin API's
// GET /api/mode and GET /api/stats never contend with the hot request path.
package mode

import (
	"sync/atomic"

	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// Value is one of the three dispatch policies, spec.md §2.
type Value string

const (
	Record Value = "record"
	Replay Value = "replay"
	Spy    Value = "spy"
)

// Valid reports whether v is one of the three defined modes.
func (v Value) Valid() bool {
	switch v {
	case Record, Replay, Spy:
		return true
	default:
		return false
	}
}

// Stats is an instantaneous snapshot of the request counters.
type Stats struct {
	Mode     Value
	Hits     int64
	Misses   int64
	Recorded int64
	Errors   int64
}

// Engine holds the current mode and its counters. The zero value is not
// usable; construct with New.
type Engine struct {
	mode     atomic.Value // Value
	hits     atomic.Int64
	misses   atomic.Int64
	recorded atomic.Int64
	errors   atomic.Int64
}

// New returns an Engine starting in initial, which must be Valid.
func New(initial Value) (*Engine, error) {
	if !initial.Valid() {
		return nil, vcrerr.New(vcrerr.ModeInvalid, "mode.New")
	}
	e := &Engine{}
	e.mode.Store(initial)
	return e, nil
}

// Get returns the current mode.
func (e *Engine) Get() Value {
	return e.mode.Load().(Value)
}

// Set changes the current mode, rejecting anything but the three defined
// values (spec.md §6.2's PUT /api/mode validation).
func (e *Engine) Set(v Value) error {
	if !v.Valid() {
		return vcrerr.New(vcrerr.ModeInvalid, "mode.Set")
	}
	e.mode.Store(v)
	return nil
}

func (e *Engine) IncHit()      { e.hits.Add(1) }
func (e *Engine) IncMiss()     { e.misses.Add(1) }
func (e *Engine) IncRecorded() { e.recorded.Add(1) }
func (e *Engine) IncError()    { e.errors.Add(1) }

// Snapshot returns the current mode and counters.
func (e *Engine) Snapshot() Stats {
	return Stats{
		Mode:     e.Get(),
		Hits:     e.hits.Load(),
		Misses:   e.misses.Load(),
		Recorded: e.recorded.Load(),
		Errors:   e.errors.Load(),
	}
}
