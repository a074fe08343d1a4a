// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fingerprint folds a normalize.Canonical request into the
// content-addressed identity used by internal/cassette: a 64-hex-character
// SHA-256 digest over a fixed, versioned wire serialization. The
// serialization format is part of the external contract (spec.md §4.2) and
// must never change shape without bumping FormatVersion, since a shape
// change changes every fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/nurikk/vcrproxy/internal/normalize"
)

// FormatVersion is stored in every cassette's meta.version (spec.md §3) so
// a future wire-format change can be detected instead of silently producing
// unmatchable cassettes.
const FormatVersion = "1"

// Compute returns the 64-character lowercase hex SHA-256 digest of c's
// canonical serialization.
func Compute(c *normalize.Canonical) string {
	sum := sha256.Sum256(Serialize(c))
	return hex.EncodeToString(sum[:])
}

// Serialize produces the exact byte stream hashed by Compute. It is
// exported so tests (and any future debugging tool) can inspect what went
// into a fingerprint without recomputing the hash.
//
//	METHOD \n
//	PATH \n
//	QUERY: each "name=value" joined by & in sorted order \n
//	HEADERS: each "name: v1,v2,..." joined by \n in sorted order, blank line
//	BODY_BYTES
func Serialize(c *normalize.Canonical) []byte {
	var b strings.Builder
	b.WriteString(c.Method)
	b.WriteByte('\n')
	b.WriteString(c.Path)
	b.WriteByte('\n')

	for i, q := range c.Query {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(q.Name)
		b.WriteByte('=')
		b.WriteString(q.Value)
	}
	b.WriteByte('\n')

	for _, h := range c.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(strings.Join(h.Values, ","))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	out := make([]byte, 0, b.Len()+len(c.Body))
	out = append(out, b.String()...)
	out = append(out, c.Body...)
	return out
}
