// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package normalize

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// canonicalizeJSON implements spec.md §4.1's application/json body rule:
// parse, delete ignored subtrees, recursively sort object keys, and
// serialize with no insignificant whitespace and a stable number
// representation. ok is false if the body does not parse as JSON, in which
// case the caller falls back to raw-bytes matching.
func canonicalizeJSON(body []byte, ignoreFields []string) (canon []byte, ok bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}

	pruned := body
	for _, expr := range ignoreFields {
		segs, valid := parseJSONPathLite(expr)
		if !valid {
			// Non-matching expressions are silently ignored (forward compatibility).
			continue
		}
		path := toGJSONPath(segs)
		if out, err := sjson.DeleteBytes(pruned, path); err == nil {
			pruned = out
		}
		// If the path doesn't exist in this particular body, sjson returns the
		// input unchanged (or an error for a malformed path); either way we
		// keep going with the best body we have.
	}

	d := json.NewDecoder(bytes.NewReader(pruned))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		// The deletions above should never invalidate JSON that parsed above,
		// but fall back defensively rather than panic downstream.
		return nil, false
	}
	v = stabilizeNumbers(v)

	out, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return out, true
}

// stabilizeNumbers walks a decoded-with-UseNumber JSON value and replaces
// json.Number leaves with int64 (when the literal has no fractional or
// exponent part) or float64 (shortest round-trip form otherwise), so that
// "1" and "1.0" and "1e0" do not produce different fingerprints for
// semantically identical requests beyond what the spec calls for, while
// "1" and "1.5" still differ.
func stabilizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, sub := range t {
			t[k] = stabilizeNumbers(sub)
		}
		return t
	case []any:
		for i, sub := range t {
			t[i] = stabilizeNumbers(sub)
		}
		return t
	case json.Number:
		s := t.String()
		if isIntegerLiteral(s) {
			if n, err := t.Int64(); err == nil {
				return n
			}
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return s
	default:
		return v
	}
}

func isIntegerLiteral(s string) bool {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return false
		}
	}
	return true
}
