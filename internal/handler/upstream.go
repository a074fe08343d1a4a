// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package handler

import (
	"net/url"
	"strings"
)

// Target is a resolved upstream: the matched path-prefix, the prefix's
// configured URL, and the domain derived from that URL's host (used as the
// cassette-store and route-config partition key, spec.md §4.7).
type Target struct {
	Prefix string
	URL    *url.URL
	Domain string
}

// targetTable resolves inbound request paths to upstreams by longest
// path-prefix match over the targets mapping (spec.md §4.7).
type targetTable struct {
	prefixes []string // sorted longest-first
	byPrefix map[string]*url.URL
}

func newTargetTable(targets map[string]string) (*targetTable, error) {
	t := &targetTable{byPrefix: make(map[string]*url.URL, len(targets))}
	for prefix, raw := range targets {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		t.byPrefix[prefix] = u
		t.prefixes = append(t.prefixes, prefix)
	}
	// Longest prefix first so the first match in Resolve is the most specific.
	for i := 1; i < len(t.prefixes); i++ {
		for j := i; j > 0 && len(t.prefixes[j]) > len(t.prefixes[j-1]); j-- {
			t.prefixes[j], t.prefixes[j-1] = t.prefixes[j-1], t.prefixes[j]
		}
	}
	return t, nil
}

// Resolve returns the matching Target for path, plus the path with the
// matched prefix stripped (and re-prefixed with "/" if the remainder is
// empty or does not start with "/"), or ok=false if no configured prefix
// matches.
func (t *targetTable) Resolve(path string) (target Target, rest string, ok bool) {
	for _, prefix := range t.prefixes {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		u := t.byPrefix[prefix]
		rest := strings.TrimPrefix(path, prefix)
		if rest == "" || !strings.HasPrefix(rest, "/") {
			rest = "/" + rest
		}
		return Target{Prefix: prefix, URL: u, Domain: u.Host}, rest, true
	}
	return Target{}, "", false
}
