// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package normalize

import "testing"

func TestParseJSONPathLite(t *testing.T) {
	cases := []struct {
		expr string
		want []string
		ok   bool
	}{
		{"$.name", []string{"name"}, true},
		{"$.a.b", []string{"a", "b"}, true},
		{"$[2]", []string{"2"}, true},
		{"$.items[0].id", []string{"items", "0", "id"}, true},
		{"name", nil, false},
		{"$", nil, false},
		{"$.", nil, false},
		{"$[abc]", nil, false},
		{"$.1abc", nil, false},
	}
	for _, c := range cases {
		got, ok := parseJSONPathLite(c.expr)
		if ok != c.ok {
			t.Errorf("parseJSONPathLite(%q) ok = %v, want %v", c.expr, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if len(got) != len(c.want) {
			t.Errorf("parseJSONPathLite(%q) = %v, want %v", c.expr, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("parseJSONPathLite(%q)[%d] = %q, want %q", c.expr, i, got[i], c.want[i])
			}
		}
	}
}

func TestNonMatchingExpressionsAreSilentlyIgnored(t *testing.T) {
	canon, ok := canonicalizeJSON([]byte(`{"a":1}`), []string{"not-a-path", "$.missing.deeper"})
	if !ok {
		t.Fatalf("canonicalizeJSON: want ok=true")
	}
	if string(canon) != `{"a":1}` {
		t.Fatalf("canonicalizeJSON = %s, want unchanged body", canon)
	}
}
