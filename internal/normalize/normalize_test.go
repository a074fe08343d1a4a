// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package normalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustNormalize(t *testing.T, raw Raw, policy Policy) *Canonical {
	t.Helper()
	c, err := Normalize(raw, policy, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return c
}

func TestHeaderReorderingAndCaseDoNotChangeCanonicalForm(t *testing.T) {
	raw1 := Raw{
		Method: "get",
		Path:   "/v1/widgets/",
		Header: map[string][]string{"Accept": {"json"}, "X-Foo": {"bar"}},
	}
	raw2 := Raw{
		Method: "GET",
		Path:   "/v1/widgets",
		Header: map[string][]string{"x-foo": {"bar"}, "accept": {"json"}},
	}
	c1 := mustNormalize(t, raw1, Policy{})
	c2 := mustNormalize(t, raw2, Policy{})

	if string(serializeForTest(c1)) != string(serializeForTest(c2)) {
		t.Fatalf("canonical forms differ:\n%s\nvs\n%s", serializeForTest(c1), serializeForTest(c2))
	}
}

func TestQueryReorderingDoesNotChangeCanonicalForm(t *testing.T) {
	raw1 := Raw{Method: "GET", Path: "/x", RawQuery: "a=1&b=2"}
	raw2 := Raw{Method: "GET", Path: "/x", RawQuery: "b=2&a=1"}
	c1 := mustNormalize(t, raw1, Policy{})
	c2 := mustNormalize(t, raw2, Policy{})
	if string(serializeForTest(c1)) != string(serializeForTest(c2)) {
		t.Fatalf("canonical forms differ for reordered query")
	}
}

func TestIgnoredHeaderDoesNotChangeCanonicalForm(t *testing.T) {
	base := Raw{Method: "GET", Path: "/x", Header: map[string][]string{"Accept": {"json"}}}
	withExtra := Raw{Method: "GET", Path: "/x", Header: map[string][]string{"Accept": {"json"}, "X-Request-Id": {"abc"}}}

	policy := Policy{IgnoreHeaders: []string{"x-request-id"}}
	c1 := mustNormalize(t, base, policy)
	c2 := mustNormalize(t, withExtra, policy)
	if string(serializeForTest(c1)) != string(serializeForTest(c2)) {
		t.Fatalf("ignored header changed canonical form")
	}
}

func TestJSONBodyKeyOrderInsensitive(t *testing.T) {
	raw1 := Raw{Method: "POST", Path: "/x", Body: []byte(`{"a":1,"b":2}`), ContentType: "application/json"}
	raw2 := Raw{Method: "POST", Path: "/x", Body: []byte(`{"b":2,"a":1}`), ContentType: "application/json"}
	c1 := mustNormalize(t, raw1, Policy{})
	c2 := mustNormalize(t, raw2, Policy{})
	if string(c1.Body) != string(c2.Body) {
		t.Fatalf("bodies differ: %s vs %s", c1.Body, c2.Body)
	}
}

func TestJSONBodyIgnoredFieldPrunesSubtree(t *testing.T) {
	raw1 := Raw{Method: "POST", Path: "/x", Body: []byte(`{"name":"Alice","request_id":"r1"}`), ContentType: "application/json"}
	raw2 := Raw{Method: "POST", Path: "/x", Body: []byte(`{"name":"Alice","request_id":"r2"}`), ContentType: "application/json"}
	policy := Policy{IgnoreBodyFields: []string{"$.request_id"}}
	c1 := mustNormalize(t, raw1, policy)
	c2 := mustNormalize(t, raw2, policy)
	if string(c1.Body) != string(c2.Body) {
		t.Fatalf("ignored body field still distinguishes requests: %s vs %s", c1.Body, c2.Body)
	}
}

func TestJSONBodyDifferingFieldChangesCanonicalForm(t *testing.T) {
	raw1 := Raw{Method: "POST", Path: "/x", Body: []byte(`{"name":"Alice"}`), ContentType: "application/json"}
	raw2 := Raw{Method: "POST", Path: "/x", Body: []byte(`{"name":"Bob"}`), ContentType: "application/json"}
	c1 := mustNormalize(t, raw1, Policy{})
	c2 := mustNormalize(t, raw2, Policy{})
	if string(c1.Body) == string(c2.Body) {
		t.Fatalf("differing bodies produced identical canonical form")
	}
}

func TestTrailingSlashDoesNotChangePath(t *testing.T) {
	c1 := mustNormalize(t, Raw{Method: "GET", Path: "/v1/widgets/"}, Policy{})
	c2 := mustNormalize(t, Raw{Method: "GET", Path: "/v1/widgets"}, Policy{})
	if c1.Path != c2.Path {
		t.Fatalf("paths differ: %q vs %q", c1.Path, c2.Path)
	}
}

func TestRootPathStaysSlash(t *testing.T) {
	c := mustNormalize(t, Raw{Method: "GET", Path: "/"}, Policy{})
	if c.Path != "/" {
		t.Fatalf("Path = %q, want \"/\"", c.Path)
	}
}

func TestPercentEncodedSlashIsPreservedLiterally(t *testing.T) {
	c1 := mustNormalize(t, Raw{Method: "GET", Path: "/a%2Fb"}, Policy{})
	c2 := mustNormalize(t, Raw{Method: "GET", Path: "/a/b"}, Policy{})
	if c1.Path == c2.Path {
		t.Fatalf("%%2F must not alias a literal path separator: got %q for both", c1.Path)
	}
}

func TestBodyTooLargeIsRejected(t *testing.T) {
	_, err := Normalize(Raw{Method: "GET", Path: "/x", Body: make([]byte, 100)}, Policy{}, 10)
	if err == nil {
		t.Fatalf("want error for body exceeding maxBodySize")
	}
}

func TestQueryAndHeaderFieldsMatchExpectedShape(t *testing.T) {
	raw := Raw{
		Method:   "GET",
		Path:     "/x",
		RawQuery: "b=2&a=1",
		Header:   map[string][]string{"Accept": {"json"}, "X-Foo": {"bar", "baz"}},
	}
	c := mustNormalize(t, raw, Policy{})

	wantQuery := []QueryPair{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}
	if diff := cmp.Diff(wantQuery, c.Query); diff != "" {
		t.Fatalf("Query mismatch (-want +got):\n%s", diff)
	}

	wantHeaders := []HeaderField{
		{Name: "accept", Values: []string{"json"}},
		{Name: "x-foo", Values: []string{"bar", "baz"}},
	}
	if diff := cmp.Diff(wantHeaders, c.Headers); diff != "" {
		t.Fatalf("Headers mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyMethodIsInvalid(t *testing.T) {
	_, err := Normalize(Raw{Method: "", Path: "/x"}, Policy{}, 0)
	if err == nil {
		t.Fatalf("want error for empty method")
	}
}

// serializeForTest renders the full canonical form (method/path/query/headers
// plus body) as bytes for equality comparisons across fields at once.
func serializeForTest(c *Canonical) []byte {
	var out []byte
	out = append(out, c.Method...)
	out = append(out, ' ')
	out = append(out, c.Path...)
	for _, q := range c.Query {
		out = append(out, ' ')
		out = append(out, q.Name...)
		out = append(out, '=')
		out = append(out, q.Value...)
	}
	for _, h := range c.Headers {
		out = append(out, ' ')
		out = append(out, h.Name...)
		for _, v := range h.Values {
			out = append(out, ',')
			out = append(out, v...)
		}
	}
	out = append(out, c.Body...)
	return out
}
