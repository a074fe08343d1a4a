// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package normalize implements the proxy's request canonicalization: pure
// functions that turn a raw inbound HTTP request into a stable intermediate
// representation ("Canonical") such that any two requests equivalent under
// a route's matching policy yield identical output. It is the direct
// counterpart of the "matching" half of a VCR cassette matcher (see
// gopkg.in/dnaeon/go-vcr.v4's cassette.Matcher in the teacher's
// internal/myrecorder, now reimplemented against this project's own
// content-addressed format rather than go-vcr's).
package normalize

import (
	"mime"
	"net/url"
	"sort"
	"strings"

	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// Kind tags which body-handling rule produced Canonical.Body.
type Kind string

const (
	KindJSON   Kind = "json"
	KindForm   Kind = "form"
	KindBinary Kind = "binary"
)

// Raw is the transport-agnostic input to Normalize. It deliberately doesn't
// depend on *http.Request so the core can be driven by either the
// reverse-proxy listener or, eventually, a forward-proxy listener.
type Raw struct {
	Method      string
	Path        string              // request-target path, percent-encoded as received
	RawQuery    string              // the part after "?", not yet decoded
	Header      map[string][]string // header name (as received) -> values in arrival order
	Body        []byte
	ContentType string
}

// Policy is the effective per-request matching policy: the route's
// ignore lists already merged with the global always-ignore-headers set by
// the caller (internal/handler), so this package stays agnostic of
// internal/routeconfig's on-disk shape.
type Policy struct {
	IgnoreHeaders     []string // lowercase header names to drop entirely
	IgnoreQueryParams []string // query parameter names to drop
	IgnoreBodyFields  []string // JSONPath-lite (JSON bodies) or bare names (form bodies)
}

// QueryPair is one decoded, post-filter query parameter.
type QueryPair struct {
	Name  string
	Value string
}

// HeaderField is one decoded, post-filter header name with its ordered
// values.
type HeaderField struct {
	Name   string
	Values []string
}

// Canonical is the stable intermediate representation consumed by
// internal/fingerprint.
type Canonical struct {
	Method   string
	Path     string
	Query    []QueryPair
	Headers  []HeaderField
	Body     []byte
	BodyKind Kind
}

// Normalize implements spec.md §4.1 verbatim. maxBodySize is the configured
// body-size limit (0 means no limit, only used in tests); exceeding it
// yields vcrerr.BodyTooLarge.
func Normalize(raw Raw, policy Policy, maxBodySize int) (*Canonical, error) {
	if maxBodySize > 0 && len(raw.Body) > maxBodySize {
		return nil, vcrerr.New(vcrerr.BodyTooLarge, "normalize")
	}

	method, err := normalizeMethod(raw.Method)
	if err != nil {
		return nil, err
	}

	path, err := normalizePath(raw.Path)
	if err != nil {
		return nil, err
	}

	query := normalizeQuery(raw.RawQuery, policy.IgnoreQueryParams)
	headers := normalizeHeaders(raw.Header, policy.IgnoreHeaders)
	body, kind := normalizeBody(raw.Body, raw.ContentType, policy.IgnoreBodyFields)

	return &Canonical{
		Method:   method,
		Path:     path,
		Query:    query,
		Headers:  headers,
		Body:     body,
		BodyKind: kind,
	}, nil
}

func normalizeMethod(m string) (string, error) {
	if m == "" {
		return "", vcrerr.New(vcrerr.InvalidRequest, "normalize.method")
	}
	for i := 0; i < len(m); i++ {
		c := m[i]
		if c < 0x20 || c == 0x7f || c > 0x7e {
			return "", vcrerr.New(vcrerr.InvalidRequest, "normalize.method")
		}
	}
	return strings.ToUpper(m), nil
}

// normalizePath percent-decodes once (leaving a literal "%2F"/"%2f"
// undecoded so it never aliases a real path separator), lowercases,
// collapses duplicate "/", and strips a trailing "/" unless the whole path
// is "/".
func normalizePath(p string) (string, error) {
	decoded, err := decodePathOnce(p)
	if err != nil {
		return "", vcrerr.Wrap(vcrerr.InvalidRequest, "normalize.path", err)
	}
	decoded = strings.ToLower(decoded)

	collapsed := make([]byte, 0, len(decoded))
	var prevSlash bool
	for i := 0; i < len(decoded); i++ {
		c := decoded[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		collapsed = append(collapsed, c)
	}
	out := string(collapsed)
	if out != "/" {
		out = strings.TrimSuffix(out, "/")
	}
	if out == "" {
		out = "/"
	}
	return out, nil
}

// decodePathOnce percent-decodes p except for the literal sequence
// "%2F"/"%2f", which is preserved so it can never be confused with a
// structural path separator (spec.md §4.1).
func decodePathOnce(p string) (string, error) {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if p[i] != '%' {
			b.WriteByte(p[i])
			continue
		}
		if i+2 >= len(p) {
			return "", url.EscapeError(p[i:])
		}
		hex := p[i+1 : i+3]
		if strings.EqualFold(hex, "2f") {
			b.WriteString("%2F")
			i += 2
			continue
		}
		decoded, err := url.PathUnescape(p[i : i+3])
		if err != nil {
			return "", err
		}
		b.WriteString(decoded)
		i += 2
	}
	return b.String(), nil
}

func normalizeQuery(rawQuery string, ignore []string) []QueryPair {
	ignored := toSet(ignore)
	var pairs []QueryPair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		var name, value string
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			name, value = part[:idx], part[idx+1:]
		} else {
			name = part
		}
		dn, err := url.QueryUnescape(name)
		if err != nil {
			dn = name
		}
		dv, err := url.QueryUnescape(value)
		if err != nil {
			dv = value
		}
		if ignored[dn] {
			continue
		}
		pairs = append(pairs, QueryPair{Name: dn, Value: dv})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].Value < pairs[j].Value
	})
	return pairs
}

// normalizeHeaders drops names in ignore, which the caller (internal/handler)
// has already populated with the union of the configured
// always_ignore_headers and the route's ignore.headers (spec.md §4.1).
func normalizeHeaders(header map[string][]string, ignore []string) []HeaderField {
	ignored := toSet(ignore)
	merged := make(map[string][]string, len(header))
	for name, values := range header {
		lower := strings.ToLower(name)
		if ignored[lower] {
			continue
		}
		merged[lower] = append(merged[lower], values...)
	}
	fields := make([]HeaderField, 0, len(merged))
	for name, values := range merged {
		fields = append(fields, HeaderField{Name: name, Values: values})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

// alwaysIgnoreHeaders is the spec.md §4.1 default; internal/config uses it
// as the default matching.always_ignore_headers, and a configured list
// replaces it entirely.
var alwaysIgnoreHeaders = []string{"date", "x-request-id", "x-trace-id", "traceparent", "tracestate"}

// DefaultAlwaysIgnoreHeaders returns a copy of the built-in global ignore
// set so internal/config can present it as the default in a loaded Config.
func DefaultAlwaysIgnoreHeaders() []string {
	out := make([]string, len(alwaysIgnoreHeaders))
	copy(out, alwaysIgnoreHeaders)
	return out
}

func normalizeBody(body []byte, contentType string, ignoreFields []string) ([]byte, Kind) {
	if len(body) == 0 {
		return body, KindBinary
	}
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if canon, ok := canonicalizeJSON(body, ignoreFields); ok {
			return canon, KindJSON
		}
		return body, KindBinary
	case mediaType == "application/x-www-form-urlencoded":
		return canonicalizeForm(body, ignoreFields), KindForm
	default:
		return body, KindBinary
	}
}

func canonicalizeForm(body []byte, ignoreNames []string) []byte {
	ignored := toSet(ignoreNames)
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return body
	}
	var pairs []QueryPair
	for name, vs := range values {
		if ignored[name] {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, QueryPair{Name: name, Value: v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].Value < pairs[j].Value
	})
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return []byte(b.String())
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
