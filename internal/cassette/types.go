// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cassette is the content-addressed, filesystem-backed store of
// recorded request/response pairs (spec.md §3, §4.4). Its on-disk JSON
// shape is part of the external contract: implementers must round-trip it
// byte-exactly for textual bodies.
package cassette

import (
	"time"
	"unicode/utf8"
)

// Request is the captured shape of an inbound request, spec.md §3.
type Request struct {
	Method       string              `json:"method"`
	Path         string              `json:"path"`
	Query        map[string][]string `json:"query,omitempty"`
	Headers      map[string][]string `json:"headers,omitempty"`
	Body         string              `json:"body,omitempty"`
	BodyEncoding string              `json:"body_encoding,omitempty"`
	ContentType  string              `json:"content_type,omitempty"`
}

// Response is the captured shape of the upstream response, spec.md §3.
type Response struct {
	Status       int                 `json:"status"`
	Headers      map[string][]string `json:"headers,omitempty"`
	Body         string              `json:"body,omitempty"`
	BodyEncoding string              `json:"body_encoding,omitempty"`
}

// Meta carries the cassette's provenance, spec.md §3.
type Meta struct {
	RecordedAt time.Time `json:"recorded_at"`
	Target     string    `json:"target"`
	Domain     string    `json:"domain"`
	Version    string    `json:"version"`
}

// Cassette is the on-disk unit: {meta, request, response} plus the full
// fingerprint that is its content-addressed identity (the filename only
// carries a truncated, human-browsing-only prefix of it).
type Cassette struct {
	Meta        Meta     `json:"meta"`
	Fingerprint string   `json:"fingerprint"`
	Request     Request  `json:"request"`
	Response    Response `json:"response"`
}

// EncodeBody implements spec.md §4.4's body-encoding rule: UTF-8 text is
// stored as a JSON string with encoding "utf-8"; anything else is base64
// with encoding "base64". An empty body yields empty text and an empty
// encoding.
func EncodeBody(raw []byte) (text, encoding string) {
	if len(raw) == 0 {
		return "", ""
	}
	if utf8.Valid(raw) {
		return string(raw), "utf-8"
	}
	return encodeBase64(raw), "base64"
}

// DecodeBody reverses EncodeBody.
func DecodeBody(text, encoding string) ([]byte, error) {
	switch encoding {
	case "", "utf-8":
		return []byte(text), nil
	case "base64":
		return decodeBase64(text)
	default:
		return []byte(text), nil
	}
}
