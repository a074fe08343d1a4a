// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cassette

import (
	"testing"
	"time"
)

func newTestCassette(fingerprint string) *Cassette {
	return &Cassette{
		Meta: Meta{
			RecordedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Target:     "https://api.example.com",
			Domain:     "api.example.com",
			Version:    "1",
		},
		Fingerprint: fingerprint,
		Request:     Request{Method: "GET", Path: "/v1/widgets"},
		Response:    Response{Status: 200, Body: `{"ok":true}`, BodyEncoding: "utf-8"},
	}
}

func TestStoreSaveLookupRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	fp := "aaaaaaaabbbbbbbbccccccccddddddddeeeeeeeeffffffff0000000011111111"
	c := newTestCassette(fp)

	recorded, err := s.Save("api.example.com", c, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !recorded {
		t.Fatalf("Save: want recorded=true on first write")
	}

	got, err := s.Lookup("api.example.com", fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil {
		t.Fatalf("Lookup: want hit, got nil")
	}
	if got.Fingerprint != fp || got.Request.Path != "/v1/widgets" {
		t.Fatalf("Lookup: got %+v", got)
	}
}

func TestStoreSaveNoOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())
	fp := "1111111122222222333333334444444455555555666666667777777788888888"
	c := newTestCassette(fp)

	if _, err := s.Save("api.example.com", c, false); err != nil {
		t.Fatalf("Save #1: %v", err)
	}

	c2 := newTestCassette(fp)
	c2.Response.Status = 500
	recorded, err := s.Save("api.example.com", c2, false)
	if err != nil {
		t.Fatalf("Save #2: %v", err)
	}
	if recorded {
		t.Fatalf("Save #2: want recorded=false, existing file must be untouched")
	}

	got, err := s.Lookup("api.example.com", fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Response.Status != 200 {
		t.Fatalf("Save #2 must not overwrite: got status %d", got.Response.Status)
	}
}

func TestStoreSaveOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())
	fp := "2222222233333333444444445555555566666666777777778888888899999999"
	c := newTestCassette(fp)
	if _, err := s.Save("api.example.com", c, false); err != nil {
		t.Fatalf("Save #1: %v", err)
	}

	c2 := newTestCassette(fp)
	c2.Response.Status = 500
	recorded, err := s.Save("api.example.com", c2, true)
	if err != nil {
		t.Fatalf("Save #2: %v", err)
	}
	if !recorded {
		t.Fatalf("Save #2: want recorded=true with overwrite=true")
	}

	got, err := s.Lookup("api.example.com", fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Response.Status != 500 {
		t.Fatalf("Save #2 with overwrite must replace: got status %d", got.Response.Status)
	}
}

func TestStoreLookupMiss(t *testing.T) {
	s := NewStore(t.TempDir())
	got, err := s.Lookup("api.example.com", "deadbeef00000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("Lookup: want miss, got %+v", got)
	}
}

func TestStoreListAndDelete(t *testing.T) {
	s := NewStore(t.TempDir())
	fp1 := "aaaa111100000000000000000000000000000000000000000000000000000000"
	fp2 := "bbbb222200000000000000000000000000000000000000000000000000000000"
	if _, err := s.Save("api.example.com", newTestCassette(fp1), false); err != nil {
		t.Fatalf("Save fp1: %v", err)
	}
	if _, err := s.Save("other.example.com", newTestCassette(fp2), false); err != nil {
		t.Fatalf("Save fp2: %v", err)
	}

	all, err := s.List("")
	if err != nil {
		t.Fatalf("List(all): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List(all): want 2 entries, got %d", len(all))
	}

	scoped, err := s.List("api.example.com")
	if err != nil {
		t.Fatalf("List(domain): %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != fp1 {
		t.Fatalf("List(domain): got %+v", scoped)
	}

	deleted, err := s.Delete("api.example.com", fp1)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Delete: want 1, got %d", deleted)
	}

	remaining, err := s.List("")
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Domain != "other.example.com" {
		t.Fatalf("List after delete: got %+v", remaining)
	}
}
