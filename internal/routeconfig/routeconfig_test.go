// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package routeconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetWritesDefaultWhenRecording(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	cfg, err := s.Get("api.example.com", "GET", "/v1/widgets", true)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.Route.Method != "GET" || cfg.Route.Path != "/v1/widgets" {
		t.Fatalf("Get: got route %+v", cfg.Route)
	}

	path := filepath.Join(dir, "_routes", "api.example.com", "GET__v1_widgets.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file at %s: %v", path, err)
	}
}

func TestGetNoWriteOnReplayMiss(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	cfg, err := s.Get("api.example.com", "GET", "/v1/widgets", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg == nil {
		t.Fatalf("Get: want in-memory default, got nil")
	}

	path := filepath.Join(dir, "_routes", "api.example.com", "GET__v1_widgets.yaml")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("replay mode must not write a route file, stat err=%v", err)
	}
}

func TestGetReloadsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	if _, err := s.Get("api.example.com", "POST", "/v1/widgets", true); err != nil {
		t.Fatalf("Get #1: %v", err)
	}
	path := filepath.Join(dir, "_routes", "api.example.com", "POST__v1_widgets.yaml")

	edited := []byte("route:\n  method: POST\n  path: /v1/widgets\nignore:\n  headers:\n    - x-custom\n")
	if err := os.WriteFile(path, edited, 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	cfg, err := s.Get("api.example.com", "POST", "/v1/widgets", true)
	if err != nil {
		t.Fatalf("Get #2: %v", err)
	}
	if len(cfg.Ignore.Headers) != 1 || cfg.Ignore.Headers[0] != "x-custom" {
		t.Fatalf("Get #2: expected reload to pick up human edit, got %+v", cfg.Ignore)
	}
}

func TestToPolicyMergesGlobalAndRouteHeaders(t *testing.T) {
	cfg := &Config{Ignore: Ignore{Headers: []string{"x-route-only"}}}
	policy := cfg.ToPolicy([]string{"date", "x-request-id"})
	if len(policy.IgnoreHeaders) != 3 {
		t.Fatalf("ToPolicy: got %v", policy.IgnoreHeaders)
	}
}
