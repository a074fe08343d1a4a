// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cassette

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// routesDirName is excluded from domain enumeration: it holds
// internal/routeconfig's YAML files, not cassettes.
const routesDirName = "_routes"

// Store is the filesystem-backed cassette store, spec.md §4.4. It is safe
// for concurrent readers and for concurrent writers targeting different
// fingerprints; same-fingerprint writes are serialized by
// internal/coordinator upstream of Save, not by this type.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir (the configured cassettes.dir).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// ID is the listing/deletion handle for one cassette: its full fingerprint.
type ID struct {
	Domain string
	ID     string
	Method string
	Path   string
}

// Lookup returns the cassette recorded for (domain, fingerprint), or nil if
// none exists. Multiple files can share the 8-char filename prefix; this
// disambiguates by comparing the full fingerprint stored inside each file.
func (s *Store) Lookup(domain, fingerprint string) (*Cassette, error) {
	fp8 := fingerprint
	if len(fp8) > 8 {
		fp8 = fp8[:8]
	}
	domainDir := filepath.Join(s.dir, domain)
	matches, err := filepath.Glob(filepath.Join(domainDir, "*_"+fp8+".json"))
	if err != nil {
		return nil, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Lookup", err)
	}
	for _, path := range matches {
		c, err := readCassette(path)
		if err != nil {
			return nil, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Lookup", err)
		}
		if c.Fingerprint == fingerprint {
			return c, nil
		}
	}
	return nil, nil
}

// Save writes c atomically (write-temp-then-rename, spec.md §3). If the
// final filename already exists and overwrite is false, it returns
// recorded=false without touching the existing file.
func (s *Store) Save(domain string, c *Cassette, overwrite bool) (recorded bool, err error) {
	domainDir := filepath.Join(s.dir, domain)
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}
	final := filepath.Join(domainDir, FileName(c.Request.Method, c.Request.Path, c.Fingerprint))
	if !overwrite {
		if _, statErr := os.Stat(final); statErr == nil {
			return false, nil
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}

	tmp, err := os.CreateTemp(domainDir, ".tmp-*.json")
	if err != nil {
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}
	if err := tmp.Close(); err != nil {
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return false, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Save", err)
	}
	_ = fsyncDir(domainDir) // best-effort durability; rename is already atomic for readers
	return true, nil
}

// List enumerates cassette IDs, optionally restricted to one domain.
func (s *Store) List(domain string) ([]ID, error) {
	domains, err := s.domainDirs(domain)
	if err != nil {
		return nil, err
	}
	var out []ID
	for _, d := range domains {
		files, err := filepath.Glob(filepath.Join(s.dir, d, "*.json"))
		if err != nil {
			return nil, vcrerr.Wrap(vcrerr.StoreIO, "cassette.List", err)
		}
		for _, path := range files {
			c, err := readCassette(path)
			if err != nil {
				continue // skip unreadable/partial files rather than fail the whole listing
			}
			out = append(out, ID{Domain: d, ID: c.Fingerprint, Method: c.Request.Method, Path: c.Request.Path})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes cassettes. domain == "" deletes across every domain; id ==
// "" within a selected domain deletes every cassette in that domain.
func (s *Store) Delete(domain, id string) (deleted int, err error) {
	domains, err := s.domainDirs(domain)
	if err != nil {
		return 0, err
	}
	for _, d := range domains {
		files, err := filepath.Glob(filepath.Join(s.dir, d, "*.json"))
		if err != nil {
			return deleted, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Delete", err)
		}
		for _, path := range files {
			if id != "" {
				c, err := readCassette(path)
				if err != nil || c.Fingerprint != id {
					continue
				}
			}
			if err := os.Remove(path); err != nil {
				return deleted, vcrerr.Wrap(vcrerr.StoreIO, "cassette.Delete", err)
			}
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) domainDirs(domain string) ([]string, error) {
	if domain != "" {
		return []string{domain}, nil
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, vcrerr.Wrap(vcrerr.StoreIO, "cassette.domainDirs", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == routesDirName || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

func readCassette(path string) (*Cassette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Cassette
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}
