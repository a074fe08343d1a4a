// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package routeconfig is the filesystem-backed, per-(domain, method, path)
// matching-policy store (spec.md §4.3). On first request for a given
// (domain, method, path) triple, a default config with empty ignore lists
// is written if the caller is operating in a mode that records; later
// requests read the human-curated file back, reloading whenever its mtime
// changes.
package routeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nurikk/vcrproxy/internal/normalize"
	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// Route identifies the request the policy was derived for. The path is
// taken verbatim from the first-seen request: no template inference is
// performed (spec.md §9's documented Open Question; see DESIGN.md).
type Route struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// Matched lists are advisory only; they document what participates in
// matching but do not themselves change behavior (spec.md §3).
type Matched struct {
	Headers    []string `yaml:"headers,omitempty"`
	BodyFields []string `yaml:"body_fields,omitempty"`
}

// Ignore lists are authoritative: they subtract from matching.
type Ignore struct {
	Headers     []string `yaml:"headers,omitempty"`
	BodyFields  []string `yaml:"body_fields,omitempty"`
	QueryParams []string `yaml:"query_params,omitempty"`
}

// Config is one route's on-disk matching policy (spec.md §3).
type Config struct {
	Route   Route   `yaml:"route"`
	Matched Matched `yaml:"matched,omitempty"`
	Ignore  Ignore  `yaml:"ignore,omitempty"`
}

// ToPolicy merges this route's ignore lists with the global
// always-ignore-header set into a normalize.Policy. The global set is
// folded in here, not inside internal/normalize, so a route (or a
// shrunk/disabled global config) never silently loses a caller's choice.
func (c *Config) ToPolicy(globalAlwaysIgnoreHeaders []string) normalize.Policy {
	headers := make([]string, 0, len(globalAlwaysIgnoreHeaders)+len(c.Ignore.Headers))
	headers = append(headers, globalAlwaysIgnoreHeaders...)
	headers = append(headers, c.Ignore.Headers...)
	return normalize.Policy{
		IgnoreHeaders:     headers,
		IgnoreQueryParams: c.Ignore.QueryParams,
		IgnoreBodyFields:  c.Ignore.BodyFields,
	}
}

type cacheEntry struct {
	mtime  time.Time
	config *Config
}

// Store is the read-mostly, mtime-reloading route-config cache, spec.md §9.
type Store struct {
	dir string // <cassettes_dir>/_routes

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewStore returns a Store rooted at <cassettesDir>/_routes.
func NewStore(cassettesDir string) *Store {
	return &Store{
		dir:   filepath.Join(cassettesDir, "_routes"),
		cache: make(map[string]cacheEntry),
	}
}

func cacheKey(domain, method, path string) string {
	return domain + "\x00" + method + "\x00" + path
}

func slugify(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '/':
			b.WriteByte('_')
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.', c == '-':
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (s *Store) filePath(domain, method, path string) string {
	return filepath.Join(s.dir, domain, method+"_"+slugify(path)+".yaml")
}

// Get returns the effective policy for (domain, method, path). If no file
// exists yet and writeDefaultIfMissing is true (the caller is in record or
// spy mode), a default config with empty ignore lists is written and
// returned; in replay mode (writeDefaultIfMissing=false) an in-memory
// default is returned without touching disk.
func (s *Store) Get(domain, method, path string, writeDefaultIfMissing bool) (*Config, error) {
	file := s.filePath(domain, method, path)
	key := cacheKey(domain, method, path)

	info, statErr := os.Stat(file)
	if statErr == nil {
		s.mu.Lock()
		entry, ok := s.cache[key]
		s.mu.Unlock()
		if ok && entry.mtime.Equal(info.ModTime()) {
			return entry.config, nil
		}
		cfg, err := s.readFile(file)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{mtime: info.ModTime(), config: cfg}
		s.mu.Unlock()
		return cfg, nil
	}
	if !os.IsNotExist(statErr) {
		return nil, vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.Get", statErr)
	}

	def := &Config{Route: Route{Method: method, Path: path}}
	if !writeDefaultIfMissing {
		return def, nil
	}
	if err := s.write(file, def, false); err != nil {
		return nil, err
	}
	if info, err := os.Stat(file); err == nil {
		s.mu.Lock()
		s.cache[key] = cacheEntry{mtime: info.ModTime(), config: def}
		s.mu.Unlock()
	}
	return def, nil
}

func (s *Store) readFile(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.readFile", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, vcrerr.Wrap(vcrerr.ConfigInvalid, "routeconfig.readFile", fmt.Errorf("%s: %w", file, err))
	}
	return &cfg, nil
}

// write is guarded by a per-file mutex (spec.md §4.3) so concurrent
// first-sight writers of the same route don't race on the temp file name;
// it writes atomically via temp-then-rename like the cassette store.
var writeLocks sync.Map // file path -> *sync.Mutex

func lockFor(file string) *sync.Mutex {
	v, _ := writeLocks.LoadOrStore(file, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Store) write(file string, cfg *Config, overwrite bool) error {
	l := lockFor(file)
	l.Lock()
	defer l.Unlock()

	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.write", err)
	}
	if !overwrite {
		if _, err := os.Stat(file); err == nil {
			return nil
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.write", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.yaml")
	if err != nil {
		return vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.write", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.write", err)
	}
	if err := tmp.Close(); err != nil {
		return vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.write", err)
	}
	if err := os.Rename(tmpName, file); err != nil {
		return vcrerr.Wrap(vcrerr.StoreIO, "routeconfig.write", err)
	}
	return nil
}
