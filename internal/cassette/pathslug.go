// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cassette

import "strings"

// slugify turns a normalized path into the human-browsing-only filename
// component described in spec.md §3: "/" becomes "_" and any byte outside
// [A-Za-z0-9_.-] is stripped.
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

// FileName returns the <METHOD>_<path-slug>_<fingerprint8>.json filename
// for a cassette, per spec.md §3.
func FileName(method, path, fingerprint string) string {
	fp8 := fingerprint
	if len(fp8) > 8 {
		fp8 = fp8[:8]
	}
	return method + "_" + slugify(path) + "_" + fp8 + ".json"
}
