// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package normalize

import (
	"strconv"
	"strings"
)

// parseJSONPathLite parses the route-config JSONPath-lite grammar described in
// spec.md §4.1: "$" followed by a sequence of ".name" or "[index]" steps,
// where name is [A-Za-z_][A-Za-z0-9_]*. No wildcards, no filters.
//
// The parsed form is a slice of dot-joinable segments compatible with
// github.com/tidwall/gjson and github.com/tidwall/sjson path syntax (both
// accept "a.b.2.c" for "a.b[2].c"), so deletion/lookup is delegated to
// those libraries instead of hand-rolled tree descent.
func parseJSONPathLite(expr string) ([]string, bool) {
	if !strings.HasPrefix(expr, "$") {
		return nil, false
	}
	rest := expr[1:]
	var segs []string
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			i := 0
			for i < len(rest) && isNameByte(rest[i], i == 0) {
				i++
			}
			if i == 0 {
				return nil, false
			}
			segs = append(segs, rest[:i])
			rest = rest[i:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, false
			}
			idxStr := rest[1:end]
			if _, err := strconv.Atoi(idxStr); err != nil {
				return nil, false
			}
			segs = append(segs, idxStr)
			rest = rest[end+1:]
		default:
			return nil, false
		}
	}
	if len(segs) == 0 {
		return nil, false
	}
	return segs, true
}

func isNameByte(b byte, first bool) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b == '_':
		return true
	case b >= '0' && b <= '9':
		return !first
	default:
		return false
	}
}

// toGJSONPath joins parsed segments using the dot notation that both
// tidwall/gjson and tidwall/sjson accept for nested object/array access.
func toGJSONPath(segs []string) string {
	return strings.Join(segs, ".")
}
