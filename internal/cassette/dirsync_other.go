// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !unix

package cassette

// fsyncDir is a no-op on platforms without a POSIX directory-fsync
// primitive (e.g. Windows, where MoveFileEx is already transactional at
// the filesystem level).
func fsyncDir(dir string) error { return nil }
