// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build unix

package cassette

import "golang.org/x/sys/unix"

// fsyncDir makes a preceding rename(2) durable against a crash, not just
// atomic from the point of view of concurrent readers: on most POSIX
// filesystems the directory entry update itself needs its own fsync.
func fsyncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Fsync(fd)
}
