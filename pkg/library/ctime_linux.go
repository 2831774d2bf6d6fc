// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package library

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// createTime returns the birth time when the filesystem records one.
func createTime(path string, info os.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
