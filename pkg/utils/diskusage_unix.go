// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package utils

import "golang.org/x/sys/unix"

// DiskUsage returns total and available bytes of the filesystem holding path.
func DiskUsage(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	total = uint64(st.Blocks) * uint64(st.Bsize)
	free = uint64(st.Bavail) * uint64(st.Bsize)
	return total, free, nil
}
