// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package utils

// DiskUsage reports zero capacity on platforms without statfs, which disables
// free space checks.
func DiskUsage(path string) (total, free uint64, err error) {
	return 0, 0, nil
}
