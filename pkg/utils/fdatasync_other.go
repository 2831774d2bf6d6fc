// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package utils

import "os"

// Fdatasync falls back to standard Sync on non-Linux platforms.
// On macOS, fsync already has fdatasync-like behavior.
func Fdatasync(f *os.File) error {
	return f.Sync()
}

// SyncDir is a no-op where directories cannot be opened for sync.
func SyncDir(dir string) error {
	return nil
}
