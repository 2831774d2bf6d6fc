// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package library

import (
	"os"
	"time"
)

func createTime(path string, info os.FileInfo) time.Time {
	return info.ModTime()
}
