// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var ErrLowDiskSpace = errors.New("insufficient free disk space")

type FreeSpaceType int

const (
	AsPercent FreeSpaceType = iota
	AsBytes
)

// FreeSpace is a minimum free space threshold, either in bytes or as a percentage.
type FreeSpace struct {
	Type    FreeSpaceType
	Bytes   uint64
	Percent float32
	Raw     string
}

func (s FreeSpace) IsLow(freeBytes uint64, freePercent float32) (bool, string) {
	switch s.Type {
	case AsPercent:
		return freePercent < s.Percent, fmt.Sprintf("disk free percent %.2f%%, threshold %.2f%%", freePercent, s.Percent)
	case AsBytes:
		return freeBytes < s.Bytes, fmt.Sprintf("disk free %s, threshold %s", humanize.IBytes(freeBytes), humanize.IBytes(s.Bytes))
	}
	return false, ""
}

func (s FreeSpace) String() string {
	switch s.Type {
	case AsPercent:
		return fmt.Sprintf("%.2f%%", s.Percent)
	default:
		return s.Raw
	}
}

// ParseMinFreeSpace accepts a percentage ("5" or "5%") or a humanized size ("2GiB").
// An empty string disables the check and returns nil.
func ParseMinFreeSpace(s string) (*FreeSpace, error) {
	if s == "" {
		return nil, nil
	}

	if percent, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 32); err == nil {
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("invalid percent value: %s", s)
		}
		return &FreeSpace{
			Type:    AsPercent,
			Percent: float32(percent),
			Raw:     s,
		}, nil
	}

	if bytes, err := humanize.ParseBytes(s); err == nil {
		if bytes <= 100 {
			return nil, fmt.Errorf("invalid byte value: %s", s)
		}
		return &FreeSpace{
			Type:  AsBytes,
			Bytes: bytes,
			Raw:   s,
		}, nil
	}

	return nil, errors.New("invalid min free space format")
}

// CheckFreeSpace returns ErrLowDiskSpace when the filesystem holding path is
// below threshold. A nil threshold always passes.
func CheckFreeSpace(path string, threshold *FreeSpace) error {
	if threshold == nil {
		return nil
	}
	total, free, err := DiskUsage(path)
	if err != nil {
		return fmt.Errorf("stat filesystem: %w", err)
	}
	if total == 0 {
		return nil
	}
	percent := float32(float64(free) / float64(total) * 100)
	if low, detail := threshold.IsLow(free, percent); low {
		return fmt.Errorf("%w: %s", ErrLowDiskSpace, detail)
	}
	return nil
}
