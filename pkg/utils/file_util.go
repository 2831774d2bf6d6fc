// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var ErrUnsafeName = errors.New("name must be a single path segment")

func TestWritableFile(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}

	permission := info.Mode().Perm()
	if permission&0200 != 0 {
		return nil
	}

	return os.ErrPermission
}

func ResolvePath(path string) string {
	if !strings.Contains(path, "~") {
		return path
	}

	if path == "~" {
		if usr, err := user.Current(); err == nil {
			path = usr.HomeDir
		}
	} else if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, path[2:])
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}

// CheckSegment rejects names that would escape the directory they are joined to.
// Identifiers and filenames arrive from clients and end up as path components.
func CheckSegment(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrUnsafeName
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return ErrUnsafeName
	}
	return nil
}

// CheckIdentifier validates an upload identifier. Besides CheckSegment it
// rejects a leading dot: hidden names in the staging root are reserved for
// bookkeeping.
func CheckIdentifier(id string) error {
	if err := CheckSegment(id); err != nil {
		return err
	}
	if strings.HasPrefix(id, ".") {
		return ErrUnsafeName
	}
	return nil
}

// NormalizeName returns name in Unicode NFC. macOS clients send decomposed
// names that would otherwise be stored next to their composed twins.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// EnsureDir creates dir (and parents) when missing.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// WriteFileAtomic writes data to path through a synced temp file in the same
// directory and a rename, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := Fdatasync(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return SyncDir(dir)
}
