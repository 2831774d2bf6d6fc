// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package library

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"

	"github.com/qiaobaojoe/house-file-courier/pkg/utils"
)

// Writer stages a new library file. Nothing is visible under the final name
// until Commit, which flushes the data and renames it into place.
type Writer struct {
	lib  *Library
	name string
	dst  string
	f    *os.File
	h    hash.Hash
	size int64
	done bool
}

// Create starts a new file called name.
func (l *Library) Create(ctx context.Context, name string) (*Writer, error) {
	dst, err := l.path(name)
	if err != nil {
		return nil, err
	}
	if err := utils.CheckFreeSpace(l.dir, l.minFree); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(l.dir, tempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &Writer{
		lib:  l,
		name: filepath.Base(dst),
		dst:  dst,
		f:    f,
		h:    utils.Sha256PoolGetHasher(),
	}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	n, err := w.f.Write(p)
	w.h.Write(p[:n])
	w.size += int64(n)
	return n, err
}

// Size returns the bytes written so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Commit makes the file durable and visible under its final name.
func (w *Writer) Commit() (*StoredFile, error) {
	if w.done {
		return nil, os.ErrClosed
	}
	w.done = true
	tmp := w.f.Name()
	digest := hex.EncodeToString(w.h.Sum(nil))
	utils.Sha256PoolPutHasher(w.h)

	err := utils.Fdatasync(w.f)
	if closeErr := w.f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err == nil {
		err = os.Rename(tmp, w.dst)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("commit %s: %w", w.name, err)
	}
	if err := utils.SyncDir(filepath.Dir(w.dst)); err != nil {
		return nil, fmt.Errorf("sync upload dir: %w", err)
	}

	sf := &StoredFile{Name: w.name, Size: w.size, SHA256: digest}
	if info, err := os.Stat(w.dst); err == nil {
		sf.CreateTime = createTime(w.dst, info)
	}
	return sf, nil
}

// Abort discards the staged data. It is a no-op after Commit.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	utils.Sha256PoolPutHasher(w.h)
	closeErr := w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return closeErr
}
