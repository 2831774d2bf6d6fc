// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package library manages the directory of completed files: listing,
// atomic creation, download and deletion.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/logger"
	"github.com/qiaobaojoe/house-file-courier/pkg/notify"
	"github.com/qiaobaojoe/house-file-courier/pkg/utils"
)

// tempPrefix marks files still being written; they are never listed or served.
const tempPrefix = ".partial-"

var ErrNotFound = errors.New("file not found")

// StoredFile is a completed file in the library.
type StoredFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	CreateTime time.Time `json:"createTime"`
	SHA256     string    `json:"sha256,omitempty"`
}

// Config configures a Library.
type Config struct {
	Dir string

	// MinFree refuses new files once the filesystem drops below it. Nil disables the check.
	MinFree *utils.FreeSpace

	// Sink receives fileUploaded / fileDeleted events. Defaults to notify.Noop.
	Sink notify.Sink
}

// Library is the upload directory.
type Library struct {
	dir     string
	minFree *utils.FreeSpace
	sink    notify.Sink
	now     func() time.Time
}

// New opens the library at cfg.Dir, creating it if needed.
func New(cfg Config) (*Library, error) {
	if cfg.Dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := utils.EnsureDir(cfg.Dir); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := utils.TestWritableFile(cfg.Dir); err != nil {
		return nil, fmt.Errorf("upload dir %s not writable: %w", cfg.Dir, err)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = notify.Noop{}
	}
	return &Library{dir: cfg.Dir, minFree: cfg.MinFree, sink: sink, now: time.Now}, nil
}

// Dir returns the library directory.
func (l *Library) Dir() string {
	return l.dir
}

// CheckName reports whether name can be stored in a library. The writer's
// temp prefix is reserved because List hides those entries.
func CheckName(name string) error {
	if err := utils.CheckSegment(name); err != nil {
		return fmt.Errorf("filename %q: %w", name, err)
	}
	if strings.HasPrefix(name, tempPrefix) {
		return fmt.Errorf("filename %q: %w", name, utils.ErrUnsafeName)
	}
	return nil
}

// path resolves a client-supplied name, normalized to NFC, inside the library.
func (l *Library) path(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.dir, utils.NormalizeName(name)), nil
}

// List returns every completed file, ordered by name.
func (l *Library) List(ctx context.Context) ([]StoredFile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}

	files := make([]StoredFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Deleted between ReadDir and Info.
			continue
		}
		files = append(files, StoredFile{
			Name:       e.Name(),
			Size:       info.Size(),
			CreateTime: createTime(filepath.Join(l.dir, e.Name()), info),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Stat describes a single file or returns ErrNotFound.
func (l *Library) Stat(ctx context.Context, name string) (*StoredFile, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &StoredFile{Name: filepath.Base(p), Size: info.Size(), CreateTime: createTime(p, info)}, nil
}

// Open opens a file for download.
func (l *Library) Open(ctx context.Context, name string) (*os.File, *StoredFile, error) {
	sf, err := l.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(l.dir, sf.Name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return f, sf, nil
}

// Delete removes a file and emits fileDeleted.
func (l *Library) Delete(ctx context.Context, name string) error {
	sf, err := l.Stat(ctx, name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, sf.Name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	logger.Ctx(ctx).Info().Str("name", sf.Name).Msg("file deleted")
	l.sink.Notify(ctx, notify.FileDeleted(sf.Name))
	return nil
}

// Save stores r as name in one shot and emits fileUploaded. An existing file
// of the same name is replaced.
func (l *Library) Save(ctx context.Context, name string, r io.Reader) (*StoredFile, error) {
	w, err := l.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	buf := utils.CopyBufferGet()
	_, err = io.CopyBuffer(w, r, *buf)
	utils.CopyBufferPut(buf)
	if err != nil {
		w.Abort()
		return nil, fmt.Errorf("write %s: %w", name, err)
	}

	sf, err := w.Commit()
	if err != nil {
		return nil, err
	}

	l.Announce(ctx, sf)
	return sf, nil
}

// Announce emits fileUploaded for a committed file, stamped with the current time.
func (l *Library) Announce(ctx context.Context, sf *StoredFile) {
	l.sink.Notify(ctx, notify.FileUploaded(sf.Name, sf.Size, l.now(), sf.SHA256))
}
