// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qiaobaojoe/house-file-courier/pkg/utils"
)

func init() {
	Register(KindFile, func(cfg Config) (Store, error) {
		return NewFileStore(cfg.Dir)
	})
}

// recordDir holds the documents under the store's directory. It is hidden so
// it cannot be mistaken for an identifier's staging directory.
const recordDir = ".progress"

// FileStore keeps one JSON document per identifier,
// <dir>/.progress/<identifier>.json. Documents are replaced through a synced
// temp file and rename, so a crash leaves either the previous or the updated
// set on disk.
type FileStore struct {
	dir   string
	locks *utils.KeyedMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("progress directory is required")
	}
	dir = filepath.Join(dir, recordDir)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	return &FileStore{dir: dir, locks: utils.NewKeyedMutex()}, nil
}

func (s *FileStore) path(identifier string) (string, error) {
	if err := utils.CheckIdentifier(identifier); err != nil {
		return "", fmt.Errorf("identifier %q: %w", identifier, err)
	}
	return filepath.Join(s.dir, identifier+".json"), nil
}

func (s *FileStore) read(path, identifier string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyRecord(identifier), nil
	}
	if err != nil {
		return nil, err
	}

	r := emptyRecord(identifier)
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", identifier, err)
	}
	r.Identifier = identifier
	if r.ReceivedChunks == nil {
		r.ReceivedChunks = []int{}
	}
	return r, nil
}

func (s *FileStore) Get(ctx context.Context, identifier string) (*Record, error) {
	path, err := s.path(identifier)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.RLock(identifier)
	defer unlock()
	return s.read(path, identifier)
}

func (s *FileStore) RecordChunk(ctx context.Context, sess Session, chunkNumber int) (*Record, error) {
	if err := validateChunk(chunkNumber); err != nil {
		return nil, err
	}
	path, err := s.path(sess.Identifier)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sess.Identifier)
	defer unlock()

	r, err := s.read(path, sess.Identifier)
	if err != nil {
		return nil, err
	}
	if !r.apply(sess, chunkNumber) {
		return r, nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return nil, fmt.Errorf("persist progress %s: %w", sess.Identifier, err)
	}
	return r, nil
}

func (s *FileStore) Delete(ctx context.Context, identifier string) error {
	path, err := s.path(identifier)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(identifier)
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
