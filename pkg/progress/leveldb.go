// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/syndtr/goleveldb/leveldb"
	lverrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

func init() {
	Register(KindLevelDB, func(cfg Config) (Store, error) {
		return NewLevelDBStore(cfg.Dir, nil)
	})
}

const leveldbKeyPrefix = "progress/"

// LevelDBStore keeps progress records in an embedded LevelDB database. Every
// mutation is written with Sync so an acknowledged chunk survives a crash.
type LevelDBStore struct {
	db    *leveldb.DB
	dir   string
	locks *utils.KeyedMutex

	writeOptsSync *opt.WriteOptions
}

func NewLevelDBStore(dir string, opts *opt.Options) (*LevelDBStore, error) {
	if dir == "" {
		return nil, errors.New("leveldb path is required")
	}
	db, err := leveldb.OpenFile(dir, opts)
	if lverrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(dir, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &LevelDBStore{
		db:            db,
		dir:           dir,
		locks:         utils.NewKeyedMutex(),
		writeOptsSync: &opt.WriteOptions{Sync: true},
	}, nil
}

func leveldbKey(identifier string) []byte {
	return []byte(leveldbKeyPrefix + identifier)
}

func (s *LevelDBStore) read(identifier string) (*Record, error) {
	data, err := s.db.Get(leveldbKey(identifier), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return emptyRecord(identifier), nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, ErrStoreClosed
	}
	if err != nil {
		return nil, err
	}
	r := emptyRecord(identifier)
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", identifier, err)
	}
	if r.ReceivedChunks == nil {
		r.ReceivedChunks = []int{}
	}
	return r, nil
}

func (s *LevelDBStore) Get(ctx context.Context, identifier string) (*Record, error) {
	return s.read(identifier)
}

func (s *LevelDBStore) RecordChunk(ctx context.Context, sess Session, chunkNumber int) (*Record, error) {
	if err := validateChunk(chunkNumber); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sess.Identifier)
	defer unlock()

	r, err := s.read(sess.Identifier)
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
	if err := s.db.Put(leveldbKey(sess.Identifier), data, s.writeOptsSync); err != nil {
		return nil, fmt.Errorf("persist progress %s: %w", sess.Identifier, err)
	}
	return r, nil
}

func (s *LevelDBStore) Delete(ctx context.Context, identifier string) error {
	unlock := s.locks.Lock(identifier)
	defer unlock()

	err := s.db.Delete(leveldbKey(identifier), s.writeOptsSync)
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrStoreClosed
	}
	return err
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
