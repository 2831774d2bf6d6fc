// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress keeps the durable record of which chunks of an upload
// session have been received.
//
// Every Store implementation serializes its own read-modify-write per
// identifier, so RecordChunk is safe to call concurrently even without the
// upload service's session lock.
package progress

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrInvalidChunk = errors.New("chunk number must be positive")
	ErrStoreClosed  = errors.New("progress store is closed")
)

// Session carries the attributes a client declares with every chunk. The first
// chunk seen for an identifier latches Filename and TotalChunks.
type Session struct {
	Identifier  string
	Filename    string
	TotalChunks int
}

// Record is the persisted progress of one upload session.
type Record struct {
	Identifier     string `json:"identifier"`
	Filename       string `json:"filename,omitempty"`
	TotalChunks    int    `json:"totalChunks,omitempty"`
	ReceivedChunks []int  `json:"receivedChunks"`
}

func emptyRecord(identifier string) *Record {
	return &Record{Identifier: identifier, ReceivedChunks: []int{}}
}

// Exists reports whether the record was ever written.
func (r *Record) Exists() bool {
	return r.TotalChunks > 0 || len(r.ReceivedChunks) > 0
}

// Has reports whether chunkNumber has been recorded.
func (r *Record) Has(chunkNumber int) bool {
	return slices.Contains(r.ReceivedChunks, chunkNumber)
}

// Complete reports whether every declared chunk has been recorded.
func (r *Record) Complete() bool {
	return r.TotalChunks > 0 && len(r.ReceivedChunks) == r.TotalChunks
}

// apply latches session attributes and appends chunkNumber if it is new.
// It returns false when the record is unchanged.
func (r *Record) apply(s Session, chunkNumber int) bool {
	changed := false
	if r.TotalChunks == 0 && s.TotalChunks > 0 {
		r.TotalChunks = s.TotalChunks
		changed = true
	}
	if r.Filename == "" && s.Filename != "" {
		r.Filename = s.Filename
		changed = true
	}
	if !r.Has(chunkNumber) {
		r.ReceivedChunks = append(r.ReceivedChunks, chunkNumber)
		changed = true
	}
	return changed
}

func (r *Record) clone() *Record {
	c := *r
	c.ReceivedChunks = slices.Clone(r.ReceivedChunks)
	if c.ReceivedChunks == nil {
		c.ReceivedChunks = []int{}
	}
	return &c
}

// Store is the durable, crash-recoverable progress index keyed by identifier.
type Store interface {
	// Get returns the record for identifier. An unknown identifier yields an
	// empty record, not an error.
	Get(ctx context.Context, identifier string) (*Record, error)

	// RecordChunk adds chunkNumber to the session's received set and persists
	// it before returning. Recording the same chunk twice has no further effect.
	RecordChunk(ctx context.Context, s Session, chunkNumber int) (*Record, error)

	// Delete removes the record. Deleting an unknown identifier is a no-op.
	Delete(ctx context.Context, identifier string) error

	Close() error
}

// Kind selects a Store implementation.
type Kind string

const (
	KindFile    Kind = "file"
	KindLevelDB Kind = "leveldb"
	KindRedis   Kind = "redis"
	KindMemory  Kind = "memory"
)

// Config contains the settings for every Store implementation; each factory
// reads only its own fields.
type Config struct {
	Kind Kind

	// Dir is the staging root for KindFile and the database directory for KindLevelDB.
	Dir string

	Redis RedisConfig
}

// Factory creates a Store from config
type Factory func(cfg Config) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Factory)
)

// Register adds a factory for a store kind
func Register(kind Kind, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// New creates a Store from config
func New(cfg Config) (Store, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown progress backend: %q", cfg.Kind)
	}
	return f(cfg)
}

func validateChunk(chunkNumber int) error {
	if chunkNumber < 1 {
		return ErrInvalidChunk
	}
	return nil
}
