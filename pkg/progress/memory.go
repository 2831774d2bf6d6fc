// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"sync"
)

func init() {
	Register(KindMemory, func(cfg Config) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore keeps progress in process memory. It is not durable and is meant
// for tests and throwaway deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Get(ctx context.Context, identifier string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	if r, ok := m.records[identifier]; ok {
		return r.clone(), nil
	}
	return emptyRecord(identifier), nil
}

func (m *MemoryStore) RecordChunk(ctx context.Context, s Session, chunkNumber int) (*Record, error) {
	if err := validateChunk(chunkNumber); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	r, ok := m.records[s.Identifier]
	if !ok {
		r = emptyRecord(s.Identifier)
		m.records[s.Identifier] = r
	}
	r.apply(s, chunkNumber)
	return r.clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, identifier)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
