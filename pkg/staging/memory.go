// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-memory staging area for testing
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]map[int][]byte
	// removals counts Remove calls per identifier so a chunk staged before
	// a Remove cannot be committed after it.
	removals map[string]uint64
}

// NewMemory creates a new in-memory staging area
func NewMemory() *Memory {
	return &Memory{
		chunks:   make(map[string]map[int][]byte),
		removals: make(map[string]uint64),
	}
}

func (m *Memory) WriteChunk(ctx context.Context, identifier string, chunkNumber int, r io.Reader) (int64, error) {
	p, err := m.StageChunk(ctx, identifier, chunkNumber, r)
	if err != nil {
		return 0, err
	}
	if err := p.Commit(); err != nil {
		return 0, err
	}
	return p.Size(), nil
}

func (m *Memory) StageChunk(ctx context.Context, identifier string, chunkNumber int, r io.Reader) (Pending, error) {
	m.mu.RLock()
	gen := m.removals[identifier]
	m.mu.RUnlock()

	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &memoryPending{m: m, identifier: identifier, chunk: chunkNumber, data: buf, gen: gen}, nil
}

type memoryPending struct {
	m          *Memory
	identifier string
	chunk      int
	data       []byte
	gen        uint64
}

func (p *memoryPending) Size() int64 {
	return int64(len(p.data))
}

func (p *memoryPending) Commit() error {
	m := p.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removals[p.identifier] != p.gen {
		return fmt.Errorf("%w: %s/%d", ErrChunkNotFound, p.identifier, p.chunk)
	}
	if m.chunks[p.identifier] == nil {
		m.chunks[p.identifier] = make(map[int][]byte)
	}
	m.chunks[p.identifier][p.chunk] = p.data
	return nil
}

func (p *memoryPending) Discard() error {
	return nil
}

func (m *Memory) OpenChunk(ctx context.Context, identifier string, chunkNumber int) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.chunks[identifier][chunkNumber]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrChunkNotFound, identifier, chunkNumber)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) HasChunk(ctx context.Context, identifier string, chunkNumber int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.chunks[identifier][chunkNumber]
	return ok, nil
}

func (m *Memory) Remove(ctx context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, identifier)
	m.removals[identifier]++
	return nil
}

// Identifiers returns the identifiers that currently hold chunks.
func (m *Memory) Identifiers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	return ids
}
