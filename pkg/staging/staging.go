// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package staging stores chunk blobs of in-flight uploads, one area per
// upload identifier, until the session is assembled and retired.
package staging

import (
	"context"
	"errors"
	"io"
	"strconv"
)

var ErrChunkNotFound = errors.New("chunk not found")

// Area is the transient per-identifier chunk storage.
//
// Writes of distinct chunk numbers of the same identifier may run in
// parallel. Callers must not Remove an identifier while writes to it are in
// flight.
type Area interface {
	// WriteChunk stores the bytes for (identifier, chunkNumber), replacing any
	// previous write of the same chunk. It returns the number of bytes stored.
	WriteChunk(ctx context.Context, identifier string, chunkNumber int, r io.Reader) (int64, error)

	// StageChunk reads the chunk into storage that OpenChunk and HasChunk do
	// not see until the returned Pending is committed.
	StageChunk(ctx context.Context, identifier string, chunkNumber int, r io.Reader) (Pending, error)

	// OpenChunk returns the stored bytes or ErrChunkNotFound.
	OpenChunk(ctx context.Context, identifier string, chunkNumber int) (io.ReadCloser, error)

	// HasChunk reports whether the chunk is currently stored.
	HasChunk(ctx context.Context, identifier string, chunkNumber int) (bool, error)

	// Remove deletes every chunk of identifier. Removing an unknown
	// identifier is a no-op.
	Remove(ctx context.Context, identifier string) error
}

// Pending is a staged chunk awaiting a decision. Exactly one of Commit or
// Discard must be called.
type Pending interface {
	// Size is the number of bytes staged.
	Size() int64

	// Commit publishes the chunk, replacing any stored copy. It returns
	// ErrChunkNotFound when the identifier was removed after staging.
	Commit() error

	// Discard drops the staged bytes.
	Discard() error
}

func chunkName(chunkNumber int) string {
	return strconv.Itoa(chunkNumber)
}
