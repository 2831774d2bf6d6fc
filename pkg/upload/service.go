// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload is the chunked-upload assembly engine. It stages chunk
// blobs, tracks which chunks of a session have arrived, and assembles the
// final file exactly once when the last one lands.
package upload

import (
	"context"
	"io"

	"github.com/qiaobaojoe/house-file-courier/pkg/library"
)

// Service defines the interface for chunked upload operations.
// This separates business logic from HTTP handling.
type Service interface {
	// ReceiveChunk stores one chunk, records it, and assembles the file if
	// it was the last one missing.
	ReceiveChunk(ctx context.Context, req *ChunkRequest) (*ChunkResult, error)

	// Progress returns the chunk numbers received so far for identifier, in
	// arrival order. Unknown identifiers have no chunks.
	Progress(ctx context.Context, identifier string) ([]int, error)
}

// ChunkRequest contains parameters for uploading one chunk
type ChunkRequest struct {
	Identifier  string
	Filename    string
	ChunkNumber int // 1-based
	TotalChunks int
	Body        io.Reader
}

// ChunkResult contains the result of uploading a chunk
type ChunkResult struct {
	// Complete is set when the session has been assembled, either by this
	// request or by a concurrent one.
	Complete bool

	// ReceivedChunks is the session's chunk count after this request. Zero
	// once the session is complete.
	ReceivedChunks int
	TotalChunks    int

	// File is set only on the request that performed the assembly.
	File *library.StoredFile
}
