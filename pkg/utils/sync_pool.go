// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"hash"
	"sync"

	"github.com/minio/sha256-simd"
)

// CopyBufferSize is the buffer size used when streaming chunks and files.
const CopyBufferSize = 256 << 10

var (
	copyBufferPool = sync.Pool{
		New: func() any {
			buf := make([]byte, CopyBufferSize)
			return &buf
		},
	}
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
)

func CopyBufferGet() *[]byte {
	return copyBufferPool.Get().(*[]byte)
}

func CopyBufferPut(buf *[]byte) {
	copyBufferPool.Put(buf)
}

func Sha256PoolGetHasher() hash.Hash {
	return sha256Pool.Get().(hash.Hash)
}

func Sha256PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha256Pool.Put(h)
}
