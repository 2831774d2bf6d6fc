// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"hash/fnv"
	"sync"
)

const numLockStripes = 256

// KeyedMutex hands out a read/write lock per string key using lock striping.
// Keys hashing to the same stripe share a lock; that only costs contention,
// never correctness, as long as callers hold at most one key at a time.
type KeyedMutex struct {
	stripes [numLockStripes]sync.RWMutex
}

// NewKeyedMutex creates a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

func (km *KeyedMutex) stripe(key string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &km.stripes[h.Sum32()%numLockStripes]
}

// Lock acquires the exclusive lock for key and returns its release func.
func (km *KeyedMutex) Lock(key string) func() {
	mu := km.stripe(key)
	mu.Lock()
	return mu.Unlock
}

// RLock acquires the shared lock for key and returns its release func.
func (km *KeyedMutex) RLock(key string) func() {
	mu := km.stripe(key)
	mu.RLock()
	return mu.RUnlock
}
