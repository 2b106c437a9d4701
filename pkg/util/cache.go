// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"sync"

	"github.com/gridkit/coordination/pkg/primitive"
)

func NewRecordCache[V any]() *RecordCache[V] {
	return &RecordCache[V]{}
}

// RecordCache caches the last observed version of a durable record. Store
// accepts only strictly newer versions, which makes change-feed delivery
// idempotent for handles: redundant or out-of-order updates are rejected.
type RecordCache[V any] struct {
	value *primitive.Versioned[V]
	mu    sync.RWMutex
}

func (c *RecordCache[V]) Store(value primitive.Versioned[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || value.Version == 0 || value.Version > c.value.Version {
		c.value = &value
		return true
	}
	return false
}

func (c *RecordCache[V]) Load() (*primitive.Versioned[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value != nil {
		return c.value, true
	}
	return nil, false
}

func (c *RecordCache[V]) Delete(version primitive.Version) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != nil && (version == 0 || version >= c.value.Version) {
		c.value = nil
		return true
	}
	return false
}

func (c *RecordCache[V]) Invalidate() {
	c.mu.Lock()
	c.value = nil
	c.mu.Unlock()
}
