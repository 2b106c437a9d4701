// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package stamped

import (
	"context"
	"testing"

	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/gridkit/coordination/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) store.Cache {
	t.Helper()
	cache, err := memory.New().GetCache(context.Background(), primitive.CacheConfig{Name: "atomics"})
	require.NoError(t, err)
	return cache
}

func TestStampedSetGet(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "versioned", primitive.StampedRecord{}))

	s := New[string, int](cache, "versioned", generic.String(), generic.Int())
	require.NoError(t, s.Set(context.Background(), "payload", 7))

	value, stamp, err := s.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "payload", value)
	assert.Equal(t, 7, stamp)
}

func TestStampedCompareAndSet(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "versioned", primitive.StampedRecord{}))

	s := New[string, int](cache, "versioned", generic.String(), generic.Int())
	require.NoError(t, s.Set(context.Background(), "payload", 1))

	// A matching value with a stale stamp must not swap.
	swapped, err := s.CompareAndSet(context.Background(), "payload", 0, "updated", 2)
	assert.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.CompareAndSet(context.Background(), "payload", 1, "updated", 2)
	assert.NoError(t, err)
	assert.True(t, swapped)

	value, stamp, err := s.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "updated", value)
	assert.Equal(t, 2, stamp)
}
