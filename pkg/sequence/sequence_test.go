// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sequence

import (
	"context"
	"testing"

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

func TestNextWithinReservedRange(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "seq", primitive.SequenceRecord{Counter: 10}))

	seq := New(cache, "seq", 5, 0, 9)
	assert.Equal(t, int64(0), seq.Get())

	for want := int64(1); want <= 9; want++ {
		got, err := seq.Next(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestExhaustionReservesNewRange(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "seq", primitive.SequenceRecord{Counter: 10}))

	seq := New(cache, "seq", 5, 0, 9)
	for i := 0; i < 9; i++ {
		_, err := seq.Next(context.Background())
		require.NoError(t, err)
	}

	// The range is exhausted; the next value comes from a fresh reservation
	// starting at the durable counter.
	got, err := seq.Next(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(11), got)

	lower, upper := seq.Range()
	assert.Equal(t, int64(11), lower)
	assert.Equal(t, int64(14), upper)

	v, ok, err := cache.Get(context.Background(), "seq")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, primitive.SequenceRecord{Counter: 15}, v.Value)
}

func TestAddBeyondReserveSize(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "seq", primitive.SequenceRecord{Counter: 10}))

	seq := New(cache, "seq", 5, 0, 9)
	got, err := seq.Add(context.Background(), 100)
	assert.NoError(t, err)
	assert.Equal(t, int64(110), got)
}

func TestAddRejectsNonPositiveDelta(t *testing.T) {
	cache := newTestCache(t)
	seq := New(cache, "seq", 5, 0, 9)

	_, err := seq.Add(context.Background(), 0)
	assert.Error(t, err)
	_, err = seq.Add(context.Background(), -1)
	assert.Error(t, err)
}

func TestRemovedSequenceFailsOnReserve(t *testing.T) {
	cache := newTestCache(t)

	// No durable record: the next reservation must detach the handle.
	seq := New(cache, "seq", 5, 0, 1)
	got, err := seq.Next(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), got)

	_, err = seq.Next(context.Background())
	assert.Error(t, err)
}

func TestReserveOffset(t *testing.T) {
	assert.Equal(t, int64(1), ReserveOffset(0))
	assert.Equal(t, int64(1), ReserveOffset(1))
	assert.Equal(t, int64(999), ReserveOffset(1000))
}
