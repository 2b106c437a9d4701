// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package latch

import (
	"context"
	"testing"
	"time"

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

func TestCountDownReleasesAwait(t *testing.T) {
	cache := newTestCache(t)
	rec := primitive.LatchRecord{Count: 2, InitialCount: 2}
	require.NoError(t, cache.Put(context.Background(), "gate", rec))

	l := New(cache, "gate", rec)
	assert.Equal(t, 2, l.InitialCount())

	done := make(chan error, 1)
	go func() {
		done <- l.Await(context.Background())
	}()

	count, err := l.CountDown(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	select {
	case <-done:
		t.Fatal("await released before the count reached zero")
	case <-time.After(50 * time.Millisecond):
	}

	count, err = l.CountDown(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await did not release at zero")
	}

	// Counting a released latch stays at zero.
	count, err = l.CountDown(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestZeroCountLatchIsReleasedImmediately(t *testing.T) {
	cache := newTestCache(t)
	rec := primitive.LatchRecord{Count: 0, InitialCount: 1}
	require.NoError(t, cache.Put(context.Background(), "gate", rec))

	l := New(cache, "gate", rec)
	assert.NoError(t, l.Await(context.Background()))
}

func TestUpdateFromFeedReleasesWaiters(t *testing.T) {
	cache := newTestCache(t)
	rec := primitive.LatchRecord{Count: 1, InitialCount: 1}
	require.NoError(t, cache.Put(context.Background(), "gate", rec))

	l := New(cache, "gate", rec).(interface {
		Latch
		OnUpdate(primitive.Versioned[primitive.Record])
	})

	l.OnUpdate(primitive.Versioned[primitive.Record]{
		Version: 10,
		Value:   primitive.LatchRecord{Count: 0, InitialCount: 1},
	})
	assert.NoError(t, l.Await(context.Background()))
}

func TestStaleUpdateIsIgnored(t *testing.T) {
	cache := newTestCache(t)
	rec := primitive.LatchRecord{Count: 1, InitialCount: 1}
	require.NoError(t, cache.Put(context.Background(), "gate", rec))

	l := New(cache, "gate", rec).(interface {
		Latch
		OnUpdate(primitive.Versioned[primitive.Record])
	})

	l.OnUpdate(primitive.Versioned[primitive.Record]{
		Version: 10,
		Value:   primitive.LatchRecord{Count: 1, InitialCount: 1},
	})
	// An older delivery claiming zero must not release the latch.
	l.OnUpdate(primitive.Versioned[primitive.Record]{
		Version: 5,
		Value:   primitive.LatchRecord{Count: 0, InitialCount: 1},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Await(ctx))
}

func TestRemovalReleasesWaiters(t *testing.T) {
	cache := newTestCache(t)
	rec := primitive.LatchRecord{Count: 1, InitialCount: 1}
	require.NoError(t, cache.Put(context.Background(), "gate", rec))

	l := New(cache, "gate", rec)

	done := make(chan error, 1)
	go func() {
		done <- l.Await(context.Background())
	}()

	l.OnRemoved()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await did not release on removal")
	}
}
