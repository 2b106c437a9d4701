// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) store.Cache {
	t.Helper()
	cache, err := New().GetCache(context.Background(), primitive.CacheConfig{Name: "test"})
	require.NoError(t, err)
	return cache
}

func TestGetCacheIsIdempotent(t *testing.T) {
	s := New()
	first, err := s.GetCache(context.Background(), primitive.CacheConfig{Name: "shared"})
	require.NoError(t, err)
	second, err := s.GetCache(context.Background(), primitive.CacheConfig{Name: "shared"})
	require.NoError(t, err)
	assert.Same(t, first, second)

	byName, ok := s.Cache("shared")
	assert.True(t, ok)
	assert.Same(t, first, byName)
}

func TestVersionsAreMonotonic(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Put(context.Background(), "k", "v1"))
	v1, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, cache.Put(context.Background(), "k", "v2"))
	v2, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Greater(t, v2.Version, v1.Version)
	assert.Equal(t, "v2", v2.Value)
}

func TestGetAndPutIfAbsent(t *testing.T) {
	cache := newTestCache(t)

	_, existed, err := cache.GetAndPutIfAbsent(context.Background(), "k", "first")
	assert.NoError(t, err)
	assert.False(t, existed)

	prev, existed, err := cache.GetAndPutIfAbsent(context.Background(), "k", "second")
	assert.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "first", prev.Value)

	v, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", v.Value)
}

func TestTransactionIsRepeatableRead(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "k", "stable"))

	tx, err := cache.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	first, ok, err := tx.Get("k")
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := tx.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestTransactionSeesOwnWrites(t *testing.T) {
	cache := newTestCache(t)

	tx, err := cache.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Put("k", "buffered"))
	v, ok, err := tx.Get("k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "buffered", v.Value)

	// Nothing is visible outside before commit.
	entries, err := cache.Scan(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLockedKeyBlocksReaders(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "k", "v1"))

	tx, err := cache.Begin(context.Background())
	require.NoError(t, err)
	_, _, err = tx.Get("k")
	require.NoError(t, err)
	require.NoError(t, tx.Put("k", "v2"))

	read := make(chan any, 1)
	go func() {
		v, _, _ := cache.Get(context.Background(), "k")
		read <- v.Value
	}()

	select {
	case <-read:
		t.Fatal("read completed while the key was locked")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Commit())

	select {
	case value := <-read:
		assert.Equal(t, "v2", value)
	case <-time.After(time.Second):
		t.Fatal("read did not complete after commit")
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "k", "original"))

	tx, err := cache.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Put("k", "discarded"))
	tx.Rollback()

	v, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "original", v.Value)
}

func TestSubscriptionDeliversEventsInOrder(t *testing.T) {
	cache := newTestCache(t)

	events := make(chan store.Event, 10)
	id := cache.Subscribe(nil, func(event store.Event) {
		events <- event
	})
	defer cache.Unsubscribe(id)

	require.NoError(t, cache.Put(context.Background(), "k", "v1"))
	require.NoError(t, cache.Put(context.Background(), "k", "v2"))
	_, err := cache.Remove(context.Background(), "k")
	require.NoError(t, err)

	expect := []store.EventType{store.Created, store.Updated, store.Removed}
	for _, want := range expect {
		select {
		case event := <-events:
			assert.Equal(t, want, event.Type)
			assert.Equal(t, "k", event.Key)
		case <-time.After(time.Second):
			t.Fatalf("missing %v event", want)
		}
	}
}

func TestSameKeyEventsDeliverInVersionOrder(t *testing.T) {
	cache := newTestCache(t)

	const writers = 4
	const writes = 250
	versions := make(chan primitive.Version, writers*writes)
	id := cache.Subscribe(nil, func(event store.Event) {
		versions <- event.Value.Version
	})
	defer cache.Unsubscribe(id)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < writes; j++ {
				assert.NoError(t, cache.Put(context.Background(), "k", j))
			}
		}()
	}
	wg.Wait()

	var last primitive.Version
	for i := 0; i < writers*writes; i++ {
		select {
		case version := <-versions:
			require.Greater(t, version, last, "event %d delivered out of order", i)
			last = version
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestSubscriptionFilter(t *testing.T) {
	cache := newTestCache(t)

	events := make(chan store.Event, 10)
	id := cache.Subscribe(func(event store.Event) bool {
		return event.Type == store.Removed
	}, func(event store.Event) {
		events <- event
	})
	defer cache.Unsubscribe(id)

	require.NoError(t, cache.Put(context.Background(), "k", "v"))
	_, err := cache.Remove(context.Background(), "k")
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, store.Removed, event.Type)
	case <-time.After(time.Second):
		t.Fatal("missing removed event")
	}
	select {
	case event := <-events:
		t.Fatalf("unexpected event %v", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommittedTransactionPublishesEvents(t *testing.T) {
	cache := newTestCache(t)

	events := make(chan store.Event, 10)
	id := cache.Subscribe(nil, func(event store.Event) {
		events <- event
	})
	defer cache.Unsubscribe(id)

	tx, err := cache.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Put("a", 1))
	require.NoError(t, tx.Put("b", 2))
	require.NoError(t, tx.Commit())

	for i := 0; i < 2; i++ {
		select {
		case event := <-events:
			assert.Equal(t, store.Created, event.Type)
		case <-time.After(time.Second):
			t.Fatal("missing transaction event")
		}
	}
}

func TestInjectedFailuresAreConsumedInOrder(t *testing.T) {
	cache := newTestCache(t).(*Cache)

	cache.InjectFailure(store.NewTransientTopology("first"))
	cache.InjectFailure(store.NewTerminalTopology("second"))

	err := cache.Put(context.Background(), "k", "v")
	assert.True(t, store.IsTransientTopology(err))

	err = cache.Put(context.Background(), "k", "v")
	assert.True(t, store.IsTerminalTopology(err))

	assert.NoError(t, cache.Put(context.Background(), "k", "v"))
}
