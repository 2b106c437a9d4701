// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"testing"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/cluster"
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

func TestTryLockAndUnlock(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "mtx", primitive.LockRecord{}))

	first := New(cache, "mtx", "member-1")
	second := New(cache, "mtx", "member-2")

	locked, err := first.TryLock(context.Background())
	assert.NoError(t, err)
	assert.True(t, locked)

	locked, err = second.TryLock(context.Background())
	assert.NoError(t, err)
	assert.False(t, locked)

	assert.NoError(t, first.Unlock(context.Background()))

	locked, err = second.TryLock(context.Background())
	assert.NoError(t, err)
	assert.True(t, locked)
}

func TestReentrancy(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "mtx", primitive.LockRecord{}))

	l := New(cache, "mtx", "member-1")

	for i := 0; i < 3; i++ {
		locked, err := l.TryLock(context.Background())
		require.NoError(t, err)
		require.True(t, locked)
	}
	for i := 0; i < 3; i++ {
		locked, err := l.IsLocked(context.Background())
		require.NoError(t, err)
		require.True(t, locked)
		require.NoError(t, l.Unlock(context.Background()))
	}

	locked, err := l.IsLocked(context.Background())
	assert.NoError(t, err)
	assert.False(t, locked)
}

func TestUnlockWithoutHoldFails(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "mtx", primitive.LockRecord{}))

	owner := New(cache, "mtx", "member-1")
	other := New(cache, "mtx", "member-2")

	locked, err := owner.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, locked)

	err = other.Unlock(context.Background())
	assert.True(t, errors.IsForbidden(err))
}

func TestOwnerDepartureReleasesFailoverSafeLock(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "mtx", primitive.LockRecord{FailoverSafe: true}))

	owner := New(cache, "mtx", "member-1")
	survivor := New(cache, "mtx", "member-2").(interface {
		Lock
		OnNodeRemoved(cluster.MemberID)
	})

	locked, err := owner.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, locked)

	survivor.OnNodeRemoved("member-1")

	locked, err = survivor.TryLock(context.Background())
	assert.NoError(t, err)
	assert.True(t, locked)
}

func TestOwnerDepartureBreaksLockWithoutFailoverSafety(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "mtx", primitive.LockRecord{}))

	owner := New(cache, "mtx", "member-1")
	survivor := New(cache, "mtx", "member-2").(interface {
		Lock
		OnNodeRemoved(cluster.MemberID)
	})

	locked, err := owner.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, locked)

	survivor.OnNodeRemoved("member-1")

	_, err = survivor.TryLock(context.Background())
	assert.True(t, errors.IsForbidden(err))
}
