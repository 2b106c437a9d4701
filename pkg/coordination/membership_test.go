// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination_test

import (
	"context"
	"testing"
	"time"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/lock"
	"github.com/gridkit/coordination/pkg/semaphore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphorePermitsReturnedOnDeparture(t *testing.T) {
	cluster := startCluster(t, 2)

	survivor, err := cluster.Manager(0).GetSemaphore(context.Background(), "permits",
		semaphore.WithPermits(2), semaphore.WithFailoverSafe())
	require.NoError(t, err)
	victim, err := cluster.Manager(1).GetSemaphore(context.Background(), "permits")
	require.NoError(t, err)

	acquired, err := victim.TryAcquire(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, acquired)

	available, err := survivor.AvailablePermits(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, available)

	cluster.Kill(1)

	assert.Eventually(t, func() bool {
		available, err := survivor.AvailablePermits(context.Background())
		return err == nil && available == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSemaphoreBreaksWithoutFailoverSafety(t *testing.T) {
	cluster := startCluster(t, 2)

	survivor, err := cluster.Manager(0).GetSemaphore(context.Background(), "fragile",
		semaphore.WithPermits(1))
	require.NoError(t, err)
	victim, err := cluster.Manager(1).GetSemaphore(context.Background(), "fragile")
	require.NoError(t, err)

	acquired, err := victim.TryAcquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, acquired)

	cluster.Kill(1)

	assert.Eventually(t, func() bool {
		_, err := survivor.TryAcquire(context.Background(), 1)
		return errors.IsForbidden(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLockReleasedOnOwnerDeparture(t *testing.T) {
	cluster := startCluster(t, 2)

	survivor, err := cluster.Manager(0).GetLock(context.Background(), "guard", lock.WithFailoverSafe())
	require.NoError(t, err)
	victim, err := cluster.Manager(1).GetLock(context.Background(), "guard")
	require.NoError(t, err)

	require.NoError(t, victim.Lock(context.Background()))

	locked, err := survivor.TryLock(context.Background())
	assert.NoError(t, err)
	assert.False(t, locked)

	cluster.Kill(1)

	assert.Eventually(t, func() bool {
		locked, err := survivor.TryLock(context.Background())
		return err == nil && locked
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLockBlocksUntilReleased(t *testing.T) {
	cluster := startCluster(t, 2)

	first, err := cluster.Manager(0).GetLock(context.Background(), "turnstile")
	require.NoError(t, err)
	second, err := cluster.Manager(1).GetLock(context.Background(), "turnstile")
	require.NoError(t, err)

	require.NoError(t, first.Lock(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- second.Lock(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("lock acquired while held by another member")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Unlock(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lock not granted after release")
	}
}

func TestLockIsReentrant(t *testing.T) {
	cluster := startCluster(t, 1)

	l, err := cluster.Manager(0).GetLock(context.Background(), "nested")
	require.NoError(t, err)

	require.NoError(t, l.Lock(context.Background()))
	require.NoError(t, l.Lock(context.Background()))

	locked, err := l.IsLocked(context.Background())
	assert.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, l.Unlock(context.Background()))
	locked, err = l.IsLocked(context.Background())
	assert.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, l.Unlock(context.Background()))
	locked, err = l.IsLocked(context.Background())
	assert.NoError(t, err)
	assert.False(t, locked)
}

func TestUnlockByNonOwnerFails(t *testing.T) {
	cluster := startCluster(t, 2)

	owner, err := cluster.Manager(0).GetLock(context.Background(), "owned")
	require.NoError(t, err)
	other, err := cluster.Manager(1).GetLock(context.Background(), "owned")
	require.NoError(t, err)

	require.NoError(t, owner.Lock(context.Background()))

	err = other.Unlock(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.IsForbidden(err))

	assert.NoError(t, owner.Unlock(context.Background()))
}

func TestRemoveHeldLockRequiresForce(t *testing.T) {
	cluster := startCluster(t, 1)
	manager := cluster.Manager(0)

	l, err := manager.GetLock(context.Background(), "stuck")
	require.NoError(t, err)
	require.NoError(t, l.Lock(context.Background()))

	err = manager.RemoveLock(context.Background(), "stuck", false)
	assert.Error(t, err)
	assert.True(t, errors.IsForbidden(err))

	assert.NoError(t, manager.RemoveLock(context.Background(), "stuck", true))

	assert.Eventually(t, func() bool {
		_, err := l.IsLocked(context.Background())
		return errors.IsNotFound(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSemaphoreBlockedAcquirerWakesOnRelease(t *testing.T) {
	cluster := startCluster(t, 2)

	holder, err := cluster.Manager(0).GetSemaphore(context.Background(), "single",
		semaphore.WithPermits(1))
	require.NoError(t, err)
	waiter, err := cluster.Manager(1).GetSemaphore(context.Background(), "single")
	require.NoError(t, err)

	acquired, err := holder.TryAcquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, acquired)

	done := make(chan error, 1)
	go func() {
		done <- waiter.Acquire(context.Background(), 1)
	}()

	select {
	case <-done:
		t.Fatal("acquired permits that were not available")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, holder.Release(context.Background(), 1))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not wake after release")
	}
}
