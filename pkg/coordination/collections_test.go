// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination_test

import (
	"context"
	"testing"
	"time"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/coordination"
	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectionConfig() primitive.CollectionConfig {
	return primitive.CollectionConfig{
		CacheMode:     primitive.Partitioned,
		AtomicityMode: primitive.Transactional,
		Backups:       1,
	}
}

func TestQueueOfferPoll(t *testing.T) {
	cluster := startCluster(t, 2)

	producer, err := coordination.GetQueue[string](context.Background(), cluster.Manager(0), "tasks", generic.String(), collectionConfig(), 0)
	require.NoError(t, err)
	consumer, err := coordination.GetQueue[string](context.Background(), cluster.Manager(1), "tasks", generic.String(), collectionConfig(), 0)
	require.NoError(t, err)

	for _, task := range []string{"a", "b", "c"} {
		ok, err := producer.Offer(context.Background(), task)
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	size, err := consumer.Size(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, size)

	head, ok, err := consumer.Peek(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", head)

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := consumer.Poll(context.Background())
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok, err = consumer.Poll(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueCapacity(t *testing.T) {
	cluster := startCluster(t, 1)

	q, err := coordination.GetQueue[int](context.Background(), cluster.Manager(0), "bounded", generic.Int(), collectionConfig(), 2)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := q.Offer(context.Background(), i)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := q.Offer(context.Background(), 2)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = q.Poll(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Offer(context.Background(), 2)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestSetOperations(t *testing.T) {
	cluster := startCluster(t, 1)

	s, err := coordination.GetSet[string](context.Background(), cluster.Manager(0), "tags", generic.String(), collectionConfig())
	require.NoError(t, err)

	added, err := s.Add(context.Background(), "red")
	assert.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(context.Background(), "red")
	assert.NoError(t, err)
	assert.False(t, added)

	_, err = s.Add(context.Background(), "blue")
	assert.NoError(t, err)

	contains, err := s.Contains(context.Background(), "red")
	assert.NoError(t, err)
	assert.True(t, contains)

	size, err := s.Size(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, size)

	elements, err := s.Elements(context.Background())
	require.NoError(t, err)
	values, err := stream.Drain[string](elements)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"red", "blue"}, values)

	removed, err := s.Remove(context.Background(), "red")
	assert.NoError(t, err)
	assert.True(t, removed)

	assert.NoError(t, s.Clear(context.Background()))
	size, err = s.Size(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestRemoveQueueClearsElements(t *testing.T) {
	cluster := startCluster(t, 1)
	manager := cluster.Manager(0)

	q, err := coordination.GetQueue[string](context.Background(), manager, "doomed", generic.String(), collectionConfig(), 0)
	require.NoError(t, err)
	_, err = q.Offer(context.Background(), "leftover")
	require.NoError(t, err)

	require.NoError(t, manager.RemoveQueue(context.Background(), "doomed"))

	assert.Eventually(t, func() bool {
		_, err := q.Size(context.Background())
		return errors.IsNotFound(err)
	}, 2*time.Second, 10*time.Millisecond)

	// Re-creating the queue must start from empty.
	recreated, err := coordination.GetQueue[string](context.Background(), manager, "doomed", generic.String(), collectionConfig(), 0)
	require.NoError(t, err)
	size, err := recreated.Size(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestCompatibleRegionsAreShared(t *testing.T) {
	cluster := startCluster(t, 1)
	manager := cluster.Manager(0)

	_, err := coordination.GetSet[string](context.Background(), manager, "first", generic.String(), collectionConfig())
	require.NoError(t, err)
	_, err = coordination.GetSet[string](context.Background(), manager, "second", generic.String(), collectionConfig())
	require.NoError(t, err)

	other := collectionConfig()
	other.Backups = 2
	_, err = coordination.GetSet[string](context.Background(), manager, "third", generic.String(), other)
	require.NoError(t, err)

	metadata, ok := cluster.Store().Cache("atomics")
	require.True(t, ok)

	regions := make(map[string]string)
	for _, name := range []string{"first", "second", "third"} {
		v, exists, err := metadata.Get(context.Background(), name)
		require.NoError(t, err)
		require.True(t, exists)
		rec, ok := v.Value.(primitive.CollectionRecord)
		require.True(t, ok)
		regions[name] = rec.CacheName
	}

	assert.Equal(t, regions["first"], regions["second"])
	assert.NotEqual(t, regions["first"], regions["third"])
}

func TestCollocationMismatchIsConflict(t *testing.T) {
	cluster := startCluster(t, 2)

	_, err := coordination.GetQueue[string](context.Background(), cluster.Manager(0), "pinned", generic.String(), collectionConfig(), 0)
	require.NoError(t, err)

	collocated := collectionConfig()
	collocated.Collocated = true
	_, err = coordination.GetQueue[string](context.Background(), cluster.Manager(1), "pinned", generic.String(), collocated, 0)
	assert.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}
