// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package value

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

type config struct {
	Name     string `json:"name"`
	Replicas int    `json:"replicas"`
}

func TestValueSetGet(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "ref", primitive.ValueRecord{}))

	v := New[config](cache, "ref", generic.JSON[config]())

	// A freshly created reference holds the zero value.
	current, err := v.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, config{}, current)

	assert.NoError(t, v.Set(context.Background(), config{Name: "api", Replicas: 3}))

	current, err = v.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, config{Name: "api", Replicas: 3}, current)
}

func TestValueCompareAndSet(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Put(context.Background(), "ref", primitive.ValueRecord{}))

	v := New[string](cache, "ref", generic.String())
	require.NoError(t, v.Set(context.Background(), "old"))

	swapped, err := v.CompareAndSet(context.Background(), "old", "new")
	assert.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = v.CompareAndSet(context.Background(), "old", "other")
	assert.NoError(t, err)
	assert.False(t, swapped)

	current, err := v.Get(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "new", current)
}
