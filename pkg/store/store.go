// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package store defines the contract the coordination layer requires from
// the transactional replicated key/value store it runs against. The store's
// replication, partitioning and transaction engine are not implemented here;
// pkg/store/memory provides an in-process implementation of this contract.
package store

import (
	"context"

	"github.com/gridkit/coordination/pkg/primitive"
)

// Provider gives access to the store's physical regions (caches).
type Provider interface {
	// GetCache returns the cache with the given configuration, starting it
	// if it does not exist yet.
	GetCache(ctx context.Context, config primitive.CacheConfig) (Cache, error)

	// Cache returns an already started cache by name.
	Cache(name string) (Cache, bool)
}

// Cache is one physical region: a strongly consistent key/value map with
// pessimistic transactions and a change feed.
type Cache interface {
	// Name returns the cache name
	Name() string

	// Get reads the versioned value of a key.
	Get(ctx context.Context, key string) (primitive.Versioned[any], bool, error)

	// Put writes the value of a key.
	Put(ctx context.Context, key string, value any) error

	// Remove deletes a key, reporting whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// GetAndRemove deletes a key and returns the removed value.
	GetAndRemove(ctx context.Context, key string) (primitive.Versioned[any], bool, error)

	// GetAndPutIfAbsent writes the value only if the key is absent and
	// returns the previous value if there was one.
	GetAndPutIfAbsent(ctx context.Context, key string, value any) (primitive.Versioned[any], bool, error)

	// Begin opens a pessimistic, repeatable-read transaction. Keys are
	// locked on first access and held until commit or rollback.
	Begin(ctx context.Context) (Tx, error)

	// Scan iterates the committed entries matching the filter.
	Scan(ctx context.Context, filter func(key string, value any) bool) ([]Entry, error)

	// Subscribe registers a change-feed handler. Events for one key are
	// delivered in order; delivery happens on a dispatch goroutine owned by
	// the subscription, never on the mutating caller's goroutine.
	Subscribe(filter EventFilter, handler func(Event)) SubscriptionID

	// Unsubscribe cancels a subscription. Unknown ids are ignored.
	Unsubscribe(id SubscriptionID)
}

// Tx is a transaction scoped to one cache.
type Tx interface {
	Get(key string) (primitive.Versioned[any], bool, error)
	Put(key string, value any) error
	Remove(key string) (bool, error)
	Commit() error
	Rollback()
}

// Entry is one scanned cache entry.
type Entry struct {
	Key   string
	Value primitive.Versioned[any]
}

// EventType is the kind of a change-feed event.
type EventType int

const (
	Created EventType = iota
	Updated
	Removed
)

// Event is one change-feed notification. For Removed events the value holds
// the removed record with the version of the removal.
type Event struct {
	Type  EventType
	Key   string
	Value primitive.Versioned[any]
}

// EventFilter restricts the events delivered to a subscription.
type EventFilter func(Event) bool

// SubscriptionID identifies a change-feed subscription.
type SubscriptionID string
