// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

// Package memory is an in-process implementation of the backing store
// contract: versioned entries, pessimistic repeatable-read transactions and
// an asynchronous change feed. It backs the test harness and the demo CLI.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// New creates an empty store.
func New() *Store {
	return &Store{
		caches: make(map[string]*Cache),
	}
}

// Store is a set of named in-memory caches.
type Store struct {
	mu     sync.RWMutex
	caches map[string]*Cache
}

func (s *Store) GetCache(ctx context.Context, config primitive.CacheConfig) (store.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cache, ok := s.caches[config.Name]; ok {
		return cache, nil
	}
	cache := newCache(config)
	s.caches[config.Name] = cache
	return cache, nil
}

func (s *Store) Cache(name string) (store.Cache, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cache, ok := s.caches[name]
	return cache, ok
}

var _ store.Provider = (*Store)(nil)

func newCache(config primitive.CacheConfig) *Cache {
	c := &Cache{
		config:  config,
		entries: make(map[string]entry),
		locks:   make(map[string]*transaction),
		subs:    make(map[store.SubscriptionID]*subscription),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

type entry struct {
	value   any
	version primitive.Version
}

// Cache is one in-memory region.
type Cache struct {
	config primitive.CacheConfig

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]entry
	locks   map[string]*transaction
	version primitive.Version

	subMu sync.RWMutex
	subs  map[store.SubscriptionID]*subscription

	faultMu sync.Mutex
	faults  []error
}

func (c *Cache) Name() string {
	return c.config.Name
}

// InjectFailure queues an error returned by the next store operation.
// Queued failures are consumed in order; tests use this to exercise the
// retry executor's topology handling.
func (c *Cache) InjectFailure(err error) {
	c.faultMu.Lock()
	c.faults = append(c.faults, err)
	c.faultMu.Unlock()
}

func (c *Cache) takeFault() error {
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	if len(c.faults) == 0 {
		return nil
	}
	err := c.faults[0]
	c.faults = c.faults[1:]
	return err
}

func (c *Cache) Get(ctx context.Context, key string) (primitive.Versioned[any], bool, error) {
	if err := c.takeFault(); err != nil {
		return primitive.Versioned[any]{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaitUnlocked(key, nil)
	e, ok := c.entries[key]
	if !ok {
		return primitive.Versioned[any]{}, false, nil
	}
	return primitive.Versioned[any]{Version: e.version, Value: e.value}, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, value any) error {
	if err := c.takeFault(); err != nil {
		return err
	}
	c.mu.Lock()
	c.awaitUnlocked(key, nil)
	event := c.commitWrite(key, value, false)
	c.publish(event)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Remove(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.GetAndRemove(ctx, key)
	return ok, err
}

func (c *Cache) GetAndRemove(ctx context.Context, key string) (primitive.Versioned[any], bool, error) {
	if err := c.takeFault(); err != nil {
		return primitive.Versioned[any]{}, false, err
	}
	c.mu.Lock()
	c.awaitUnlocked(key, nil)
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return primitive.Versioned[any]{}, false, nil
	}
	event := c.commitWrite(key, nil, true)
	c.publish(event)
	c.mu.Unlock()
	return primitive.Versioned[any]{Version: e.version, Value: e.value}, true, nil
}

func (c *Cache) GetAndPutIfAbsent(ctx context.Context, key string, value any) (primitive.Versioned[any], bool, error) {
	if err := c.takeFault(); err != nil {
		return primitive.Versioned[any]{}, false, err
	}
	c.mu.Lock()
	c.awaitUnlocked(key, nil)
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return primitive.Versioned[any]{Version: e.version, Value: e.value}, true, nil
	}
	event := c.commitWrite(key, value, false)
	c.publish(event)
	c.mu.Unlock()
	return primitive.Versioned[any]{}, false, nil
}

func (c *Cache) Scan(ctx context.Context, filter func(key string, value any) bool) ([]store.Entry, error) {
	if err := c.takeFault(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	entries := make([]store.Entry, 0, len(c.entries))
	for key, e := range c.entries {
		if filter == nil || filter(key, e.value) {
			entries = append(entries, store.Entry{
				Key:   key,
				Value: primitive.Versioned[any]{Version: e.version, Value: e.value},
			})
		}
	}
	c.mu.Unlock()
	return entries, nil
}

func (c *Cache) Begin(ctx context.Context) (store.Tx, error) {
	if err := c.takeFault(); err != nil {
		return nil, err
	}
	return &transaction{
		cache:  c,
		reads:  make(map[string]read),
		writes: make(map[string]write),
	}, nil
}

// awaitUnlocked blocks while the key is locked by a transaction other than
// owner. Callers hold c.mu.
func (c *Cache) awaitUnlocked(key string, owner *transaction) {
	for {
		holder, ok := c.locks[key]
		if !ok || holder == owner {
			return
		}
		c.cond.Wait()
	}
}

// commitWrite applies one mutation and returns the resulting event.
// Callers hold c.mu.
func (c *Cache) commitWrite(key string, value any, remove bool) store.Event {
	old, existed := c.entries[key]
	c.version++
	if remove {
		delete(c.entries, key)
		return store.Event{
			Type:  store.Removed,
			Key:   key,
			Value: primitive.Versioned[any]{Version: c.version, Value: old.value},
		}
	}
	c.entries[key] = entry{value: value, version: c.version}
	typ := store.Created
	if existed {
		typ = store.Updated
	}
	return store.Event{
		Type:  typ,
		Key:   key,
		Value: primitive.Versioned[any]{Version: c.version, Value: value},
	}
}

func (c *Cache) Subscribe(filter store.EventFilter, handler func(store.Event)) store.SubscriptionID {
	sub := newSubscription(store.SubscriptionID(uuid.New().String()), filter, handler)
	c.subMu.Lock()
	c.subs[sub.id] = sub
	c.subMu.Unlock()
	go sub.run()
	return sub.id
}

func (c *Cache) Unsubscribe(id store.SubscriptionID) {
	c.subMu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.subMu.Unlock()
	if ok {
		sub.close()
	}
}

// publish enqueues events to every subscription. Callers hold c.mu, so
// events for one key are enqueued in commit order; enqueueing never blocks.
func (c *Cache) publish(events ...store.Event) {
	c.subMu.RLock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()
	for _, event := range events {
		for _, sub := range subs {
			sub.enqueue(event)
		}
	}
}

var _ store.Cache = (*Cache)(nil)
