// SPDX-FileCopyrightText: 2023-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

type read struct {
	value   any
	version primitive.Version
	exists  bool
}

type write struct {
	value  any
	remove bool
}

// transaction is a pessimistic repeatable-read transaction: the first access
// to a key locks it until commit or rollback, reads are buffered so repeated
// reads observe the same value, and writes stay local until commit.
type transaction struct {
	cache  *Cache
	reads  map[string]read
	writes map[string]write
	keys   []string
	done   bool
}

func (t *transaction) lock(key string) {
	if _, ok := t.cache.locks[key]; ok && t.cache.locks[key] == t {
		return
	}
	t.cache.awaitUnlocked(key, t)
	t.cache.locks[key] = t
	t.keys = append(t.keys, key)
}

func (t *transaction) Get(key string) (primitive.Versioned[any], bool, error) {
	if t.done {
		return primitive.Versioned[any]{}, false, errors.NewInvalid("transaction already completed")
	}
	if w, ok := t.writes[key]; ok {
		if w.remove {
			return primitive.Versioned[any]{}, false, nil
		}
		return primitive.Versioned[any]{Value: w.value}, true, nil
	}

	t.cache.mu.Lock()
	defer t.cache.mu.Unlock()
	t.lock(key)
	if r, ok := t.reads[key]; ok {
		if !r.exists {
			return primitive.Versioned[any]{}, false, nil
		}
		return primitive.Versioned[any]{Version: r.version, Value: r.value}, true, nil
	}
	e, ok := t.cache.entries[key]
	t.reads[key] = read{value: e.value, version: e.version, exists: ok}
	if !ok {
		return primitive.Versioned[any]{}, false, nil
	}
	return primitive.Versioned[any]{Version: e.version, Value: e.value}, true, nil
}

func (t *transaction) Put(key string, value any) error {
	if t.done {
		return errors.NewInvalid("transaction already completed")
	}
	t.cache.mu.Lock()
	t.lock(key)
	t.cache.mu.Unlock()
	t.writes[key] = write{value: value}
	return nil
}

func (t *transaction) Remove(key string) (bool, error) {
	if t.done {
		return false, errors.NewInvalid("transaction already completed")
	}
	_, existed, err := t.Get(key)
	if err != nil {
		return false, err
	}
	t.writes[key] = write{remove: true}
	return existed, nil
}

func (t *transaction) Commit() error {
	if t.done {
		return errors.NewInvalid("transaction already completed")
	}
	if err := t.cache.takeFault(); err != nil {
		t.Rollback()
		return err
	}

	t.cache.mu.Lock()
	events := make([]store.Event, 0, len(t.writes))
	for _, key := range t.keys {
		w, ok := t.writes[key]
		if !ok {
			continue
		}
		if w.remove {
			if _, exists := t.cache.entries[key]; !exists {
				continue
			}
		}
		events = append(events, t.cache.commitWrite(key, w.value, w.remove))
	}
	t.cache.publish(events...)
	t.release()
	t.cache.mu.Unlock()
	return nil
}

func (t *transaction) Rollback() {
	if t.done {
		return
	}
	t.cache.mu.Lock()
	t.release()
	t.cache.mu.Unlock()
}

// release drops all key locks. Callers hold the cache mutex.
func (t *transaction) release() {
	for _, key := range t.keys {
		if t.cache.locks[key] == t {
			delete(t.cache.locks, key)
		}
	}
	t.done = true
	t.cache.cond.Broadcast()
}

var _ store.Tx = (*transaction)(nil)
