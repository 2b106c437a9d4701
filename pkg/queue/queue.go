// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"strconv"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// Queue provides a distributed FIFO queue. Elements are stored codec-encoded
// in the queue's element cache, indexed by a durable header record.
type Queue[E any] interface {
	primitive.Handle

	// Offer appends an element, returning false when the queue is bounded and
	// full
	Offer(ctx context.Context, element E) (bool, error)

	// Poll removes and returns the head element; ok is false when the queue
	// is empty
	Poll(ctx context.Context) (E, bool, error)

	// Peek returns the head element without removing it; ok is false when the
	// queue is empty
	Peek(ctx context.Context) (E, bool, error)

	// Size reads the number of queued elements
	Size(ctx context.Context) (int, error)

	// Clear removes all elements
	Clear(ctx context.Context) error
}

// Header indexes the live window of a queue. Head is the index of the next
// element to poll, Tail the index of the next slot to fill; the queue holds
// Tail-Head elements. Cap of zero means unbounded.
type Header struct {
	Head int64
	Tail int64
	Cap  int
}

// New creates a queue handle over its element cache.
func New[E any](cache store.Cache, name string, codec generic.Codec[E], capacity int) Queue[E] {
	return &queuePrimitive[E]{
		Base:     primitive.NewBase(name, primitive.Queue),
		cache:    cache,
		codec:    codec,
		capacity: capacity,
	}
}

type queuePrimitive[E any] struct {
	*primitive.Base
	cache    store.Cache
	codec    generic.Codec[E]
	capacity int
}

func (q *queuePrimitive[E]) Size(ctx context.Context) (int, error) {
	if q.Removed() {
		return 0, errors.NewNotFound("queue %s has been removed", q.Name())
	}
	v, ok, err := q.cache.Get(ctx, q.Name())
	if err != nil {
		return 0, err
	}
	if !ok {
		q.OnRemoved()
		return 0, errors.NewNotFound("queue %s has been removed", q.Name())
	}
	hdr, ok := v.Value.(Header)
	if !ok {
		return 0, errors.NewConflict("%s is not a queue", q.Name())
	}
	return int(hdr.Tail - hdr.Head), nil
}

func (q *queuePrimitive[E]) Offer(ctx context.Context, element E) (bool, error) {
	encoded, err := q.codec.Marshal(&element)
	if err != nil {
		return false, errors.NewInvalid("element encoding failed: %v", err)
	}
	var offered bool
	err = q.withHeader(ctx, func(tx store.Tx, hdr *Header) (bool, error) {
		if hdr.Cap > 0 && hdr.Tail-hdr.Head >= int64(hdr.Cap) {
			offered = false
			return false, nil
		}
		if err := tx.Put(q.itemKey(hdr.Tail), encoded); err != nil {
			return false, err
		}
		hdr.Tail++
		offered = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return offered, nil
}

func (q *queuePrimitive[E]) Poll(ctx context.Context) (E, bool, error) {
	var element E
	var polled bool
	err := q.withHeader(ctx, func(tx store.Tx, hdr *Header) (bool, error) {
		if hdr.Head == hdr.Tail {
			polled = false
			return false, nil
		}
		key := q.itemKey(hdr.Head)
		v, ok, err := tx.Get(key)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errors.NewInternal("queue %s is missing element %d", q.Name(), hdr.Head)
		}
		encoded, ok := v.Value.([]byte)
		if !ok {
			return false, errors.NewInternal("queue %s holds a malformed element at %d", q.Name(), hdr.Head)
		}
		if err := q.codec.Unmarshal(encoded, &element); err != nil {
			return false, errors.NewInvalid("element decoding failed: %v", err)
		}
		if _, err := tx.Remove(key); err != nil {
			return false, err
		}
		hdr.Head++
		polled = true
		return true, nil
	})
	if err != nil {
		return element, false, err
	}
	return element, polled, nil
}

func (q *queuePrimitive[E]) Peek(ctx context.Context) (E, bool, error) {
	var element E
	if q.Removed() {
		return element, false, errors.NewNotFound("queue %s has been removed", q.Name())
	}
	v, ok, err := q.cache.Get(ctx, q.Name())
	if err != nil {
		return element, false, err
	}
	if !ok {
		q.OnRemoved()
		return element, false, errors.NewNotFound("queue %s has been removed", q.Name())
	}
	hdr, ok := v.Value.(Header)
	if !ok {
		return element, false, errors.NewConflict("%s is not a queue", q.Name())
	}
	if hdr.Head == hdr.Tail {
		return element, false, nil
	}
	item, ok, err := q.cache.Get(ctx, q.itemKey(hdr.Head))
	if err != nil {
		return element, false, err
	}
	if !ok {
		// The head element was polled between the header read and the item
		// read.
		return element, false, nil
	}
	encoded, ok := item.Value.([]byte)
	if !ok {
		return element, false, errors.NewInternal("queue %s holds a malformed element at %d", q.Name(), hdr.Head)
	}
	if err := q.codec.Unmarshal(encoded, &element); err != nil {
		return element, false, errors.NewInvalid("element decoding failed: %v", err)
	}
	return element, true, nil
}

func (q *queuePrimitive[E]) Clear(ctx context.Context) error {
	return q.withHeader(ctx, func(tx store.Tx, hdr *Header) (bool, error) {
		if hdr.Head == hdr.Tail {
			return false, nil
		}
		for idx := hdr.Head; idx < hdr.Tail; idx++ {
			if _, err := tx.Remove(q.itemKey(idx)); err != nil {
				return false, err
			}
		}
		hdr.Head = hdr.Tail
		return true, nil
	})
}

func (q *queuePrimitive[E]) itemKey(idx int64) string {
	return q.Name() + "/" + strconv.FormatInt(idx, 10)
}

// withHeader runs mutate under a transaction holding the header lock. When
// mutate reports no change the transaction is rolled back.
func (q *queuePrimitive[E]) withHeader(ctx context.Context, mutate func(store.Tx, *Header) (bool, error)) error {
	if q.Removed() {
		return errors.NewNotFound("queue %s has been removed", q.Name())
	}
	return store.Retry(ctx, func() error {
		tx, err := q.cache.Begin(ctx)
		if err != nil {
			return err
		}
		v, ok, err := tx.Get(q.Name())
		if err != nil {
			tx.Rollback()
			return err
		}
		if !ok {
			tx.Rollback()
			q.OnRemoved()
			return errors.NewNotFound("queue %s has been removed", q.Name())
		}
		hdr, ok := v.Value.(Header)
		if !ok {
			tx.Rollback()
			return errors.NewConflict("%s is not a queue", q.Name())
		}
		changed, err := mutate(tx, &hdr)
		if err != nil {
			tx.Rollback()
			return err
		}
		if !changed {
			tx.Rollback()
			return nil
		}
		if err := tx.Put(q.Name(), hdr); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

var _ Queue[any] = (*queuePrimitive[any])(nil)
