// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// Counter provides a distributed atomic counter.
type Counter interface {
	primitive.Handle

	// Get gets the current value of the counter
	Get(ctx context.Context) (int64, error)

	// Set sets the value of the counter
	Set(ctx context.Context, value int64) error

	// Increment increments the counter and returns the new value
	Increment(ctx context.Context) (int64, error)

	// Decrement decrements the counter and returns the new value
	Decrement(ctx context.Context) (int64, error)

	// Add adds the given delta to the counter and returns the new value
	Add(ctx context.Context, delta int64) (int64, error)

	// CompareAndSet sets the counter to update only if it holds expect
	CompareAndSet(ctx context.Context, expect int64, update int64) (bool, error)
}

// New creates a counter handle over its durable record.
func New(cache store.Cache, name string) Counter {
	return &counterPrimitive{
		Base:  primitive.NewBase(name, primitive.AtomicLong),
		cache: cache,
	}
}

type counterPrimitive struct {
	*primitive.Base
	cache store.Cache
}

func (c *counterPrimitive) Get(ctx context.Context) (int64, error) {
	rec, err := c.read(ctx)
	if err != nil {
		return 0, err
	}
	return rec.Value, nil
}

func (c *counterPrimitive) Set(ctx context.Context, value int64) error {
	_, err := c.update(ctx, func(rec primitive.CounterRecord) (primitive.CounterRecord, bool) {
		rec.Value = value
		return rec, true
	})
	return err
}

func (c *counterPrimitive) Increment(ctx context.Context) (int64, error) {
	return c.Add(ctx, 1)
}

func (c *counterPrimitive) Decrement(ctx context.Context) (int64, error) {
	return c.Add(ctx, -1)
}

func (c *counterPrimitive) Add(ctx context.Context, delta int64) (int64, error) {
	return c.update(ctx, func(rec primitive.CounterRecord) (primitive.CounterRecord, bool) {
		rec.Value += delta
		return rec, true
	})
}

func (c *counterPrimitive) CompareAndSet(ctx context.Context, expect int64, update int64) (bool, error) {
	var swapped bool
	_, err := c.update(ctx, func(rec primitive.CounterRecord) (primitive.CounterRecord, bool) {
		if rec.Value != expect {
			swapped = false
			return rec, false
		}
		swapped = true
		rec.Value = update
		return rec, true
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (c *counterPrimitive) read(ctx context.Context) (primitive.CounterRecord, error) {
	if c.Removed() {
		return primitive.CounterRecord{}, errors.NewNotFound("atomic long %s has been removed", c.Name())
	}
	v, ok, err := c.cache.Get(ctx, c.Name())
	if err != nil {
		return primitive.CounterRecord{}, err
	}
	if !ok {
		c.OnRemoved()
		return primitive.CounterRecord{}, errors.NewNotFound("atomic long %s has been removed", c.Name())
	}
	rec, ok := v.Value.(primitive.CounterRecord)
	if !ok {
		return primitive.CounterRecord{}, errors.NewConflict("%s is not an atomic long", c.Name())
	}
	return rec, nil
}

func (c *counterPrimitive) update(ctx context.Context, mutate func(primitive.CounterRecord) (primitive.CounterRecord, bool)) (int64, error) {
	if c.Removed() {
		return 0, errors.NewNotFound("atomic long %s has been removed", c.Name())
	}
	return store.RetryValue(ctx, func() (int64, error) {
		tx, err := c.cache.Begin(ctx)
		if err != nil {
			return 0, err
		}
		v, ok, err := tx.Get(c.Name())
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if !ok {
			tx.Rollback()
			c.OnRemoved()
			return 0, errors.NewNotFound("atomic long %s has been removed", c.Name())
		}
		rec, ok := v.Value.(primitive.CounterRecord)
		if !ok {
			tx.Rollback()
			return 0, errors.NewConflict("%s is not an atomic long", c.Name())
		}
		next, write := mutate(rec)
		if !write {
			tx.Rollback()
			return next.Value, nil
		}
		if err := tx.Put(c.Name(), next); err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return next.Value, nil
	})
}

var _ Counter = (*counterPrimitive)(nil)
