// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package latch

import (
	"context"
	"sync"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/gridkit/coordination/pkg/util"
)

// Latch provides a distributed count-down latch. Await completion is driven
// by the change feed: once any member counts the latch down to zero, every
// waiting member is released.
type Latch interface {
	primitive.Handle

	// Count reads the current count from the store
	Count(ctx context.Context) (int, error)

	// InitialCount returns the count the latch was created with
	InitialCount() int

	// AutoDelete reports whether the latch removes itself at zero
	AutoDelete() bool

	// CountDown decrements the count, stopping at zero, and returns the new
	// count
	CountDown(ctx context.Context) (int, error)

	// Await blocks until the count reaches zero or the latch is removed
	Await(ctx context.Context) error
}

// New creates a latch handle over its durable record.
func New(cache store.Cache, name string, rec primitive.LatchRecord) Latch {
	l := &latchPrimitive{
		Base:       primitive.NewBase(name, primitive.CountDownLatch),
		cache:      cache,
		initial:    rec.InitialCount,
		autoDelete: rec.AutoDelete,
		state:      util.NewRecordCache[primitive.LatchRecord](),
		done:       make(chan struct{}),
	}
	if rec.Count == 0 {
		l.release()
	}
	return l
}

type latchPrimitive struct {
	*primitive.Base
	cache      store.Cache
	initial    int
	autoDelete bool
	state      *util.RecordCache[primitive.LatchRecord]

	once sync.Once
	done chan struct{}
}

func (l *latchPrimitive) InitialCount() int {
	return l.initial
}

func (l *latchPrimitive) AutoDelete() bool {
	return l.autoDelete
}

func (l *latchPrimitive) Count(ctx context.Context) (int, error) {
	if l.Removed() {
		return 0, nil
	}
	v, ok, err := l.cache.Get(ctx, l.Name())
	if err != nil {
		return 0, err
	}
	if !ok {
		l.OnRemoved()
		return 0, nil
	}
	rec, ok := v.Value.(primitive.LatchRecord)
	if !ok {
		return 0, errors.NewConflict("%s is not a count down latch", l.Name())
	}
	return rec.Count, nil
}

func (l *latchPrimitive) CountDown(ctx context.Context) (int, error) {
	if l.Removed() {
		return 0, nil
	}
	return store.RetryValue(ctx, func() (int, error) {
		tx, err := l.cache.Begin(ctx)
		if err != nil {
			return 0, err
		}
		v, ok, err := tx.Get(l.Name())
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if !ok {
			tx.Rollback()
			l.OnRemoved()
			return 0, nil
		}
		rec, ok := v.Value.(primitive.LatchRecord)
		if !ok {
			tx.Rollback()
			return 0, errors.NewConflict("%s is not a count down latch", l.Name())
		}
		if rec.Count == 0 {
			tx.Rollback()
			l.release()
			return 0, nil
		}
		rec.Count--
		if err := tx.Put(l.Name(), rec); err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		if rec.Count == 0 {
			l.release()
		}
		return rec.Count, nil
	})
}

func (l *latchPrimitive) Await(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return errors.NewCanceled("%v", ctx.Err())
	}
}

// OnUpdate consumes change-feed updates of the latch record. Stale versions
// are rejected so redundant or out-of-order deliveries have no effect.
func (l *latchPrimitive) OnUpdate(value primitive.Versioned[primitive.Record]) {
	rec, ok := value.Value.(primitive.LatchRecord)
	if !ok {
		return
	}
	if !l.state.Store(primitive.Versioned[primitive.LatchRecord]{Version: value.Version, Value: rec}) {
		return
	}
	if rec.Count == 0 {
		l.release()
	}
}

// OnRemoved releases waiters: a removed latch can never be counted down, so
// holding them would leave them blocked forever.
func (l *latchPrimitive) OnRemoved() {
	l.Base.OnRemoved()
	l.release()
}

func (l *latchPrimitive) release() {
	l.once.Do(func() {
		close(l.done)
	})
}

var (
	_ Latch               = (*latchPrimitive)(nil)
	_ primitive.Updatable = (*latchPrimitive)(nil)
)
