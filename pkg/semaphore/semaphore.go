// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package semaphore

import (
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/cluster"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/gridkit/coordination/pkg/util"
)

// Semaphore provides a distributed counting semaphore. Held permits are
// attributed to the acquiring member; when a member departs, its permits are
// returned to the pool if the semaphore is failover safe, otherwise the
// semaphore becomes broken.
type Semaphore interface {
	primitive.Handle

	// Acquire acquires the given number of permits, blocking until they are
	// available
	Acquire(ctx context.Context, permits int) error

	// TryAcquire acquires the permits only if they are available now
	TryAcquire(ctx context.Context, permits int) (bool, error)

	// Release returns the given number of permits to the pool
	Release(ctx context.Context, permits int) error

	// AvailablePermits reads the number of available permits
	AvailablePermits(ctx context.Context) (int, error)
}

// New creates a semaphore handle over its durable record.
func New(cache store.Cache, name string, member cluster.MemberID) Semaphore {
	return &semaphorePrimitive{
		Base:   primitive.NewBase(name, primitive.Semaphore),
		cache:  cache,
		member: member,
		state:  util.NewRecordCache[primitive.SemaphoreRecord](),
		notify: make(chan struct{}, 1),
	}
}

type semaphorePrimitive struct {
	*primitive.Base
	cache  store.Cache
	member cluster.MemberID
	state  *util.RecordCache[primitive.SemaphoreRecord]
	notify chan struct{}
}

func (s *semaphorePrimitive) AvailablePermits(ctx context.Context) (int, error) {
	rec, err := s.read(ctx)
	if err != nil {
		return 0, err
	}
	return rec.Permits, nil
}

func (s *semaphorePrimitive) Acquire(ctx context.Context, permits int) error {
	for {
		acquired, err := s.TryAcquire(ctx, permits)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return errors.NewCanceled("%v", ctx.Err())
		}
	}
}

func (s *semaphorePrimitive) TryAcquire(ctx context.Context, permits int) (bool, error) {
	if permits <= 0 {
		return false, errors.NewInvalid("permits must be positive")
	}
	var acquired bool
	err := s.update(ctx, func(rec *primitive.SemaphoreRecord) bool {
		if rec.Permits < permits {
			acquired = false
			return false
		}
		rec.Permits -= permits
		if rec.Holders == nil {
			rec.Holders = make(map[cluster.MemberID]int)
		}
		rec.Holders[s.member] += permits
		acquired = true
		return true
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (s *semaphorePrimitive) Release(ctx context.Context, permits int) error {
	if permits <= 0 {
		return errors.NewInvalid("permits must be positive")
	}
	return s.update(ctx, func(rec *primitive.SemaphoreRecord) bool {
		rec.Permits += permits
		if held := rec.Holders[s.member]; held > permits {
			rec.Holders[s.member] = held - permits
		} else {
			delete(rec.Holders, s.member)
		}
		return true
	})
}

// OnNodeRemoved recovers the permits held by a departed member. Every
// surviving member runs this concurrently; the first committed transaction
// clears the holder entry and the rest degrade to no-ops.
func (s *semaphorePrimitive) OnNodeRemoved(id cluster.MemberID) {
	_ = s.update(context.Background(), func(rec *primitive.SemaphoreRecord) bool {
		held, ok := rec.Holders[id]
		if !ok || held == 0 {
			return false
		}
		if rec.FailoverSafe {
			rec.Permits += held
		} else {
			rec.Broken = true
		}
		delete(rec.Holders, id)
		return true
	})
}

// OnUpdate consumes change-feed updates, waking local acquirers when the
// record changes. Stale versions are rejected.
func (s *semaphorePrimitive) OnUpdate(value primitive.Versioned[primitive.Record]) {
	rec, ok := value.Value.(primitive.SemaphoreRecord)
	if !ok {
		return
	}
	if !s.state.Store(primitive.Versioned[primitive.SemaphoreRecord]{Version: value.Version, Value: rec}) {
		return
	}
	s.wake()
}

// OnRemoved wakes pending acquirers so they can fail instead of blocking on
// a semaphore that no longer exists.
func (s *semaphorePrimitive) OnRemoved() {
	s.Base.OnRemoved()
	s.wake()
}

func (s *semaphorePrimitive) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *semaphorePrimitive) read(ctx context.Context) (primitive.SemaphoreRecord, error) {
	if s.Removed() {
		return primitive.SemaphoreRecord{}, errors.NewNotFound("semaphore %s has been removed", s.Name())
	}
	v, ok, err := s.cache.Get(ctx, s.Name())
	if err != nil {
		return primitive.SemaphoreRecord{}, err
	}
	if !ok {
		s.OnRemoved()
		return primitive.SemaphoreRecord{}, errors.NewNotFound("semaphore %s has been removed", s.Name())
	}
	rec, ok := v.Value.(primitive.SemaphoreRecord)
	if !ok {
		return primitive.SemaphoreRecord{}, errors.NewConflict("%s is not a semaphore", s.Name())
	}
	return rec, nil
}

func (s *semaphorePrimitive) update(ctx context.Context, mutate func(*primitive.SemaphoreRecord) bool) error {
	if s.Removed() {
		return errors.NewNotFound("semaphore %s has been removed", s.Name())
	}
	return store.Retry(ctx, func() error {
		tx, err := s.cache.Begin(ctx)
		if err != nil {
			return err
		}
		v, ok, err := tx.Get(s.Name())
		if err != nil {
			tx.Rollback()
			return err
		}
		if !ok {
			tx.Rollback()
			s.OnRemoved()
			return errors.NewNotFound("semaphore %s has been removed", s.Name())
		}
		rec, ok := v.Value.(primitive.SemaphoreRecord)
		if !ok {
			tx.Rollback()
			return errors.NewConflict("%s is not a semaphore", s.Name())
		}
		if rec.Broken {
			tx.Rollback()
			return errors.NewForbidden("semaphore %s is broken: a holder departed without failover safety", s.Name())
		}
		holders := make(map[cluster.MemberID]int, len(rec.Holders))
		for id, held := range rec.Holders {
			holders[id] = held
		}
		rec.Holders = holders
		if !mutate(&rec) {
			tx.Rollback()
			return nil
		}
		if err := tx.Put(s.Name(), rec); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

var (
	_ Semaphore             = (*semaphorePrimitive)(nil)
	_ primitive.Updatable   = (*semaphorePrimitive)(nil)
	_ primitive.MemberAware = (*semaphorePrimitive)(nil)
)
