// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/cluster"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/gridkit/coordination/pkg/util"
)

// Lock provides a distributed reentrant lock. Ownership is attributed to the
// acquiring member; when the owner departs, the lock is released if failover
// safe, otherwise it becomes broken.
type Lock interface {
	primitive.Handle

	// Lock acquires the lock, blocking until it is available
	Lock(ctx context.Context) error

	// TryLock acquires the lock only if it is free or already held by this
	// member
	TryLock(ctx context.Context) (bool, error)

	// Unlock releases one hold on the lock
	Unlock(ctx context.Context) error

	// IsLocked reads whether any member currently holds the lock
	IsLocked(ctx context.Context) (bool, error)
}

// New creates a reentrant lock handle over its durable record.
func New(cache store.Cache, name string, member cluster.MemberID) Lock {
	return &lockPrimitive{
		Base:   primitive.NewBase(name, primitive.ReentrantLock),
		cache:  cache,
		member: member,
		state:  util.NewRecordCache[primitive.LockRecord](),
		notify: make(chan struct{}, 1),
	}
}

type lockPrimitive struct {
	*primitive.Base
	cache  store.Cache
	member cluster.MemberID
	state  *util.RecordCache[primitive.LockRecord]
	notify chan struct{}
}

func (l *lockPrimitive) IsLocked(ctx context.Context) (bool, error) {
	rec, err := l.read(ctx)
	if err != nil {
		return false, err
	}
	return rec.Count > 0, nil
}

func (l *lockPrimitive) Lock(ctx context.Context) error {
	for {
		locked, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if locked {
			return nil
		}
		select {
		case <-l.notify:
		case <-ctx.Done():
			return errors.NewCanceled("%v", ctx.Err())
		}
	}
}

func (l *lockPrimitive) TryLock(ctx context.Context) (bool, error) {
	var locked bool
	err := l.update(ctx, func(rec *primitive.LockRecord) bool {
		if rec.Count > 0 && rec.Owner != l.member {
			locked = false
			return false
		}
		rec.Owner = l.member
		rec.Count++
		locked = true
		return true
	})
	if err != nil {
		return false, err
	}
	return locked, nil
}

func (l *lockPrimitive) Unlock(ctx context.Context) error {
	var held bool
	err := l.update(ctx, func(rec *primitive.LockRecord) bool {
		if rec.Count == 0 || rec.Owner != l.member {
			held = false
			return false
		}
		held = true
		rec.Count--
		if rec.Count == 0 {
			rec.Owner = ""
		}
		return true
	})
	if err != nil {
		return err
	}
	if !held {
		return errors.NewForbidden("lock %s is not held by this member", l.Name())
	}
	return nil
}

// OnNodeRemoved releases the lock when its owner departs. Every surviving
// member runs this concurrently; the first committed transaction clears the
// ownership and the rest degrade to no-ops.
func (l *lockPrimitive) OnNodeRemoved(id cluster.MemberID) {
	_ = l.update(context.Background(), func(rec *primitive.LockRecord) bool {
		if rec.Count == 0 || rec.Owner != id {
			return false
		}
		if rec.FailoverSafe {
			rec.Owner = ""
			rec.Count = 0
		} else {
			rec.Broken = true
		}
		return true
	})
}

// OnUpdate consumes change-feed updates, waking local lockers when the
// record changes. Stale versions are rejected.
func (l *lockPrimitive) OnUpdate(value primitive.Versioned[primitive.Record]) {
	rec, ok := value.Value.(primitive.LockRecord)
	if !ok {
		return
	}
	if !l.state.Store(primitive.Versioned[primitive.LockRecord]{Version: value.Version, Value: rec}) {
		return
	}
	l.wake()
}

// OnRemoved wakes pending lockers so they can fail instead of blocking on a
// lock that no longer exists.
func (l *lockPrimitive) OnRemoved() {
	l.Base.OnRemoved()
	l.wake()
}

func (l *lockPrimitive) wake() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *lockPrimitive) read(ctx context.Context) (primitive.LockRecord, error) {
	if l.Removed() {
		return primitive.LockRecord{}, errors.NewNotFound("lock %s has been removed", l.Name())
	}
	v, ok, err := l.cache.Get(ctx, l.Name())
	if err != nil {
		return primitive.LockRecord{}, err
	}
	if !ok {
		l.OnRemoved()
		return primitive.LockRecord{}, errors.NewNotFound("lock %s has been removed", l.Name())
	}
	rec, ok := v.Value.(primitive.LockRecord)
	if !ok {
		return primitive.LockRecord{}, errors.NewConflict("%s is not a lock", l.Name())
	}
	return rec, nil
}

func (l *lockPrimitive) update(ctx context.Context, mutate func(*primitive.LockRecord) bool) error {
	if l.Removed() {
		return errors.NewNotFound("lock %s has been removed", l.Name())
	}
	return store.Retry(ctx, func() error {
		tx, err := l.cache.Begin(ctx)
		if err != nil {
			return err
		}
		v, ok, err := tx.Get(l.Name())
		if err != nil {
			tx.Rollback()
			return err
		}
		if !ok {
			tx.Rollback()
			l.OnRemoved()
			return errors.NewNotFound("lock %s has been removed", l.Name())
		}
		rec, ok := v.Value.(primitive.LockRecord)
		if !ok {
			tx.Rollback()
			return errors.NewConflict("%s is not a lock", l.Name())
		}
		if rec.Broken {
			tx.Rollback()
			return errors.NewForbidden("lock %s is broken: the owner departed without failover safety", l.Name())
		}
		if !mutate(&rec) {
			tx.Rollback()
			return nil
		}
		if err := tx.Put(l.Name(), rec); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

var (
	_ Lock                  = (*lockPrimitive)(nil)
	_ primitive.Updatable   = (*lockPrimitive)(nil)
	_ primitive.MemberAware = (*lockPrimitive)(nil)
)
