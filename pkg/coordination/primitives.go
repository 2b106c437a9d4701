// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/counter"
	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/latch"
	"github.com/gridkit/coordination/pkg/lock"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/queue"
	"github.com/gridkit/coordination/pkg/semaphore"
	"github.com/gridkit/coordination/pkg/sequence"
	"github.com/gridkit/coordination/pkg/set"
	"github.com/gridkit/coordination/pkg/stamped"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/gridkit/coordination/pkg/value"
)

// GetSequence gets or creates a distributed sequence.
func (m *Manager) GetSequence(ctx context.Context, name string, opts ...sequence.Option) (sequence.Sequence, error) {
	return m.getSequence(ctx, name, true, opts...)
}

// SequenceIfExists gets a sequence, returning nil when it does not exist.
func (m *Manager) SequenceIfExists(ctx context.Context, name string) (sequence.Sequence, error) {
	return m.getSequence(ctx, name, false)
}

func (m *Manager) getSequence(ctx context.Context, name string, create bool, opts ...sequence.Option) (sequence.Sequence, error) {
	var options sequence.Options
	options.Apply(opts...)
	reserveSize := options.ReserveSize
	if reserveSize <= 0 {
		reserveSize = m.config.atomic().ReserveSize()
	}
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.Sequence,
		create: create,
		initial: func() primitive.Record {
			return primitive.SequenceRecord{Counter: options.InitialValue}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			// Every new handle reserves its first range within the same
			// transaction, so no two members ever serve overlapping values.
			seq := rec.(primitive.SequenceRecord)
			off := sequence.ReserveOffset(reserveSize)
			local := seq.Counter
			upper := local + off
			if err := tx.Put(name, primitive.SequenceRecord{Counter: upper + 1}); err != nil {
				return nil, err
			}
			return sequence.New(m.metadata(), name, reserveSize, local, upper), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	return handle.(sequence.Sequence), nil
}

// RemoveSequence removes a sequence. Removing an absent sequence is a no-op.
func (m *Manager) RemoveSequence(ctx context.Context, name string) error {
	return m.remove(ctx, removeSpec{name: name, typ: primitive.Sequence})
}

// GetAtomicLong gets or creates a distributed atomic long.
func (m *Manager) GetAtomicLong(ctx context.Context, name string, opts ...counter.Option) (counter.Counter, error) {
	return m.getAtomicLong(ctx, name, true, opts...)
}

// AtomicLongIfExists gets an atomic long, returning nil when it does not
// exist.
func (m *Manager) AtomicLongIfExists(ctx context.Context, name string) (counter.Counter, error) {
	return m.getAtomicLong(ctx, name, false)
}

func (m *Manager) getAtomicLong(ctx context.Context, name string, create bool, opts ...counter.Option) (counter.Counter, error) {
	var options counter.Options
	options.Apply(opts...)
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.AtomicLong,
		create: create,
		initial: func() primitive.Record {
			return primitive.CounterRecord{Value: options.InitialValue}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			return counter.New(m.metadata(), name), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	return handle.(counter.Counter), nil
}

// RemoveAtomicLong removes an atomic long. Removing an absent one is a
// no-op.
func (m *Manager) RemoveAtomicLong(ctx context.Context, name string) error {
	return m.remove(ctx, removeSpec{name: name, typ: primitive.AtomicLong})
}

// GetAtomicValue gets or creates a distributed atomic reference.
func GetAtomicValue[V any](ctx context.Context, m *Manager, name string, codec generic.Codec[V]) (value.Value[V], error) {
	return getAtomicValue(ctx, m, name, codec, true)
}

// AtomicValueIfExists gets an atomic reference, returning nil when it does
// not exist.
func AtomicValueIfExists[V any](ctx context.Context, m *Manager, name string, codec generic.Codec[V]) (value.Value[V], error) {
	return getAtomicValue(ctx, m, name, codec, false)
}

func getAtomicValue[V any](ctx context.Context, m *Manager, name string, codec generic.Codec[V], create bool) (value.Value[V], error) {
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.AtomicReference,
		create: create,
		initial: func() primitive.Record {
			return primitive.ValueRecord{}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			return value.New[V](m.metadata(), name, codec), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	v, ok := handle.(value.Value[V])
	if !ok {
		return nil, errors.NewConflict("%s is already in use with a different value type", name)
	}
	return v, nil
}

// RemoveAtomicValue removes an atomic reference. Removing an absent one is a
// no-op.
func (m *Manager) RemoveAtomicValue(ctx context.Context, name string) error {
	return m.remove(ctx, removeSpec{name: name, typ: primitive.AtomicReference})
}

// GetAtomicStamped gets or creates a distributed atomic stamped value.
func GetAtomicStamped[V, S any](ctx context.Context, m *Manager, name string, valueCodec generic.Codec[V], stampCodec generic.Codec[S]) (stamped.Stamped[V, S], error) {
	return getAtomicStamped(ctx, m, name, valueCodec, stampCodec, true)
}

// AtomicStampedIfExists gets an atomic stamped value, returning nil when it
// does not exist.
func AtomicStampedIfExists[V, S any](ctx context.Context, m *Manager, name string, valueCodec generic.Codec[V], stampCodec generic.Codec[S]) (stamped.Stamped[V, S], error) {
	return getAtomicStamped(ctx, m, name, valueCodec, stampCodec, false)
}

func getAtomicStamped[V, S any](ctx context.Context, m *Manager, name string, valueCodec generic.Codec[V], stampCodec generic.Codec[S], create bool) (stamped.Stamped[V, S], error) {
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.AtomicStamped,
		create: create,
		initial: func() primitive.Record {
			return primitive.StampedRecord{}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			return stamped.New[V, S](m.metadata(), name, valueCodec, stampCodec), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	s, ok := handle.(stamped.Stamped[V, S])
	if !ok {
		return nil, errors.NewConflict("%s is already in use with different value or stamp types", name)
	}
	return s, nil
}

// RemoveAtomicStamped removes an atomic stamped value. Removing an absent
// one is a no-op.
func (m *Manager) RemoveAtomicStamped(ctx context.Context, name string) error {
	return m.remove(ctx, removeSpec{name: name, typ: primitive.AtomicStamped})
}

// GetCountDownLatch gets or creates a distributed count-down latch.
func (m *Manager) GetCountDownLatch(ctx context.Context, name string, opts ...latch.Option) (latch.Latch, error) {
	return m.getCountDownLatch(ctx, name, true, opts...)
}

// CountDownLatchIfExists gets a count-down latch, returning nil when it does
// not exist.
func (m *Manager) CountDownLatchIfExists(ctx context.Context, name string) (latch.Latch, error) {
	return m.getCountDownLatch(ctx, name, false)
}

func (m *Manager) getCountDownLatch(ctx context.Context, name string, create bool, opts ...latch.Option) (latch.Latch, error) {
	var options latch.Options
	options.Apply(opts...)
	if options.Count < 0 {
		return nil, errors.NewInvalid("count must not be negative")
	}
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.CountDownLatch,
		create: create,
		initial: func() primitive.Record {
			return primitive.LatchRecord{
				Count:        options.Count,
				InitialCount: options.Count,
				AutoDelete:   options.AutoDelete,
			}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			return latch.New(m.metadata(), name, rec.(primitive.LatchRecord)), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	return handle.(latch.Latch), nil
}

// RemoveCountDownLatch removes a count-down latch. Removal is vetoed while
// the count is above zero; removing an absent latch is a no-op.
func (m *Manager) RemoveCountDownLatch(ctx context.Context, name string) error {
	return m.remove(ctx, removeSpec{
		name: name,
		typ:  primitive.CountDownLatch,
		guard: func(rec primitive.Record) error {
			if latchRec := rec.(primitive.LatchRecord); latchRec.Count > 0 {
				return errors.NewForbidden("count down latch %s still has a count of %d", name, latchRec.Count)
			}
			return nil
		},
	})
}

// GetSemaphore gets or creates a distributed semaphore.
func (m *Manager) GetSemaphore(ctx context.Context, name string, opts ...semaphore.Option) (semaphore.Semaphore, error) {
	return m.getSemaphore(ctx, name, true, opts...)
}

// SemaphoreIfExists gets a semaphore, returning nil when it does not exist.
func (m *Manager) SemaphoreIfExists(ctx context.Context, name string) (semaphore.Semaphore, error) {
	return m.getSemaphore(ctx, name, false)
}

func (m *Manager) getSemaphore(ctx context.Context, name string, create bool, opts ...semaphore.Option) (semaphore.Semaphore, error) {
	var options semaphore.Options
	options.Apply(opts...)
	if options.Permits < 0 {
		return nil, errors.NewInvalid("permits must not be negative")
	}
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.Semaphore,
		create: create,
		initial: func() primitive.Record {
			return primitive.SemaphoreRecord{
				Permits:      options.Permits,
				FailoverSafe: options.FailoverSafe,
			}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			return semaphore.New(m.metadata(), name, m.cluster.LocalID()), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	return handle.(semaphore.Semaphore), nil
}

// RemoveSemaphore removes a semaphore. Removal is vetoed while permits are
// held, unless the semaphore is broken; removing an absent semaphore is a
// no-op.
func (m *Manager) RemoveSemaphore(ctx context.Context, name string) error {
	return m.remove(ctx, removeSpec{
		name: name,
		typ:  primitive.Semaphore,
		guard: func(rec primitive.Record) error {
			if semRec := rec.(primitive.SemaphoreRecord); len(semRec.Holders) > 0 && !semRec.Broken {
				return errors.NewForbidden("semaphore %s still has held permits", name)
			}
			return nil
		},
	})
}

// GetLock gets or creates a distributed reentrant lock.
func (m *Manager) GetLock(ctx context.Context, name string, opts ...lock.Option) (lock.Lock, error) {
	return m.getLock(ctx, name, true, opts...)
}

// LockIfExists gets a lock, returning nil when it does not exist.
func (m *Manager) LockIfExists(ctx context.Context, name string) (lock.Lock, error) {
	return m.getLock(ctx, name, false)
}

func (m *Manager) getLock(ctx context.Context, name string, create bool, opts ...lock.Option) (lock.Lock, error) {
	var options lock.Options
	options.Apply(opts...)
	handle, err := m.getAtomic(ctx, atomicSpec{
		name:   name,
		typ:    primitive.ReentrantLock,
		create: create,
		initial: func() primitive.Record {
			return primitive.LockRecord{
				FailoverSafe: options.FailoverSafe,
				Fair:         options.Fair,
			}
		},
		attach: func(tx store.Tx, rec primitive.Record) (primitive.Handle, error) {
			return lock.New(m.metadata(), name, m.cluster.LocalID()), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	return handle.(lock.Lock), nil
}

// RemoveLock removes a lock. Removal of a held lock is vetoed unless forced
// or the lock is broken; removing an absent lock is a no-op.
func (m *Manager) RemoveLock(ctx context.Context, name string, force bool) error {
	return m.remove(ctx, removeSpec{
		name: name,
		typ:  primitive.ReentrantLock,
		guard: func(rec primitive.Record) error {
			if lockRec := rec.(primitive.LockRecord); lockRec.Count > 0 && !lockRec.Broken && !force {
				return errors.NewForbidden("lock %s is still held by %s", name, lockRec.Owner)
			}
			return nil
		},
	})
}

// GetQueue gets or creates a distributed queue. A capacity of zero makes the
// queue unbounded. The configuration selects or starts the element region;
// it is ignored when the queue already exists, except that a collocation
// mismatch is a conflict.
func GetQueue[E any](ctx context.Context, m *Manager, name string, codec generic.Codec[E], config primitive.CollectionConfig, capacity int) (queue.Queue[E], error) {
	return getQueue(ctx, m, name, codec, config, capacity, true)
}

// QueueIfExists gets a queue, returning nil when it does not exist.
func QueueIfExists[E any](ctx context.Context, m *Manager, name string, codec generic.Codec[E]) (queue.Queue[E], error) {
	return getQueue(ctx, m, name, codec, primitive.CollectionConfig{}, 0, false)
}

func getQueue[E any](ctx context.Context, m *Manager, name string, codec generic.Codec[E], config primitive.CollectionConfig, capacity int, create bool) (queue.Queue[E], error) {
	if capacity < 0 {
		return nil, errors.NewInvalid("capacity must not be negative")
	}
	handle, err := m.getCollection(ctx, collectionSpec{
		name:   name,
		kind:   primitive.Queue,
		create: create,
		config: config,
		initialize: func(ctx context.Context, elements store.Cache) error {
			_, _, err := elements.GetAndPutIfAbsent(ctx, name, queue.Header{Cap: capacity})
			return err
		},
		attach: func(elements store.Cache, rec primitive.CollectionRecord) (primitive.Handle, error) {
			return queue.New[E](elements, name, codec, capacity), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	q, ok := handle.(queue.Queue[E])
	if !ok {
		return nil, errors.NewConflict("%s is already in use with a different element type", name)
	}
	return q, nil
}

// RemoveQueue removes a queue and clears its elements. Removing an absent
// queue is a no-op.
func (m *Manager) RemoveQueue(ctx context.Context, name string) error {
	return m.removeCollection(ctx, name, primitive.Queue)
}

// GetSet gets or creates a distributed set. The configuration selects or
// starts the element region; it is ignored when the set already exists,
// except that a collocation mismatch is a conflict.
func GetSet[E any](ctx context.Context, m *Manager, name string, codec generic.Codec[E], config primitive.CollectionConfig) (set.Set[E], error) {
	return getSet(ctx, m, name, codec, config, true)
}

// SetIfExists gets a set, returning nil when it does not exist.
func SetIfExists[E any](ctx context.Context, m *Manager, name string, codec generic.Codec[E]) (set.Set[E], error) {
	return getSet(ctx, m, name, codec, primitive.CollectionConfig{}, false)
}

func getSet[E any](ctx context.Context, m *Manager, name string, codec generic.Codec[E], config primitive.CollectionConfig, create bool) (set.Set[E], error) {
	handle, err := m.getCollection(ctx, collectionSpec{
		name:   name,
		kind:   primitive.Set,
		create: create,
		config: config,
		attach: func(elements store.Cache, rec primitive.CollectionRecord) (primitive.Handle, error) {
			return set.New[E](elements, name, codec), nil
		},
	})
	if handle == nil || err != nil {
		return nil, err
	}
	s, ok := handle.(set.Set[E])
	if !ok {
		return nil, errors.NewConflict("%s is already in use with a different element type", name)
	}
	return s, nil
}

// RemoveSet removes a set and clears its elements. Removing an absent set is
// a no-op.
func (m *Manager) RemoveSet(ctx context.Context, name string) error {
	return m.removeCollection(ctx, name, primitive.Set)
}

func (m *Manager) removeCollection(ctx context.Context, name string, kind primitive.Type) error {
	return m.remove(ctx, removeSpec{
		name: name,
		typ:  kind,
		afterRemove: func(ctx context.Context, rec primitive.Record) error {
			return m.clearElements(ctx, name, rec.(primitive.CollectionRecord))
		},
	})
}
