// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sequence

import (
	"context"
	"sync"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// Sequence provides a distributed monotonic sequence. Each handle reserves a
// contiguous range of values from the durable global counter and serves
// increments locally until the range is exhausted, so concurrent members
// never produce overlapping values at the cost of gaps on member crash.
type Sequence interface {
	primitive.Handle

	// Get returns the last value returned by this handle without touching
	// the store.
	Get() int64

	// Next reserves and returns the next value.
	Next(ctx context.Context) (int64, error)

	// Add advances the sequence by delta and returns the new value.
	Add(ctx context.Context, delta int64) (int64, error)

	// Range returns the bounds of the currently reserved range.
	Range() (int64, int64)
}

// ReserveOffset returns the span a reservation advances the global counter
// by. The effective offset is never below 1.
func ReserveOffset(reserveSize int) int64 {
	if reserveSize > 1 {
		return int64(reserveSize - 1)
	}
	return 1
}

// New creates a sequence handle over an already reserved range. The caller
// has advanced the durable counter past upper within its own transaction.
func New(cache store.Cache, name string, reserveSize int, local int64, upper int64) Sequence {
	return &sequencePrimitive{
		Base:        primitive.NewBase(name, primitive.Sequence),
		cache:       cache,
		reserveSize: reserveSize,
		local:       local,
		upper:       upper,
	}
}

type sequencePrimitive struct {
	*primitive.Base
	cache       store.Cache
	reserveSize int

	mu    sync.Mutex
	local int64
	upper int64
}

func (s *sequencePrimitive) Get() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *sequencePrimitive) Range() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, s.upper
}

func (s *sequencePrimitive) Next(ctx context.Context) (int64, error) {
	return s.Add(ctx, 1)
}

func (s *sequencePrimitive) Add(ctx context.Context, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, errors.NewInvalid("delta must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Removed() {
		return 0, errors.NewNotFound("sequence %s has been removed", s.Name())
	}
	if s.local+delta > s.upper {
		if err := s.reserve(ctx, delta); err != nil {
			return 0, err
		}
	}
	s.local += delta
	return s.local, nil
}

// reserve claims the next range from the durable counter, sized to cover at
// least delta. Called with s.mu held.
func (s *sequencePrimitive) reserve(ctx context.Context, delta int64) error {
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
			return errors.NewNotFound("sequence %s has been removed", s.Name())
		}
		rec, ok := v.Value.(primitive.SequenceRecord)
		if !ok {
			tx.Rollback()
			return errors.NewConflict("%s is not a sequence", s.Name())
		}

		off := ReserveOffset(s.reserveSize)
		if delta > off {
			off = delta
		}
		local := rec.Counter
		upper := local + off
		if err := tx.Put(s.Name(), primitive.SequenceRecord{Counter: upper + 1}); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.local = local
		s.upper = upper
		return nil
	})
}

var _ Sequence = (*sequencePrimitive)(nil)
