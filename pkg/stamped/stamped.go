// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package stamped

import (
	"bytes"
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// Stamped provides a distributed atomic value paired with a stamp. Both are
// stored codec-encoded; compare-and-set compares encoded representations of
// value and stamp together.
type Stamped[V, S any] interface {
	primitive.Handle

	// Get gets the current value and stamp
	Get(ctx context.Context) (V, S, error)

	// Set sets the value and stamp
	Set(ctx context.Context, value V, stamp S) error

	// CompareAndSet sets value and stamp only if both current value and
	// current stamp match the expected ones
	CompareAndSet(ctx context.Context, expectValue V, expectStamp S, updateValue V, updateStamp S) (bool, error)
}

// New creates an atomic stamped handle over its durable record.
func New[V, S any](cache store.Cache, name string, valueCodec generic.Codec[V], stampCodec generic.Codec[S]) Stamped[V, S] {
	return &stampedPrimitive[V, S]{
		Base:       primitive.NewBase(name, primitive.AtomicStamped),
		cache:      cache,
		valueCodec: valueCodec,
		stampCodec: stampCodec,
	}
}

type stampedPrimitive[V, S any] struct {
	*primitive.Base
	cache      store.Cache
	valueCodec generic.Codec[V]
	stampCodec generic.Codec[S]
}

func (m *stampedPrimitive[V, S]) Get(ctx context.Context) (V, S, error) {
	var value V
	var stamp S
	if m.Removed() {
		return value, stamp, errors.NewNotFound("atomic stamped %s has been removed", m.Name())
	}
	v, ok, err := m.cache.Get(ctx, m.Name())
	if err != nil {
		return value, stamp, err
	}
	if !ok {
		m.OnRemoved()
		return value, stamp, errors.NewNotFound("atomic stamped %s has been removed", m.Name())
	}
	rec, ok := v.Value.(primitive.StampedRecord)
	if !ok {
		return value, stamp, errors.NewConflict("%s is not an atomic stamped", m.Name())
	}
	if len(rec.Value) == 0 && len(rec.Stamp) == 0 {
		// Created but never set.
		return value, stamp, nil
	}
	if err := m.valueCodec.Unmarshal(rec.Value, &value); err != nil {
		return value, stamp, errors.NewInvalid("value decoding failed: %v", err)
	}
	if err := m.stampCodec.Unmarshal(rec.Stamp, &stamp); err != nil {
		return value, stamp, errors.NewInvalid("stamp decoding failed: %v", err)
	}
	return value, stamp, nil
}

func (m *stampedPrimitive[V, S]) Set(ctx context.Context, value V, stamp S) error {
	rec, err := m.encode(value, stamp)
	if err != nil {
		return err
	}
	_, err = m.swap(ctx, nil, rec)
	return err
}

func (m *stampedPrimitive[V, S]) CompareAndSet(ctx context.Context, expectValue V, expectStamp S, updateValue V, updateStamp S) (bool, error) {
	expect, err := m.encode(expectValue, expectStamp)
	if err != nil {
		return false, err
	}
	update, err := m.encode(updateValue, updateStamp)
	if err != nil {
		return false, err
	}
	return m.swap(ctx, &expect, update)
}

func (m *stampedPrimitive[V, S]) encode(value V, stamp S) (primitive.StampedRecord, error) {
	encodedValue, err := m.valueCodec.Marshal(&value)
	if err != nil {
		return primitive.StampedRecord{}, errors.NewInvalid("value encoding failed: %v", err)
	}
	encodedStamp, err := m.stampCodec.Marshal(&stamp)
	if err != nil {
		return primitive.StampedRecord{}, errors.NewInvalid("stamp encoding failed: %v", err)
	}
	return primitive.StampedRecord{Value: encodedValue, Stamp: encodedStamp}, nil
}

func (m *stampedPrimitive[V, S]) swap(ctx context.Context, expect *primitive.StampedRecord, update primitive.StampedRecord) (bool, error) {
	if m.Removed() {
		return false, errors.NewNotFound("atomic stamped %s has been removed", m.Name())
	}
	return store.RetryValue(ctx, func() (bool, error) {
		tx, err := m.cache.Begin(ctx)
		if err != nil {
			return false, err
		}
		v, ok, err := tx.Get(m.Name())
		if err != nil {
			tx.Rollback()
			return false, err
		}
		if !ok {
			tx.Rollback()
			m.OnRemoved()
			return false, errors.NewNotFound("atomic stamped %s has been removed", m.Name())
		}
		rec, ok := v.Value.(primitive.StampedRecord)
		if !ok {
			tx.Rollback()
			return false, errors.NewConflict("%s is not an atomic stamped", m.Name())
		}
		if expect != nil && (!bytes.Equal(rec.Value, expect.Value) || !bytes.Equal(rec.Stamp, expect.Stamp)) {
			tx.Rollback()
			return false, nil
		}
		if err := tx.Put(m.Name(), update); err != nil {
			tx.Rollback()
			return false, err
		}
		if err := tx.Commit(); err != nil {
			return false, err
		}
		return true, nil
	})
}

var _ Stamped[any, any] = (*stampedPrimitive[any, any])(nil)
