// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"bytes"
	"context"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
)

// Value provides a distributed atomic reference. Payloads are stored
// codec-encoded; compare-and-set compares encoded representations.
type Value[V any] interface {
	primitive.Handle

	// Get gets the current value
	Get(ctx context.Context) (V, error)

	// Set sets the value
	Set(ctx context.Context, value V) error

	// CompareAndSet sets the value to update only if it holds expect
	CompareAndSet(ctx context.Context, expect V, update V) (bool, error)
}

// New creates an atomic reference handle over its durable record.
func New[V any](cache store.Cache, name string, codec generic.Codec[V]) Value[V] {
	return &valuePrimitive[V]{
		Base:  primitive.NewBase(name, primitive.AtomicReference),
		cache: cache,
		codec: codec,
	}
}

type valuePrimitive[V any] struct {
	*primitive.Base
	cache store.Cache
	codec generic.Codec[V]
}

func (m *valuePrimitive[V]) Get(ctx context.Context) (V, error) {
	var value V
	if m.Removed() {
		return value, errors.NewNotFound("atomic reference %s has been removed", m.Name())
	}
	v, ok, err := m.cache.Get(ctx, m.Name())
	if err != nil {
		return value, err
	}
	if !ok {
		m.OnRemoved()
		return value, errors.NewNotFound("atomic reference %s has been removed", m.Name())
	}
	rec, ok := v.Value.(primitive.ValueRecord)
	if !ok {
		return value, errors.NewConflict("%s is not an atomic reference", m.Name())
	}
	if len(rec.Value) == 0 {
		// Created but never set.
		return value, nil
	}
	if err := m.codec.Unmarshal(rec.Value, &value); err != nil {
		return value, errors.NewInvalid("value decoding failed: %v", err)
	}
	return value, nil
}

func (m *valuePrimitive[V]) Set(ctx context.Context, value V) error {
	encoded, err := m.codec.Marshal(&value)
	if err != nil {
		return errors.NewInvalid("value encoding failed: %v", err)
	}
	_, err = m.swap(ctx, nil, encoded)
	return err
}

func (m *valuePrimitive[V]) CompareAndSet(ctx context.Context, expect V, update V) (bool, error) {
	expected, err := m.codec.Marshal(&expect)
	if err != nil {
		return false, errors.NewInvalid("value encoding failed: %v", err)
	}
	updated, err := m.codec.Marshal(&update)
	if err != nil {
		return false, errors.NewInvalid("value encoding failed: %v", err)
	}
	return m.swap(ctx, expected, updated)
}

// swap writes the encoded value, optionally guarded by the expected encoded
// value.
func (m *valuePrimitive[V]) swap(ctx context.Context, expect []byte, update []byte) (bool, error) {
	if m.Removed() {
		return false, errors.NewNotFound("atomic reference %s has been removed", m.Name())
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
			return false, errors.NewNotFound("atomic reference %s has been removed", m.Name())
		}
		rec, ok := v.Value.(primitive.ValueRecord)
		if !ok {
			tx.Rollback()
			return false, errors.NewConflict("%s is not an atomic reference", m.Name())
		}
		if expect != nil && !bytes.Equal(rec.Value, expect) {
			tx.Rollback()
			return false, nil
		}
		if err := tx.Put(m.Name(), primitive.ValueRecord{Value: update}); err != nil {
			tx.Rollback()
			return false, err
		}
		if err := tx.Commit(); err != nil {
			return false, err
		}
		return true, nil
	})
}

var _ Value[any] = (*valuePrimitive[any])(nil)
