// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package set

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/atomix/runtime/sdk/pkg/errors"
	"github.com/gridkit/coordination/pkg/generic"
	"github.com/gridkit/coordination/pkg/primitive"
	"github.com/gridkit/coordination/pkg/store"
	"github.com/gridkit/coordination/pkg/stream"
)

// Set provides a distributed set. Each element maps to its own cache key
// derived from the codec encoding, so membership operations touch a single
// key and scale independently of the set size.
type Set[E any] interface {
	primitive.Handle

	// Add adds an element, returning false if it was already present
	Add(ctx context.Context, element E) (bool, error)

	// Remove removes an element, returning false if it was absent
	Remove(ctx context.Context, element E) (bool, error)

	// Contains reads whether an element is present
	Contains(ctx context.Context, element E) (bool, error)

	// Size counts the elements
	Size(ctx context.Context) (int, error)

	// Elements streams the elements
	Elements(ctx context.Context) (stream.Stream[E], error)

	// Clear removes all elements
	Clear(ctx context.Context) error
}

// New creates a set handle over its element cache.
func New[E any](cache store.Cache, name string, codec generic.Codec[E]) Set[E] {
	return &setPrimitive[E]{
		Base:  primitive.NewBase(name, primitive.Set),
		cache: cache,
		codec: codec,
	}
}

type setPrimitive[E any] struct {
	*primitive.Base
	cache store.Cache
	codec generic.Codec[E]
}

func (s *setPrimitive[E]) Add(ctx context.Context, element E) (bool, error) {
	key, encoded, err := s.elementKey(element)
	if err != nil {
		return false, err
	}
	if err := s.check(); err != nil {
		return false, err
	}
	_, existed, err := s.cache.GetAndPutIfAbsent(ctx, key, encoded)
	if err != nil {
		return false, err
	}
	return !existed, nil
}

func (s *setPrimitive[E]) Remove(ctx context.Context, element E) (bool, error) {
	key, _, err := s.elementKey(element)
	if err != nil {
		return false, err
	}
	if err := s.check(); err != nil {
		return false, err
	}
	return s.cache.Remove(ctx, key)
}

func (s *setPrimitive[E]) Contains(ctx context.Context, element E) (bool, error) {
	key, _, err := s.elementKey(element)
	if err != nil {
		return false, err
	}
	if err := s.check(); err != nil {
		return false, err
	}
	_, ok, err := s.cache.Get(ctx, key)
	return ok, err
}

func (s *setPrimitive[E]) Size(ctx context.Context) (int, error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *setPrimitive[E]) Elements(ctx context.Context) (stream.Stream[E], error) {
	entries, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	elements := make([]E, 0, len(entries))
	for _, entry := range entries {
		encoded, ok := entry.Value.Value.([]byte)
		if !ok {
			return nil, errors.NewInternal("set %s holds a malformed element at %s", s.Name(), entry.Key)
		}
		var element E
		if err := s.codec.Unmarshal(encoded, &element); err != nil {
			return nil, errors.NewInvalid("element decoding failed: %v", err)
		}
		elements = append(elements, element)
	}
	return stream.NewSliceStream[E](elements), nil
}

func (s *setPrimitive[E]) Clear(ctx context.Context) error {
	entries, err := s.scan(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := s.cache.Remove(ctx, entry.Key); err != nil {
			return err
		}
	}
	return nil
}

func (s *setPrimitive[E]) elementKey(element E) (string, []byte, error) {
	encoded, err := s.codec.Marshal(&element)
	if err != nil {
		return "", nil, errors.NewInvalid("element encoding failed: %v", err)
	}
	return s.Name() + "/" + hex.EncodeToString(encoded), encoded, nil
}

func (s *setPrimitive[E]) check() error {
	if s.Removed() {
		return errors.NewNotFound("set %s has been removed", s.Name())
	}
	return nil
}

func (s *setPrimitive[E]) scan(ctx context.Context) ([]store.Entry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	prefix := s.Name() + "/"
	return s.cache.Scan(ctx, func(key string, value any) bool {
		return strings.HasPrefix(key, prefix)
	})
}

var _ Set[any] = (*setPrimitive[any])(nil)
