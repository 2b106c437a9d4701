// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/atomix/runtime/sdk/pkg/logging"
	"github.com/cenkalti/backoff/v4"
)

var log = logging.GetLogger()

// DefaultMaxAttempts bounds how many times an operation is attempted when it
// keeps failing with transient topology errors.
const DefaultMaxAttempts = 100

// RetryOption configures the retry executor.
type RetryOption func(*retryOptions)

type retryOptions struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// WithMaxAttempts overrides the attempt ceiling.
func WithMaxAttempts(attempts int) RetryOption {
	return func(o *retryOptions) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
	}
}

// WithInterval overrides the initial backoff interval.
func WithInterval(interval time.Duration) RetryOption {
	return func(o *retryOptions) {
		o.initialInterval = interval
	}
}

func newRetryOptions(opts []RetryOption) retryOptions {
	options := retryOptions{
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: 10 * time.Millisecond,
		maxInterval:     time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Retry runs fn, retrying while it fails with a transient topology error, up
// to the attempt ceiling. Any other failure is surfaced immediately.
func Retry(ctx context.Context, fn func() error, opts ...RetryOption) error {
	_, err := RetryValue(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, opts...)
	return err
}

// RetryValue is Retry for value-returning operations.
func RetryValue[T any](ctx context.Context, fn func() (T, error), opts ...RetryOption) (T, error) {
	options := newRetryOptions(opts)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = options.initialInterval
	b.MaxInterval = options.maxInterval

	attempt := 0
	return backoff.RetryWithData(func() (T, error) {
		attempt++
		value, err := fn()
		if err == nil {
			return value, nil
		}
		if !IsTransientTopology(err) {
			return value, backoff.Permanent(err)
		}
		log.Debugf("attempt %d failed on topology change, retrying: %v", attempt, err)
		return value, err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(options.maxAttempts-1)), ctx))
}
