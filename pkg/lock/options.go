// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package lock

// Option configures a lock at creation. Options are ignored when the lock
// already exists.
type Option interface {
	apply(*Options)
}

// Options holds lock creation options.
type Options struct {
	// FailoverSafe releases the lock when its owner departs instead of
	// breaking it.
	FailoverSafe bool

	// Fair requests first-come first-served granting.
	Fair bool
}

func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt.apply(o)
	}
}

type funcOption struct {
	f func(*Options)
}

func (o funcOption) apply(options *Options) {
	o.f(options)
}

// WithFailoverSafe enables lock release on owner departure.
func WithFailoverSafe() Option {
	return funcOption{func(options *Options) {
		options.FailoverSafe = true
	}}
}

// WithFair requests first-come first-served granting.
func WithFair() Option {
	return funcOption{func(options *Options) {
		options.Fair = true
	}}
}
