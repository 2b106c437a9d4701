// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package semaphore

// Option configures a semaphore at creation. Options are ignored when the
// semaphore already exists.
type Option interface {
	apply(*Options)
}

// Options holds semaphore creation options.
type Options struct {
	// Permits is the initial number of available permits.
	Permits int

	// FailoverSafe returns a departed member's permits to the pool instead of
	// breaking the semaphore.
	FailoverSafe bool
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

// WithPermits sets the initial number of permits.
func WithPermits(permits int) Option {
	return funcOption{func(options *Options) {
		options.Permits = permits
	}}
}

// WithFailoverSafe enables permit recovery on member departure.
func WithFailoverSafe() Option {
	return funcOption{func(options *Options) {
		options.FailoverSafe = true
	}}
}
