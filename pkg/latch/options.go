// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package latch

// Option configures a count-down latch at creation. Options are ignored
// when the latch already exists.
type Option interface {
	apply(*Options)
}

// Options holds latch creation options.
type Options struct {
	// Count is the initial count of the latch.
	Count int

	// AutoDelete removes the latch from the store once its count reaches
	// zero.
	AutoDelete bool
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

// WithCount sets the initial count.
func WithCount(count int) Option {
	return funcOption{func(options *Options) {
		options.Count = count
	}}
}

// WithAutoDelete enables removal of the latch once it reaches zero.
func WithAutoDelete() Option {
	return funcOption{func(options *Options) {
		options.AutoDelete = true
	}}
}
