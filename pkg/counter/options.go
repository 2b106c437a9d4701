// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package counter

// Option configures an atomic long at creation. Options are ignored when
// the counter already exists.
type Option interface {
	apply(*Options)
}

// Options holds atomic long creation options.
type Options struct {
	// InitialValue seeds the counter when it is created.
	InitialValue int64
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

// WithInitialValue sets the value the counter starts from when created.
func WithInitialValue(value int64) Option {
	return funcOption{func(options *Options) {
		options.InitialValue = value
	}}
}
