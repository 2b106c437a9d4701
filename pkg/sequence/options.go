// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package sequence

// Option configures a sequence at creation. Options other than the reserve
// size are ignored when the sequence already exists.
type Option interface {
	apply(*Options)
}

// Options holds sequence creation options.
type Options struct {
	// InitialValue seeds the sequence when it is created.
	InitialValue int64

	// ReserveSize overrides the configured reservation size for this handle.
	ReserveSize int
}

func (o *Options) Apply(opts ...Option) {
	for _, opt := range opts {
		opt.apply(o)
	}
}

func newFuncOption(f func(*Options)) Option {
	return funcOption{f}
}

type funcOption struct {
	f func(*Options)
}

func (o funcOption) apply(options *Options) {
	o.f(options)
}

// WithInitialValue sets the value the sequence starts from when created.
func WithInitialValue(value int64) Option {
	return newFuncOption(func(options *Options) {
		options.InitialValue = value
	})
}

// WithReserveSize sets how many values this handle reserves per store
// round trip.
func WithReserveSize(size int) Option {
	return newFuncOption(func(options *Options) {
		options.ReserveSize = size
	})
}
