// SPDX-FileCopyrightText: 2022-present Intel Corporation
//
// SPDX-License-Identifier: Apache-2.0

package coordination

// Option configures a manager.
type Option interface {
	apply(*Options)
}

// Options holds manager options.
type Options struct {
	// Config is the manager configuration.
	Config Config
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

// WithConfig sets the manager configuration.
func WithConfig(config Config) Option {
	return funcOption{func(options *Options) {
		options.Config = config
	}}
}
