package common

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServiceOptions defines common options for the application graph
type ServiceOptions struct {
	Logger    *zap.Logger
	Env       string
	FxOptions []fx.Option
}

// Option defines a service option modifier
type Option func(*ServiceOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *ServiceOptions) {
		o.Logger = logger
	}
}

func WithEnv(env string) Option {
	return func(o *ServiceOptions) {
		o.Env = env
	}
}

// WithFxOptions appends extra fx options, e.g. decorators replacing a dependency in tests.
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *ServiceOptions) {
		o.FxOptions = append(o.FxOptions, opts...)
	}
}

// Apply builds ServiceOptions from opts. A missing logger becomes a no-op logger.
func Apply(opts ...Option) *ServiceOptions {
	options := &ServiceOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return options
}
