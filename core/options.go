package core

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type runtimeBuilder struct {
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	retryPolicy     *RetryPolicy
	now             func() time.Time
}

// Option configures a LifecycleScheduler or a PoolAssembler.
type Option func(*runtimeBuilder)

func WithLogger(logger Logger) Option {
	return func(b *runtimeBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *runtimeBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *runtimeBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(b *runtimeBuilder) {
		b.retryPolicy = &policy
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *runtimeBuilder) {
		b.now = now
	}
}

func buildRuntime(name string, options []Option) runtimeBuilder {
	builder := runtimeBuilder{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(name, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			logger = glog.Ensure(named)
		}
	}
	builder.loggerProvider = provider
	builder.logger = logger

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.retryPolicy == nil {
		policy := DefaultRetryPolicy()
		builder.retryPolicy = &policy
	}
	if builder.now == nil {
		builder.now = time.Now
	}
	return builder
}

// LayeredConfigLoader merges raw configuration sources with a go-options
// stack. Flags override the environment, which overrides the config file.
type LayeredConfigLoader struct {
	File  map[string]any
	Env   map[string]any
	Flags map[string]any
}

func (l *LayeredConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil {
		return map[string]any{}, nil
	}
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("file", 10),
			nonNilLayer(l.File),
			opts.WithSnapshotID[map[string]any]("file"),
		),
		opts.NewLayer(
			opts.NewScope("env", 20),
			nonNilLayer(l.Env),
			opts.WithSnapshotID[map[string]any]("env"),
		),
		opts.NewLayer(
			opts.NewScope("flags", 30),
			nonNilLayer(l.Flags),
			opts.WithSnapshotID[map[string]any]("flags"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return nil, fmt.Errorf("core: options merge failed: %w", err)
	}
	return merged.Value, nil
}

func nonNilLayer(values map[string]any) map[string]any {
	if values == nil {
		return map[string]any{}
	}
	return values
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds a Config on top of defaults and validates it.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil || p.Loader == nil {
		if err := defaults.Validate(); err != nil {
			return Config{}, err
		}
		return defaults, nil
	}
	raw, err := p.Loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
