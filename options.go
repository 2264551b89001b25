package executor

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jdziat/xxljob-executor/pkg/admin"
	"github.com/jdziat/xxljob-executor/pkg/server"
)

// Option configures a Client.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	logger            *slog.Logger
	poolSize          int
	logStore          *LogStore
	registerer        prometheus.Registerer
	tracing           bool
	heartbeatInterval time.Duration
	requestTimeout    time.Duration
	readyTimeout      time.Duration
	adminOpts         []admin.Option
	serverOpts        []server.Option
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:       slog.Default(),
		readyTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// WithLogger sets the logger for every component. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithPoolSize sets the number of cooperative worker goroutines.
func WithPoolSize(n int) Option {
	return optionFunc(func(o *options) {
		o.poolSize = n
	})
}

// WithLogStore enables TriggerContext.Log persistence, the /log endpoint and
// retention pruning.
func WithLogStore(store *LogStore) Option {
	return optionFunc(func(o *options) {
		o.logStore = store
	})
}

// WithMetrics registers executor metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return optionFunc(func(o *options) {
		o.registerer = reg
	})
}

// WithTracing enables OpenTelemetry instrumentation on inbound and outbound HTTP.
func WithTracing(enabled bool) Option {
	return optionFunc(func(o *options) {
		o.tracing = enabled
	})
}

// WithHeartbeatInterval overrides the registration heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.heartbeatInterval = d
	})
}

// WithRequestTimeout overrides the per-address coordinator call timeout.
func WithRequestTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.requestTimeout = d
	})
}

// WithReadyTimeout bounds how long New waits for the runtime to come up.
func WithReadyTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.readyTimeout = d
		}
	})
}

// WithAdminOptions passes extra options to the coordinator channel.
func WithAdminOptions(opts ...admin.Option) Option {
	return optionFunc(func(o *options) {
		o.adminOpts = append(o.adminOpts, opts...)
	})
}

// WithServerOptions passes extra options to the inbound server.
func WithServerOptions(opts ...server.Option) Option {
	return optionFunc(func(o *options) {
		o.serverOpts = append(o.serverOpts, opts...)
	})
}
