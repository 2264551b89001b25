package admin

import (
	"log/slog"
	"net/http"
	"time"
)

// Defaults for the coordinator channel.
const (
	DefaultRequestTimeout        = 3000 * time.Millisecond
	DefaultHeartbeatInterval     = 29500 * time.Millisecond
	DefaultCallbackRetryInterval = 10 * time.Second
	DefaultMaxPendingCallbacks   = 1000
)

// Observer receives the outcome of every coordinator call.
type Observer interface {
	ObserveAdminCall(op string, err error)
}

// Option configures a Client or Channel.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	logger                *slog.Logger
	httpClient            *http.Client
	requestTimeout        time.Duration
	heartbeatInterval     time.Duration
	callbackRetryInterval time.Duration
	maxPendingCallbacks   int
	tracing               bool
	observer              Observer
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:                slog.Default(),
		requestTimeout:        DefaultRequestTimeout,
		heartbeatInterval:     DefaultHeartbeatInterval,
		callbackRetryInterval: DefaultCallbackRetryInterval,
		maxPendingCallbacks:   DefaultMaxPendingCallbacks,
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

// WithHTTPClient replaces the HTTP client used for coordinator calls.
func WithHTTPClient(c *http.Client) Option {
	return optionFunc(func(o *options) {
		o.httpClient = c
	})
}

// WithRequestTimeout bounds each call to a single coordinator address. Default: 3s.
func WithRequestTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	})
}

// WithHeartbeatInterval sets the pause between the end of one registration
// and the start of the next. Default: 29.5s.
func WithHeartbeatInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.heartbeatInterval = d
		}
	})
}

// WithCallbackRetryInterval sets how long undelivered callbacks wait before the
// next attempt. Default: 10s.
func WithCallbackRetryInterval(d time.Duration) Option {
	return optionFunc(func(o *options) {
		if d > 0 {
			o.callbackRetryInterval = d
		}
	})
}

// WithMaxPendingCallbacks bounds the undelivered callback buffer. The oldest
// records are dropped when it overflows. Default: 1000.
func WithMaxPendingCallbacks(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.maxPendingCallbacks = n
		}
	})
}

// WithTracing wraps the outbound transport with OpenTelemetry instrumentation.
func WithTracing(enabled bool) Option {
	return optionFunc(func(o *options) {
		o.tracing = enabled
	})
}

// WithObserver registers an observer for call outcomes.
func WithObserver(obs Observer) Option {
	return optionFunc(func(o *options) {
		o.observer = obs
	})
}
