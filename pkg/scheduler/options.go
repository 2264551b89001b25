package scheduler

import (
	"log/slog"

	"github.com/jdziat/xxljob-executor/pkg/core"
	"github.com/jdziat/xxljob-executor/pkg/security"
)

// DefaultPoolSize is the number of cooperative worker goroutines.
const DefaultPoolSize = 4

// Option configures a Scheduler.
type Option interface {
	apply(*Scheduler)
}

type optionFunc func(*Scheduler)

func (f optionFunc) apply(s *Scheduler) { f(s) }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithPoolSize sets the cooperative worker pool size.
// Values are clamped to [1, MaxWorkerPoolSize].
func WithPoolSize(n int) Option {
	return optionFunc(func(s *Scheduler) {
		s.poolSize = security.ClampWorkerPoolSize(n)
	})
}

// WithReporter sets where completion callbacks are sent. Every submitted
// trigger is bound to it.
func WithReporter(r core.Reporter) Option {
	return optionFunc(func(s *Scheduler) {
		s.reporter = r
	})
}

// WithLogSink sets the execution log sink bound to every submitted trigger.
func WithLogSink(sink core.LogSink) Option {
	return optionFunc(func(s *Scheduler) {
		s.sink = sink
	})
}
