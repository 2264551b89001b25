package joblog

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jdziat/xxljob-executor/pkg/security"
)

// DefaultJanitorInterval is how often the janitor prunes old lines.
const DefaultJanitorInterval = time.Hour

// JanitorOption configures a Janitor.
type JanitorOption interface {
	apply(*Janitor)
}

type janitorOptionFunc func(*Janitor)

func (f janitorOptionFunc) apply(j *Janitor) { f(j) }

// WithJanitorInterval sets the prune interval.
func WithJanitorInterval(d time.Duration) JanitorOption {
	return janitorOptionFunc(func(j *Janitor) {
		if d > 0 {
			j.interval = d
		}
	})
}

// WithJanitorLogger sets the logger. Default: slog.Default().
func WithJanitorLogger(l *slog.Logger) JanitorOption {
	return janitorOptionFunc(func(j *Janitor) {
		if l != nil {
			j.logger = l
		}
	})
}

// Janitor deletes log lines older than the retention period.
type Janitor struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor creates a janitor keeping retentionDays of logs. Zero or
// negative days disable pruning.
func NewJanitor(store *Store, retentionDays int, opts ...JanitorOption) *Janitor {
	days := security.ClampLogRetentionDays(retentionDays)
	j := &Janitor{
		store:     store,
		retention: time.Duration(days) * 24 * time.Hour,
		interval:  DefaultJanitorInterval,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt.apply(j)
	}
	return j
}

// Enabled reports whether the janitor prunes anything.
func (j *Janitor) Enabled() bool {
	return j.retention > 0
}

// Start prunes once, then on every interval until ctx is cancelled.
// It returns immediately when pruning is disabled.
func (j *Janitor) Start(ctx context.Context) {
	if !j.Enabled() {
		return
	}

	j.prune(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.prune(ctx)
		}
	}
}

func (j *Janitor) prune(ctx context.Context) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("failed to prune job logs", "error", err)
		}
		return
	}
	if n > 0 {
		j.logger.Info("pruned job logs",
			"lines", humanize.Comma(n),
			"older_than", humanize.Time(cutoff))
	}
}
