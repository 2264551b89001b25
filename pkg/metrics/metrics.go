// Package metrics exposes executor activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

const namespace = "xxl_executor"

// Collector turns scheduler events and coordinator calls into metrics.
type Collector struct {
	triggers   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	running    *prometheus.GaugeVec
	adminCalls *prometheus.CounterVec
}

// NewCollector creates the executor metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_total",
				Help:      "Triggers seen by the scheduler, by handler and outcome.",
			},
			[]string{"handler", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trigger_duration_seconds",
				Help:      "Handler run time, by handler and result.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
			},
			[]string{"handler", "result"},
		),
		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running_triggers",
				Help:      "Handler runs currently in flight.",
			},
			[]string{"handler"},
		),
		adminCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_calls_total",
				Help:      "Calls to the coordinator, by operation and result.",
			},
			[]string{"op", "result"},
		),
	}

	reg.MustRegister(c.triggers, c.duration, c.running, c.adminCalls)
	return c
}

// Observe records one scheduler event.
func (c *Collector) Observe(e core.Event) {
	switch ev := e.(type) {
	case *core.TriggerStarted:
		c.triggers.WithLabelValues(ev.Handler, "started").Inc()
		c.running.WithLabelValues(ev.Handler).Inc()
	case *core.TriggerCompleted:
		c.triggers.WithLabelValues(ev.Handler, "completed").Inc()
		c.running.WithLabelValues(ev.Handler).Dec()
		c.duration.WithLabelValues(ev.Handler, "success").Observe(ev.Duration.Seconds())
	case *core.TriggerFailed:
		c.triggers.WithLabelValues(ev.Handler, "failed").Inc()
		c.running.WithLabelValues(ev.Handler).Dec()
		c.duration.WithLabelValues(ev.Handler, "failure").Observe(ev.Duration.Seconds())
	case *core.TriggerQueued:
		c.triggers.WithLabelValues(ev.Handler, "queued").Inc()
	case *core.TriggerDiscarded:
		c.triggers.WithLabelValues(ev.Handler, "discarded").Inc()
	case *core.TriggerEvicted:
		c.triggers.WithLabelValues(ev.Handler, "evicted").Inc()
	case *core.TriggerKilled:
		c.triggers.WithLabelValues(ev.Handler, "killed").Inc()
	}
}

// Consume records events from ch until ctx is cancelled or ch is closed.
func (c *Collector) Consume(ctx context.Context, ch <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

// ObserveAdminCall records the result of one coordinator call.
func (c *Collector) ObserveAdminCall(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.adminCalls.WithLabelValues(op, result).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
