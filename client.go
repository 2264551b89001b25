package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/jdziat/xxljob-executor/pkg/admin"
	"github.com/jdziat/xxljob-executor/pkg/core"
	"github.com/jdziat/xxljob-executor/pkg/joblog"
	"github.com/jdziat/xxljob-executor/pkg/metrics"
	"github.com/jdziat/xxljob-executor/pkg/scheduler"
	"github.com/jdziat/xxljob-executor/pkg/server"
)

// Client is a running executor: scheduler, coordinator channel and inbound
// server. Pass it to any code that registers handlers after startup.
type Client struct {
	id      string
	cfg     *Config
	logger  *slog.Logger
	sched   *scheduler.Scheduler
	channel *admin.Channel
	srv     *server.Server
	janitor *joblog.Janitor
	metrics *metrics.Collector

	cancelSched context.CancelFunc
	cancelBG    context.CancelFunc

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// New starts an executor for cfg. It returns once the inbound server is
// listening and the coordinator channel is running, or with the error that
// prevented startup. Registration with the coordinator happens in the
// background and is retried on every heartbeat.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Field: "config", Reason: "is nil"}
	}
	o := newOptions(opts)

	c := &Client{
		id:     uuid.NewString(),
		cfg:    cfg,
		done:   make(chan struct{}),
		logger: o.logger,
	}
	c.logger = c.logger.With("instance", c.id)

	adminOpts := []admin.Option{admin.WithLogger(c.logger), admin.WithTracing(o.tracing)}
	if o.heartbeatInterval > 0 {
		adminOpts = append(adminOpts, admin.WithHeartbeatInterval(o.heartbeatInterval))
	}
	if o.requestTimeout > 0 {
		adminOpts = append(adminOpts, admin.WithRequestTimeout(o.requestTimeout))
	}
	if o.registerer != nil {
		c.metrics = metrics.NewCollector(o.registerer)
		adminOpts = append(adminOpts, admin.WithObserver(c.metrics))
	}
	adminOpts = append(adminOpts, o.adminOpts...)

	channel, err := admin.NewChannel(cfg, adminOpts...)
	if err != nil {
		return nil, err
	}
	c.channel = channel

	schedOpts := []scheduler.Option{scheduler.WithLogger(c.logger), scheduler.WithReporter(channel)}
	if o.poolSize > 0 {
		schedOpts = append(schedOpts, scheduler.WithPoolSize(o.poolSize))
	}
	srvOpts := []server.Option{server.WithLogger(c.logger), server.WithTracing(o.tracing)}
	if o.logStore != nil {
		schedOpts = append(schedOpts, scheduler.WithLogSink(o.logStore))
		srvOpts = append(srvOpts, server.WithLogReader(o.logStore))
		c.janitor = joblog.NewJanitor(o.logStore, cfg.LogRetentionDays, joblog.WithJanitorLogger(c.logger))
	}
	srvOpts = append(srvOpts, o.serverOpts...)

	c.sched = scheduler.New(schedOpts...)
	c.srv = server.New(cfg, c.sched, srvOpts...)

	schedCtx, cancelSched := context.WithCancel(context.Background())
	bgCtx, cancelBG := context.WithCancel(context.Background())
	c.cancelSched = cancelSched
	c.cancelBG = cancelBG

	ready := make(chan error, 1)
	go c.start(schedCtx, bgCtx, ready)

	ctx, cancel := context.WithTimeout(context.Background(), o.readyTimeout)
	defer cancel()
	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		_ = c.shutdownLocal(context.Background())
		return nil, fmt.Errorf("executor: startup: %w", ctx.Err())
	}

	c.logger.Info("executor started",
		"app", cfg.AppName,
		"addr", cfg.AdvertiseAddr(),
		"admin", cfg.Addresses())
	return c, nil
}

// start brings the runtime up in the background and reports the outcome on
// ready exactly once.
func (c *Client) start(schedCtx, bgCtx context.Context, ready chan<- error) {
	go func() { _ = c.sched.Run(schedCtx) }()
	<-c.sched.Ready()

	if err := c.srv.Listen(); err != nil {
		c.cancelSched()
		<-c.sched.Done()
		c.cancelBG()
		ready <- fmt.Errorf("executor: listen on %s: %w", c.cfg.ListenAddr(), err)
		return
	}
	go func() {
		if err := c.srv.Serve(); err != nil {
			c.logger.Error("executor server stopped", "error", err)
		}
	}()

	if c.metrics != nil {
		events := c.sched.Events()
		go func() {
			defer c.sched.Unsubscribe(events)
			c.metrics.Consume(bgCtx, events)
		}()
	}
	if c.janitor != nil {
		go c.janitor.Start(bgCtx)
	}

	if err := c.channel.Start(bgCtx); err != nil {
		_ = c.shutdownLocal(context.Background())
		ready <- err
		return
	}
	ready <- nil
}

// ID returns the random instance id of this executor.
func (c *Client) ID() string {
	return c.id
}

// Config returns the configuration the executor was started with.
func (c *Client) Config() *Config {
	return c.cfg
}

// Addr returns the address the inbound server is bound to.
func (c *Client) Addr() net.Addr {
	return c.srv.Addr()
}

// AdminState returns the coordinator channel state.
func (c *Client) AdminState() AdminState {
	return c.channel.State()
}

// Register adds or replaces the handler for name. The last registration for
// a name wins.
func (c *Client) Register(name string, v Variant) error {
	return c.sched.Register(context.Background(), name, v)
}

// Status returns a snapshot of the named registration.
func (c *Client) Status(ctx context.Context, name string) (Status, error) {
	return c.sched.Status(ctx, name)
}

// Events returns a channel of runtime events. Call Unsubscribe when done.
func (c *Client) Events() <-chan Event {
	return c.sched.Events()
}

// Unsubscribe removes a channel returned by Events.
func (c *Client) Unsubscribe(ch <-chan Event) {
	c.sched.Unsubscribe(ch)
}

// Stop shuts the executor down without dropping results:
//
//  1. heartbeats stop and the executor deregisters from the coordinator
//  2. the inbound server stops accepting triggers
//  3. queued triggers fail with a callback and in-flight runs get until ctx
//     ends to finish
//  4. pending callbacks get a last delivery attempt; undelivered ones are logged
//  5. the scheduler and background tasks stop
//
// It is safe to call more than once.
func (c *Client) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		var errs []error
		if err := c.channel.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := c.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("executor: server shutdown: %w", err))
		}
		failed, err := c.sched.Drain(ctx)
		if failed > 0 {
			c.logger.Warn("triggers failed on shutdown", "count", failed)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("executor: drain: %w", err))
		}
		_ = c.channel.Stop(ctx)
		c.stopScheduler(ctx)

		c.stopErr = errors.Join(errs...)
		close(c.done)
		c.logger.Info("executor stopped")
	})
	return c.stopErr
}

// Done is closed once Stop has finished.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// shutdownLocal undoes a partial startup.
func (c *Client) shutdownLocal(ctx context.Context) error {
	err := c.srv.Shutdown(ctx)
	c.stopScheduler(ctx)
	return err
}

func (c *Client) stopScheduler(ctx context.Context) {
	c.cancelSched()
	select {
	case <-c.sched.Done():
	case <-ctx.Done():
	}
	c.cancelBG()
}
