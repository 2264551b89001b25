package admin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/xxljob-executor/pkg/config"
	"github.com/jdziat/xxljob-executor/pkg/core"
)

// State is the lifecycle state of a Channel.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// Channel owns the executor's relationship with the coordinator: periodic
// registration, callback delivery and deregistration on stop.
//
// Created -> Running (Start) -> Draining (Drain) -> Stopped (Stop).
// Callbacks keep flowing while Draining.
type Channel struct {
	client *Client
	opts   *options
	logger *slog.Logger

	state atomic.Int32

	mu       sync.Mutex
	pending  []core.CallbackRecord
	inflight int
	closed   bool
	notify   chan struct{}

	// life serializes Start, Drain and Stop.
	life      sync.Mutex
	stopBeat  context.CancelFunc
	stopFlush context.CancelFunc
	beatWG    sync.WaitGroup
	flushWG   sync.WaitGroup
	done      chan struct{}
	deregErr  error
}

// NewChannel creates a channel for cfg. It fails when the address list is empty.
func NewChannel(cfg *config.Config, opts ...Option) (*Channel, error) {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Channel{
		client: client,
		opts:   o,
		logger: o.logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// Client returns the underlying coordinator client.
func (c *Channel) Client() *Client {
	return c.client
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Start moves the channel to Running and starts the heartbeat and callback
// loops. The first registration is attempted immediately.
func (c *Channel) Start(ctx context.Context) error {
	c.life.Lock()
	defer c.life.Unlock()
	if c.State() != StateCreated {
		return core.ErrChannelStopped
	}

	base := context.WithoutCancel(ctx)
	beatCtx, stopBeat := context.WithCancel(base)
	flushCtx, stopFlush := context.WithCancel(base)
	c.stopBeat = stopBeat
	c.stopFlush = stopFlush
	c.state.Store(int32(StateRunning))

	c.beatWG.Add(1)
	go c.heartbeatLoop(beatCtx)
	c.flushWG.Add(1)
	go c.callbackLoop(flushCtx)

	c.logger.Info("admin channel started", "addresses", c.client.Addresses())
	return nil
}

// Register performs one registration call.
func (c *Channel) Register(ctx context.Context) error {
	return c.client.Registry(ctx)
}

// Report queues a completion record for delivery. It never blocks. Records
// reported after Stop are logged and dropped.
func (c *Channel) Report(rec core.CallbackRecord) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logUndelivered([]core.CallbackRecord{rec})
		return
	}
	c.pending = append(c.pending, rec)
	c.trimPendingLocked()
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of records waiting for delivery.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) + c.inflight
}

func (c *Channel) trimPendingLocked() {
	over := len(c.pending) - c.opts.maxPendingCallbacks
	if over <= 0 {
		return
	}
	for _, rec := range c.pending[:over] {
		c.logger.Warn("dropping undelivered callback", "log_id", rec.LogID, "handle_code", rec.HandleCode)
	}
	c.pending = append([]core.CallbackRecord(nil), c.pending[over:]...)
}

// heartbeatLoop registers, then sleeps the interval measured from the end of
// the call, until the channel leaves Running.
func (c *Channel) heartbeatLoop(ctx context.Context) {
	defer c.beatWG.Done()

	for {
		if c.State() != StateRunning {
			return
		}
		if err := c.client.Registry(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("executor registration failed", "error", err)
		} else {
			c.logger.Debug("executor registered", "value", c.client.cfg.RegistryValue())
		}

		timer := time.NewTimer(c.opts.heartbeatInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Channel) callbackLoop(ctx context.Context) {
	defer c.flushWG.Done()

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.notify:
		case <-retry:
			retry = nil
		}
		if !c.flush(ctx) && retry == nil {
			retry = time.After(c.opts.callbackRetryInterval)
		}
	}
}

// flush delivers all pending records as one batch. Undelivered records are
// put back in front of any that arrived meanwhile.
func (c *Channel) flush(ctx context.Context) bool {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.inflight = len(batch)
	c.mu.Unlock()

	if len(batch) == 0 {
		return true
	}
	err := c.client.Callback(ctx, batch)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = 0
	if err != nil {
		c.logger.Warn("callback delivery failed", "records", len(batch), "error", err)
		c.pending = append(batch, c.pending...)
		c.trimPendingLocked()
		return false
	}
	c.logger.Debug("callbacks delivered", "records", len(batch))
	return true
}

// Drain stops heartbeats and deregisters the executor. Callback delivery
// keeps running so completions that arrive while the executor winds down still
// reach the coordinator. Drain returns once the deregistration call has
// resolved; its error is returned but never blocks beyond the per-address
// timeout. Later calls return the first result.
func (c *Channel) Drain(ctx context.Context) error {
	c.life.Lock()
	defer c.life.Unlock()

	switch c.State() {
	case StateCreated:
		c.mu.Lock()
		left := c.pending
		c.pending = nil
		c.closed = true
		c.mu.Unlock()
		c.logUndelivered(left)
		c.state.Store(int32(StateStopped))
		close(c.done)
		return nil
	case StateDraining, StateStopped:
		return c.deregErr
	}

	c.state.Store(int32(StateDraining))
	c.logger.Info("admin channel draining")
	c.stopBeat()
	c.beatWG.Wait()

	err := c.client.RegistryRemove(context.WithoutCancel(ctx))
	if err != nil {
		c.logger.Warn("executor deregistration failed", "error", err)
	} else {
		c.logger.Info("executor deregistered")
	}
	c.deregErr = err
	return err
}

// Stop drains the channel if needed, makes a last delivery attempt for pending
// callbacks and moves to Stopped. Records that still could not be delivered
// are logged. It returns the deregistration result.
func (c *Channel) Stop(ctx context.Context) error {
	err := c.Drain(ctx)

	c.life.Lock()
	defer c.life.Unlock()
	if c.State() == StateStopped {
		return err
	}

	c.stopFlush()
	c.flushWG.Wait()

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
		c.opts.requestTimeout*time.Duration(len(c.client.addrs)))
	c.flush(flushCtx)
	cancel()

	c.mu.Lock()
	left := c.pending
	c.pending = nil
	c.closed = true
	c.mu.Unlock()
	c.logUndelivered(left)

	c.state.Store(int32(StateStopped))
	close(c.done)
	c.logger.Info("admin channel stopped")
	return err
}

func (c *Channel) logUndelivered(records []core.CallbackRecord) {
	for _, rec := range records {
		c.logger.Error("callback undelivered",
			"log_id", rec.LogID, "handle_code", rec.HandleCode, "handle_msg", rec.HandleMsg)
	}
}

// Done is closed once Stop has finished.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// IsTransportError reports whether err came from exhausting every coordinator address.
func IsTransportError(err error) bool {
	var te *core.TransportError
	return errors.As(err, &te)
}
