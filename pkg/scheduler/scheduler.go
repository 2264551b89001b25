package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/xxljob-executor/pkg/core"
	"github.com/jdziat/xxljob-executor/pkg/security"
)

// QueueCapacity bounds the per-handler FIFO of waiting triggers.
const QueueCapacity = 10

const (
	// EvictedMsg is the failure message for a trigger dropped from a full queue.
	EvictedMsg = "discard expired queued job"
	// KilledMsg is the failure message for a queued trigger removed by a kill.
	KilledMsg = "job killed"
	// TimeoutMsg is the failure message for a run that exceeded its timeout.
	TimeoutMsg = "job execute timeout"
	// StoppingMsg is the failure message for triggers cut short by Drain.
	StoppingMsg = "executor stopping"
)

var errHandlerExited = errors.New("handler exited without returning")

// Outcome describes what Submit did with a trigger.
type Outcome int

const (
	// Dispatched means the trigger started running.
	Dispatched Outcome = iota
	// Queued means the trigger waits behind a running one.
	Queued
	// Discarded means the trigger was rejected with a failure callback.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case Queued:
		return "queued"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Status is a point-in-time view of one registration.
type Status struct {
	Name      string
	Mode      core.ExecMode
	Running   bool
	LastRunID int64
	InFlight  []int64
	Queued    []int64
}

type registration struct {
	name      string
	variant   core.Variant
	running   bool
	lastRunID int64
	queue     []*core.TriggerContext
	runs      map[uint64]*run
}

type run struct {
	seq      uint64
	name     string
	variant  core.Variant
	tc       *core.TriggerContext
	prevCode int
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
	killed   bool
}

type outcome struct {
	res *core.TriggerContext
	err error
}

// Scheduler owns the handler registry and dispatches triggers.
type Scheduler struct {
	logger   *slog.Logger
	poolSize int
	reporter core.Reporter
	sink     core.LogSink

	cmds    chan func()
	work    chan *run
	ready   chan struct{}
	done    chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup

	// Owned by the loop goroutine.
	ctx      context.Context
	regs     map[string]*registration
	seq      uint64
	draining bool
	drained  chan struct{}

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

// New creates a scheduler. Call Run to start it.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:   slog.Default(),
		poolSize: DefaultPoolSize,
		cmds:     make(chan func()),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		regs:     make(map[string]*registration),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.work = make(chan *run, s.poolSize)
	return s
}

// Run starts the worker pool and the owner loop. It blocks until ctx is
// cancelled. Runs still in flight are cancelled through ctx and their
// completions are dropped; call Drain first so every trigger is reported.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler: already running")
	}
	s.ctx = ctx

	for i := 0; i < s.poolSize; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.logger.Debug("scheduler started", "pool_size", s.poolSize)
	close(s.ready)

	for {
		select {
		case <-ctx.Done():
			close(s.done)
			s.logger.Debug("scheduler stopped")
			return ctx.Err()
		case fn := <-s.cmds:
			fn()
		}
	}
}

// Ready is closed once Run has started accepting commands.
func (s *Scheduler) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until every cooperative worker has exited. Call it after the
// Run context is cancelled.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// do runs fn on the owner goroutine and waits for it to finish.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.done:
		return core.ErrSchedulerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// post hands fn to the owner goroutine without waiting for it to run.
func (s *Scheduler) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Register adds or replaces the handler for name. Replacing keeps the
// registration's running state and queued triggers; queued triggers run on
// the new handler while an in-flight run finishes on the old one.
func (s *Scheduler) Register(ctx context.Context, name string, v core.Variant) error {
	if err := security.ValidateHandlerName(name); err != nil {
		return err
	}
	if v.Handler == nil {
		return fmt.Errorf("%w: %q", core.ErrNilHandler, name)
	}

	return s.do(ctx, func() {
		if reg, ok := s.regs[name]; ok {
			reg.variant = v
			s.logger.Info("handler replaced", "handler", name, "mode", v.Mode)
			return
		}
		s.regs[name] = &registration{
			name:    name,
			variant: v,
			runs:    make(map[uint64]*run),
		}
		s.logger.Info("handler registered", "handler", name, "mode", v.Mode)
	})
}

// Names returns the registered handler names.
func (s *Scheduler) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.do(ctx, func() {
		names = make([]string, 0, len(s.regs))
		for name := range s.regs {
			names = append(names, name)
		}
	})
	return names, err
}

// Submit routes a trigger to the handler registered under name. An unknown
// name returns an error wrapping core.ErrHandlerNotFound and no callback is
// produced. Every other path leads to exactly one callback for tc.
func (s *Scheduler) Submit(ctx context.Context, name string, tc *core.TriggerContext) (Outcome, error) {
	if s.reporter != nil {
		tc.Bind(s.reporter, s.sink)
	}

	var (
		out    Outcome
		lookup error
	)
	err := s.do(ctx, func() {
		if s.draining {
			lookup = core.ErrSchedulerStopped
			return
		}
		reg, ok := s.regs[name]
		if !ok {
			lookup = fmt.Errorf("%w: %q", core.ErrHandlerNotFound, name)
			return
		}
		out = s.route(reg, tc)
	})
	if err != nil {
		return 0, err
	}
	return out, lookup
}

func (s *Scheduler) route(reg *registration, tc *core.TriggerContext) Outcome {
	if reg.running {
		switch tc.BlockStrategy {
		case core.SerialExecution:
			s.enqueue(reg, tc)
			return Queued
		case core.DiscardLater:
			msg := fmt.Sprintf("Discard the job; job_id:%d, log_id:%d", tc.JobID, tc.LogID)
			tc.CallbackFailedWith(msg, core.FailCode)
			s.logger.Info("trigger discarded", "handler", reg.name, "job_id", tc.JobID, "log_id", tc.LogID)
			s.Emit(&core.TriggerDiscarded{
				Handler:   reg.name,
				JobID:     tc.JobID,
				LogID:     tc.LogID,
				Timestamp: time.Now(),
			})
			return Discarded
		}
	}
	s.dispatch(reg, tc)
	return Dispatched
}

func (s *Scheduler) enqueue(reg *registration, tc *core.TriggerContext) {
	if len(reg.queue) >= QueueCapacity {
		oldest := reg.queue[0]
		reg.queue[0] = nil
		reg.queue = reg.queue[1:]
		oldest.CallbackFailedWith(EvictedMsg, oldest.FailureCode())
		s.logger.Warn("queued trigger evicted",
			"handler", reg.name, "job_id", oldest.JobID, "log_id", oldest.LogID)
		s.Emit(&core.TriggerEvicted{
			Handler:   reg.name,
			JobID:     oldest.JobID,
			LogID:     oldest.LogID,
			Timestamp: time.Now(),
		})
	}
	reg.queue = append(reg.queue, tc)
	s.Emit(&core.TriggerQueued{
		Handler:   reg.name,
		JobID:     tc.JobID,
		LogID:     tc.LogID,
		Depth:     len(reg.queue),
		Timestamp: time.Now(),
	})
}

func (s *Scheduler) dispatch(reg *registration, tc *core.TriggerContext) {
	reg.running = true
	reg.lastRunID = tc.LogID

	s.seq++
	ctx, cancel := tc.Deadline(s.ctx)
	r := &run{
		seq:      s.seq,
		name:     reg.name,
		variant:  reg.variant,
		tc:       tc,
		prevCode: tc.HandleCode,
		ctx:      ctx,
		cancel:   cancel,
		started:  time.Now(),
	}
	reg.runs[r.seq] = r

	s.logger.Debug("trigger dispatched",
		"handler", reg.name, "job_id", tc.JobID, "log_id", tc.LogID, "mode", r.variant.Mode)
	s.Emit(&core.TriggerStarted{
		Handler:   reg.name,
		JobID:     tc.JobID,
		LogID:     tc.LogID,
		Mode:      r.variant.Mode,
		Timestamp: r.started,
	})

	if r.variant.Mode == core.ModeThreadPerCall {
		go s.runDedicated(r)
		return
	}
	select {
	case s.work <- r:
	default:
		go func() {
			select {
			case s.work <- r:
			case <-s.done:
				r.cancel()
			}
		}()
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.work:
			s.execute(r)
		}
	}
}

// execute runs a cooperative handler on the calling pool worker. If the
// handler ends the goroutine without returning, the run fails and a
// replacement worker is started.
func (s *Scheduler) execute(r *run) {
	returned := false
	defer func() {
		if returned {
			return
		}
		s.complete(r, nil, &core.DispatchError{Handler: r.name, Err: errHandlerExited})
		select {
		case <-s.ctx.Done():
		default:
			s.wg.Add(1)
			go s.worker(s.ctx)
		}
	}()
	res, err := invoke(r)
	returned = true
	s.complete(r, res, err)
}

// runDedicated runs the handler on its own locked OS thread and waits for
// the one-shot result.
func (s *Scheduler) runDedicated(r *run) {
	result := make(chan outcome, 1)
	go func() {
		runtime.LockOSThread()
		defer close(result)
		res, err := invoke(r)
		result <- outcome{res: res, err: err}
	}()

	o, ok := <-result
	if !ok {
		s.complete(r, nil, &core.DispatchError{Handler: r.name, Err: errHandlerExited})
		return
	}
	s.complete(r, o.res, o.err)
}

func invoke(r *run) (res *core.TriggerContext, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = &core.HandlerError{Handler: r.name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	res, err = r.variant.Handler.Process(r.ctx, r.tc)
	if err != nil {
		err = &core.HandlerError{Handler: r.name, Err: err}
	}
	return res, err
}

func (s *Scheduler) complete(r *run, res *core.TriggerContext, err error) {
	if !s.post(func() { s.resolve(r, res, err) }) {
		r.cancel()
	}
}

// resolve reports the run's outcome, clears the running flag when the run is
// the most recent dispatch for its handler, and starts the next queued trigger.
func (s *Scheduler) resolve(r *run, res *core.TriggerContext, err error) {
	timedOut := errors.Is(r.ctx.Err(), context.DeadlineExceeded)
	r.cancel()
	elapsed := time.Since(r.started)
	tc := r.tc

	switch {
	case err != nil:
		code := core.FailCode
		if r.prevCode != core.SuccessCode {
			code = r.prevCode
		}
		msg := err.Error()
		if timedOut {
			code = core.TimeoutCode
			msg = TimeoutMsg + ": " + msg
		}
		if r.killed {
			msg = KilledMsg + ": " + msg
		}
		tc.CallbackFailedWith(msg, code)
		s.logger.Warn("handler failed",
			"handler", r.name, "job_id", tc.JobID, "log_id", tc.LogID, "error", err)
		s.Emit(&core.TriggerFailed{
			Handler:   r.name,
			JobID:     tc.JobID,
			LogID:     tc.LogID,
			Code:      code,
			Error:     err,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
	default:
		final := res
		if final == nil {
			final = tc
		}
		if final.HandleCode == core.SuccessCode {
			tc.Report(core.SuccessCode, final.HandleMsg)
			s.Emit(&core.TriggerCompleted{
				Handler:   r.name,
				JobID:     tc.JobID,
				LogID:     tc.LogID,
				Duration:  elapsed,
				Timestamp: time.Now(),
			})
		} else {
			tc.Report(final.HandleCode, final.HandleMsg)
			s.Emit(&core.TriggerFailed{
				Handler:   r.name,
				JobID:     tc.JobID,
				LogID:     tc.LogID,
				Code:      final.HandleCode,
				Error:     errors.New(final.HandleMsg),
				Duration:  elapsed,
				Timestamp: time.Now(),
			})
		}
	}

	reg, ok := s.regs[r.name]
	if !ok {
		return
	}
	delete(reg.runs, r.seq)
	if reg.lastRunID == tc.LogID {
		reg.running = false
		reg.lastRunID = 0
	}
	if len(reg.queue) > 0 && !s.draining {
		next := reg.queue[0]
		reg.queue[0] = nil
		reg.queue = reg.queue[1:]
		s.dispatch(reg, next)
	}
	s.checkDrained()
}

// Drain stops admission and winds the scheduler down without silent drops.
// Queued triggers fail with StoppingMsg at once. In-flight runs get until ctx
// ends to complete normally; runs still going after that are cancelled and
// fail with StoppingMsg. It returns the number of triggers failed by the
// drain, and ctx.Err() when runs had to be cut short. Submit returns
// core.ErrSchedulerStopped once Drain has started.
func (s *Scheduler) Drain(ctx context.Context) (int, error) {
	var (
		idle   chan struct{}
		failed int
	)
	err := s.do(context.WithoutCancel(ctx), func() {
		s.draining = true
		for _, reg := range s.regs {
			for i, tc := range reg.queue {
				reg.queue[i] = nil
				if !tc.CallbackFailedWith(StoppingMsg, core.FailCode) {
					continue
				}
				failed++
				s.logger.Warn("queued trigger failed on shutdown",
					"handler", reg.name, "job_id", tc.JobID, "log_id", tc.LogID)
				s.Emit(&core.TriggerEvicted{
					Handler:   reg.name,
					JobID:     tc.JobID,
					LogID:     tc.LogID,
					Timestamp: time.Now(),
				})
			}
			reg.queue = nil
		}
		if s.drained == nil {
			s.drained = make(chan struct{})
		}
		idle = s.drained
		s.checkDrained()
	})
	if err != nil {
		return failed, err
	}

	select {
	case <-idle:
		return failed, nil
	case <-ctx.Done():
	}

	err = s.do(context.WithoutCancel(ctx), func() {
		for _, reg := range s.regs {
			for _, r := range reg.runs {
				r.cancel()
				if !r.tc.CallbackFailedWith(StoppingMsg, core.FailCode) {
					continue
				}
				failed++
				s.logger.Warn("in-flight run abandoned on shutdown",
					"handler", reg.name, "job_id", r.tc.JobID, "log_id", r.tc.LogID,
					"elapsed", time.Since(r.started))
			}
		}
	})
	return failed, errors.Join(ctx.Err(), err)
}

// checkDrained closes the drain signal once no run is in flight.
func (s *Scheduler) checkDrained() {
	if s.drained == nil {
		return
	}
	for _, reg := range s.regs {
		if len(reg.runs) > 0 {
			return
		}
	}
	select {
	case <-s.drained:
	default:
		close(s.drained)
	}
}

// Kill cancels every in-flight run of jobID and fails its queued triggers.
// Cancellation is advisory: a handler that ignores its context keeps running.
// It returns the number of runs and queued triggers affected.
func (s *Scheduler) Kill(ctx context.Context, jobID int64) (int, error) {
	affected := 0
	err := s.do(ctx, func() {
		for _, reg := range s.regs {
			for _, r := range reg.runs {
				if r.tc.JobID != jobID || r.killed {
					continue
				}
				r.killed = true
				r.cancel()
				affected++
				s.Emit(&core.TriggerKilled{
					Handler:   reg.name,
					JobID:     jobID,
					LogID:     r.tc.LogID,
					Timestamp: time.Now(),
				})
			}

			kept := reg.queue[:0]
			for _, tc := range reg.queue {
				if tc.JobID != jobID {
					kept = append(kept, tc)
					continue
				}
				tc.CallbackFailedWith(KilledMsg, core.FailCode)
				affected++
				s.Emit(&core.TriggerKilled{
					Handler:   reg.name,
					JobID:     jobID,
					LogID:     tc.LogID,
					Queued:    true,
					Timestamp: time.Now(),
				})
			}
			for i := len(kept); i < len(reg.queue); i++ {
				reg.queue[i] = nil
			}
			reg.queue = kept
		}
	})
	if err == nil && affected > 0 {
		s.logger.Info("job killed", "job_id", jobID, "affected", affected)
	}
	return affected, err
}

// JobIdle reports whether no run or queued trigger exists for jobID.
func (s *Scheduler) JobIdle(ctx context.Context, jobID int64) (bool, error) {
	idle := true
	err := s.do(ctx, func() {
		for _, reg := range s.regs {
			if reg.hasJob(jobID) {
				idle = false
				return
			}
		}
	})
	return idle, err
}

// HandlerIdle reports whether the named handler is not running and has no
// queued triggers.
func (s *Scheduler) HandlerIdle(ctx context.Context, name string) (bool, error) {
	var (
		idle   bool
		lookup error
	)
	err := s.do(ctx, func() {
		reg, ok := s.regs[name]
		if !ok {
			lookup = fmt.Errorf("%w: %q", core.ErrHandlerNotFound, name)
			return
		}
		idle = !reg.running && len(reg.queue) == 0
	})
	if err != nil {
		return false, err
	}
	return idle, lookup
}

// Active reports whether logID is currently running or queued.
func (s *Scheduler) Active(ctx context.Context, logID int64) (bool, error) {
	active := false
	err := s.do(ctx, func() {
		for _, reg := range s.regs {
			for _, r := range reg.runs {
				if r.tc.LogID == logID {
					active = true
					return
				}
			}
			for _, tc := range reg.queue {
				if tc.LogID == logID {
					active = true
					return
				}
			}
		}
	})
	return active, err
}

// Status returns a snapshot of the named registration.
func (s *Scheduler) Status(ctx context.Context, name string) (Status, error) {
	var (
		st     Status
		lookup error
	)
	err := s.do(ctx, func() {
		reg, ok := s.regs[name]
		if !ok {
			lookup = fmt.Errorf("%w: %q", core.ErrHandlerNotFound, name)
			return
		}
		st = Status{
			Name:      reg.name,
			Mode:      reg.variant.Mode,
			Running:   reg.running,
			LastRunID: reg.lastRunID,
		}
		for _, r := range reg.runs {
			st.InFlight = append(st.InFlight, r.tc.LogID)
		}
		for _, tc := range reg.queue {
			st.Queued = append(st.Queued, tc.LogID)
		}
	})
	if err != nil {
		return Status{}, err
	}
	return st, lookup
}

func (reg *registration) hasJob(jobID int64) bool {
	for _, r := range reg.runs {
		if r.tc.JobID == jobID {
			return true
		}
	}
	for _, tc := range reg.queue {
		if tc.JobID == jobID {
			return true
		}
	}
	return false
}

// Events returns a channel that receives scheduler events.
func (s *Scheduler) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	s.mu.Lock()
	s.eventSubs = append(s.eventSubs, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events.
// The channel is not closed.
func (s *Scheduler) Unsubscribe(ch <-chan core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.eventSubs {
		if sub == ch {
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers, dropping it for full ones.
func (s *Scheduler) Emit(e core.Event) {
	s.mu.RLock()
	subs := make([]chan core.Event, len(s.eventSubs))
	copy(subs, s.eventSubs)
	s.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
