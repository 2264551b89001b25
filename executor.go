// Package executor runs xxl-job style handlers on behalf of a remote
// coordinator.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	cfg, err := executor.NewConfig(executor.Config{
//	    AdminAddresses: "http://127.0.0.1:8080/xxl-job-admin",
//	    AppName:        "xxl-job-executor-sample",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := executor.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.Register("demoJobHandler", executor.Cooperative(executor.HandlerFunc(
//	    func(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
//	        tc.Success("done")
//	        return tc, nil
//	    })))
//	defer client.Stop(context.Background())
package executor

import (
	"context"

	"github.com/jdziat/xxljob-executor/pkg/admin"
	"github.com/jdziat/xxljob-executor/pkg/config"
	"github.com/jdziat/xxljob-executor/pkg/core"
	"github.com/jdziat/xxljob-executor/pkg/joblog"
	"github.com/jdziat/xxljob-executor/pkg/scheduler"
	"github.com/jdziat/xxljob-executor/pkg/security"
)

type (
	// Config is the executor configuration. Build it with NewConfig.
	Config = config.Config

	// Handler is the unit of work registered under a name.
	Handler = core.Handler

	// HandlerFunc adapts a function to Handler.
	HandlerFunc = core.HandlerFunc

	// Variant pairs a handler with its execution mode.
	Variant = core.Variant

	// ExecMode selects cooperative or thread-per-call execution.
	ExecMode = core.ExecMode

	// TriggerContext carries one trigger through its handler.
	TriggerContext = core.TriggerContext

	// CallbackRecord is one execution result reported to the coordinator.
	CallbackRecord = core.CallbackRecord

	// BlockStrategy decides what happens when a handler is already running.
	BlockStrategy = core.BlockStrategy

	// GlueType identifies how the coordinator expects job source to run.
	GlueType = core.GlueType

	// Envelope is the JSON response body used on the wire.
	Envelope = core.Envelope

	// Event is the interface for all runtime events.
	Event = core.Event

	// TriggerStarted is emitted when a trigger is dispatched.
	TriggerStarted = core.TriggerStarted

	// TriggerCompleted is emitted when a run reports success.
	TriggerCompleted = core.TriggerCompleted

	// TriggerFailed is emitted when a run fails.
	TriggerFailed = core.TriggerFailed

	// TriggerQueued is emitted when a trigger waits behind a running one.
	TriggerQueued = core.TriggerQueued

	// TriggerDiscarded is emitted when DiscardLater rejects a trigger.
	TriggerDiscarded = core.TriggerDiscarded

	// TriggerEvicted is emitted when a full queue drops its oldest trigger.
	TriggerEvicted = core.TriggerEvicted

	// TriggerKilled is emitted for each run or queued trigger a kill affects.
	TriggerKilled = core.TriggerKilled

	// ConfigError reports which configuration field failed validation.
	ConfigError = core.ConfigError

	// DispatchError means a trigger could not be delivered to its handler.
	DispatchError = core.DispatchError

	// HandlerError wraps a failure reported by a handler.
	HandlerError = core.HandlerError

	// TransportError means every coordinator address failed for one call.
	TransportError = core.TransportError

	// ProtocolError indicates a malformed payload.
	ProtocolError = core.ProtocolError

	// AdminState is the lifecycle state of the coordinator channel.
	AdminState = admin.State

	// Status is a snapshot of one handler registration.
	Status = scheduler.Status

	// LogStore persists handler execution logs.
	LogStore = joblog.Store
)

// Execution modes.
const (
	ModeCooperative   = core.ModeCooperative
	ModeThreadPerCall = core.ModeThreadPerCall
)

// Block strategies.
const (
	SerialExecution = core.SerialExecution
	DiscardLater    = core.DiscardLater
	CoverEarly      = core.CoverEarly
	OtherStrategy   = core.OtherStrategy
)

// Handle codes.
const (
	SuccessCode = core.SuccessCode
	FailCode    = core.FailCode
	TimeoutCode = core.TimeoutCode
)

// Failure messages reported by the scheduler.
const (
	EvictedMsg  = scheduler.EvictedMsg
	KilledMsg   = scheduler.KilledMsg
	TimeoutMsg  = scheduler.TimeoutMsg
	StoppingMsg = scheduler.StoppingMsg
)

// Re-exported errors.
var (
	ErrConfig             = core.ErrConfig
	ErrHandlerNotFound    = core.ErrHandlerNotFound
	ErrInvalidHandlerName = core.ErrInvalidHandlerName
	ErrHandlerNameTooLong = core.ErrHandlerNameTooLong
	ErrNilHandler         = core.ErrNilHandler
	ErrSchedulerStopped   = core.ErrSchedulerStopped
	ErrChannelStopped     = core.ErrChannelStopped
)

// NewConfig validates cfg and resolves the advertised address.
func NewConfig(cfg Config) (*Config, error) {
	return config.New(cfg)
}

// Cooperative runs h on the shared worker pool.
func Cooperative(h Handler) Variant {
	return core.Cooperative(h)
}

// ThreadPerCall runs h on a dedicated OS thread per call.
func ThreadPerCall(h Handler) Variant {
	return core.ThreadPerCall(h)
}

// NewTriggerContext creates a trigger context with default shard values.
func NewTriggerContext(jobID, logID int64) *TriggerContext {
	return core.NewTriggerContext(jobID, logID)
}

// ParseBlockStrategy maps a wire name to a BlockStrategy.
func ParseBlockStrategy(s string) BlockStrategy {
	return core.ParseBlockStrategy(s)
}

// ValidateHandlerName checks a handler name.
func ValidateHandlerName(name string) error {
	return security.ValidateHandlerName(name)
}

// OpenLogStore opens the execution log database named by dsn, migrates it,
// and returns a store for WithLogStore. See joblog.Open for dsn forms.
func OpenLogStore(dsn string, opts ...joblog.Option) (*LogStore, error) {
	db, err := joblog.Open(dsn)
	if err != nil {
		return nil, err
	}
	store := joblog.NewStore(db, opts...)
	if err := store.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}
