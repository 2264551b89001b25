package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// CallbackRecord is one completion report delivered to the coordinator.
type CallbackRecord struct {
	LogID       int64  `json:"logId"`
	LogDateTime int64  `json:"logDateTim"`
	HandleCode  int    `json:"handleCode"`
	HandleMsg   string `json:"handleMsg,omitempty"`
}

// Reporter accepts completion records. The admin channel implements it.
type Reporter interface {
	Report(rec CallbackRecord)
}

// LogSink stores execution log lines keyed by log id.
type LogSink interface {
	Append(ctx context.Context, logID int64, line string) error
}

// TriggerContext is the value passed to a handler for one trigger.
//
// It is owned by whichever party currently holds it: the scheduler while
// queued, the handler while running. Exactly one callback is ever emitted per
// context; later attempts are ignored.
type TriggerContext struct {
	JobID         int64
	LogID         int64
	Param         string
	ShardIndex    int
	ShardTotal    int
	HandleCode    int
	HandleMsg     string
	BlockStrategy BlockStrategy
	GlueType      GlueType
	GlueSource    string
	GlueUpdatedAt int64
	Timeout       time.Duration
	LogDateTime   int64

	reporter Reporter
	sink     LogSink
	reported atomic.Bool
}

// NewTriggerContext creates a context with the defaults used for a bare trigger.
func NewTriggerContext(jobID, logID int64) *TriggerContext {
	return &TriggerContext{
		JobID:      jobID,
		LogID:      logID,
		ShardTotal: 1,
		HandleCode: SuccessCode,
	}
}

// Bind attaches the reporter used for callbacks and an optional log sink.
func (tc *TriggerContext) Bind(r Reporter, sink LogSink) {
	tc.reporter = r
	tc.sink = sink
}

// Success records a successful outcome with an optional message.
func (tc *TriggerContext) Success(msg string) {
	tc.HandleCode = SuccessCode
	tc.HandleMsg = msg
}

// Fail records a failed outcome.
func (tc *TriggerContext) Fail(msg string) {
	tc.FailWithCode(FailCode, msg)
}

// FailWithCode records a failed outcome with a specific handle code.
func (tc *TriggerContext) FailWithCode(code int, msg string) {
	tc.HandleCode = code
	tc.HandleMsg = msg
}

// Log appends a formatted line to the trigger's execution log, if a sink is bound.
func (tc *TriggerContext) Log(format string, args ...any) {
	if tc.sink == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	_ = tc.sink.Append(context.Background(), tc.LogID, line)
}

// FailureCode is the code used when this trigger is reported as failed:
// its own handle code when already non-success, FailCode otherwise.
func (tc *TriggerContext) FailureCode() int {
	if tc.HandleCode != SuccessCode {
		return tc.HandleCode
	}
	return FailCode
}

// CallbackSuccess reports success to the coordinator.
func (tc *TriggerContext) CallbackSuccess() bool {
	return tc.Report(SuccessCode, tc.HandleMsg)
}

// CallbackFailed reports failure using the context's own code and message.
func (tc *TriggerContext) CallbackFailed() bool {
	return tc.Report(tc.FailureCode(), tc.HandleMsg)
}

// CallbackFailedWith reports failure with an explicit message and code.
func (tc *TriggerContext) CallbackFailedWith(msg string, code int) bool {
	return tc.Report(code, msg)
}

// Report emits the single callback for this trigger. It returns false if a
// callback was already emitted or no reporter is bound.
func (tc *TriggerContext) Report(code int, msg string) bool {
	if tc.reporter == nil {
		return false
	}
	if !tc.reported.CompareAndSwap(false, true) {
		return false
	}
	tc.reporter.Report(CallbackRecord{
		LogID:       tc.LogID,
		LogDateTime: time.Now().UnixMilli(),
		HandleCode:  code,
		HandleMsg:   msg,
	})
	return true
}

// Reported reports whether the callback for this trigger has been emitted.
func (tc *TriggerContext) Reported() bool {
	return tc.reported.Load()
}

// Deadline returns the context used to run the handler, bounded by Timeout
// when it is positive.
func (tc *TriggerContext) Deadline(parent context.Context) (context.Context, context.CancelFunc) {
	if tc.Timeout > 0 {
		return context.WithTimeout(parent, tc.Timeout)
	}
	return context.WithCancel(parent)
}
