package core

import "context"

// Handler is a unit of work registered under a name.
//
// Process receives the trigger and returns it (or a replacement) carrying the
// outcome in HandleCode and HandleMsg. A returned error marks the run failed.
// The context is cancelled when the coordinator kills the job or the trigger's
// timeout expires; honoring it is up to the handler.
type Handler interface {
	Process(ctx context.Context, tc *TriggerContext) (*TriggerContext, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, tc *TriggerContext) (*TriggerContext, error)

// Process calls f(ctx, tc).
func (f HandlerFunc) Process(ctx context.Context, tc *TriggerContext) (*TriggerContext, error) {
	return f(ctx, tc)
}

// ExecMode selects how a handler is executed.
type ExecMode int

const (
	// ModeCooperative runs the handler on the executor's shared worker pool.
	// The handler must not block for long.
	ModeCooperative ExecMode = iota
	// ModeThreadPerCall runs every invocation on its own locked OS thread.
	ModeThreadPerCall
)

func (m ExecMode) String() string {
	if m == ModeThreadPerCall {
		return "thread-per-call"
	}
	return "cooperative"
}

// Variant is a handler together with its execution mode.
type Variant struct {
	Handler Handler
	Mode    ExecMode
}

// Cooperative wraps h for execution on the shared worker pool.
func Cooperative(h Handler) Variant {
	return Variant{Handler: h, Mode: ModeCooperative}
}

// ThreadPerCall wraps h for execution on a dedicated thread per invocation.
func ThreadPerCall(h Handler) Variant {
	return Variant{Handler: h, Mode: ModeThreadPerCall}
}
