package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrConfig               = errors.New("executor: invalid configuration")
	ErrHandlerNotFound      = errors.New("executor: no handler registered")
	ErrInvalidHandlerName   = errors.New("executor: invalid handler name")
	ErrHandlerNameTooLong   = errors.New("executor: handler name too long")
	ErrNilHandler           = errors.New("executor: handler cannot be nil")
	ErrEmptyExecutorHandler = errors.New("executor: executor handler is empty")
	ErrSchedulerStopped     = errors.New("executor: scheduler stopped")
	ErrChannelStopped       = errors.New("executor: admin channel stopped")
	ErrAccessToken          = errors.New("access-token is error")
)

// ConfigError reports which configuration field failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("executor: invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// DispatchError indicates the runtime could not deliver a trigger to its
// handler or could not collect the handler's result.
type DispatchError struct {
	Handler string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("executor: dispatch %q: %v", e.Handler, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// HandlerError wraps a failure reported by the handler itself, including
// recovered panics.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %q: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// TransportError means every configured coordinator address failed for one call.
type TransportError struct {
	Op     string
	Errors []error
}

func (e *TransportError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("executor: %s: no coordinator address available", e.Op)
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("executor: %s failed on all addresses: %s", e.Op, strings.Join(msgs, "; "))
}

func (e *TransportError) Unwrap() []error {
	return e.Errors
}

// ProtocolError indicates a malformed inbound or outbound payload.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "executor: protocol: " + e.Msg
	}
	return fmt.Sprintf("executor: protocol: %s: %v", e.Msg, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
