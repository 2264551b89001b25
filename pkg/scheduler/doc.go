// Package scheduler provides the executor's job registry and dispatcher.
//
// A single goroutine owns every handler registration. Registration, submission,
// completion, kill and idle queries all reach it as closures over a channel, so
// registry state needs no locks. Handlers run either on a fixed pool of worker
// goroutines (cooperative) or on a dedicated locked OS thread per call; both
// report back to the owner goroutine.
//
// Per handler name the state machine is Idle -> Running -> Idle. While Running,
// SERIAL_EXECUTION triggers wait in a bounded FIFO, DISCARD_LATER triggers are
// rejected, and COVER_EARLY or unknown strategies dispatch concurrently.
//
// Drain winds the scheduler down: queued triggers fail with a callback and
// in-flight runs are given until a deadline to finish.
package scheduler
