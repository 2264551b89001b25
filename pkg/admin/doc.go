// Package admin implements the executor's channel to the coordinator.
//
// This package includes:
//   - Client: JSON-over-HTTP calls (registry, registryRemove, callback) fanned
//     out across the configured coordinator addresses, first success wins
//   - Channel: the lifecycle around the client. It re-registers on a fixed
//     interval and batches completion callbacks. Drain deregisters while
//     callbacks keep flowing; Stop makes the last delivery attempt
//
// Most users should import the root package github.com/jdziat/xxljob-executor.
package admin
