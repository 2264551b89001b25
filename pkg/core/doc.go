// Package core provides the fundamental types and interfaces for the executor.
//
// This package contains:
//   - The Handler contract and its two execution variants
//   - TriggerContext, the value handed to a handler for one trigger
//   - Block strategy and glue type enums as they appear on the wire
//   - CallbackRecord, the completion report sent to the coordinator
//   - Event types for runtime monitoring
//   - Error types shared by all packages
//
// Most users should import the root package github.com/jdziat/xxljob-executor
// instead of this package directly.
package core
