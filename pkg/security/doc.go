// Package security provides validation, sanitization, and limits for the executor.
//
// This package includes:
//   - Input validation for handler names
//   - Handle message sanitization before messages leave the process
//   - Constant-time access token comparison
//   - Clamping functions for worker pool size and log retention
//
// Most users should import the root package github.com/jdziat/xxljob-executor
// which re-exports these functions.
package security
