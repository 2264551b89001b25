// Package security provides validation, sanitization, and limits for the executor.
package security

import (
	"crypto/subtle"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

// Security limits and configuration
const (
	// MaxHandlerNameLength is the maximum length for handler names
	MaxHandlerNameLength = 255

	// MaxHandleMsgLength is the maximum length of a handle message sent to the coordinator
	MaxHandleMsgLength = 4096

	// MaxWorkerPoolSize is the hard limit for the cooperative worker pool
	MaxWorkerPoolSize = 256

	// MaxLogRetentionDays is the hard limit for execution log retention
	MaxLogRetentionDays = 3650

	// MaxRequestBodySize is the maximum accepted inbound request body (1MB)
	MaxRequestBodySize = 1 << 20
)

// validHandlerName matches alphanumeric, hyphens, underscores, and dots
var validHandlerName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateHandlerName validates a handler name
func ValidateHandlerName(name string) error {
	if name == "" {
		return core.ErrInvalidHandlerName
	}
	if len(name) > MaxHandlerNameLength {
		return core.ErrHandlerNameTooLong
	}
	if !validHandlerName.MatchString(name) {
		return core.ErrInvalidHandlerName
	}
	return nil
}

// SanitizeHandleMsg strips control characters and truncates handle messages
func SanitizeHandleMsg(msg string) string {
	if msg == "" {
		return ""
	}

	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxHandleMsgLength {
		runes := []rune(result)
		result = string(runes[:MaxHandleMsgLength-3]) + "..."
	}

	return result
}

// TokenMatches reports whether the presented token satisfies the configured one.
// An empty configured token accepts every request.
func TokenMatches(configured, presented string) bool {
	if configured == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// ClampWorkerPoolSize ensures the pool size is within limits
func ClampWorkerPoolSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkerPoolSize {
		return MaxWorkerPoolSize
	}
	return n
}

// ClampLogRetentionDays ensures retention is within limits. Zero disables pruning.
func ClampLogRetentionDays(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxLogRetentionDays {
		return MaxLogRetentionDays
	}
	return n
}
