package server

import (
	"log/slog"
	"net/http"
)

// Option configures a Server.
type Option interface {
	apply(*Server)
}

type optionFunc func(*Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Server) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithLogReader enables /log responses backed by r. Without one, /log
// returns an empty success.
func WithLogReader(r LogReader) Option {
	return optionFunc(func(s *Server) {
		s.logs = r
	})
}

// WithTracing wraps the handler with OpenTelemetry HTTP instrumentation.
func WithTracing(enabled bool) Option {
	return optionFunc(func(s *Server) {
		s.tracing = enabled
	})
}

// WithMiddleware wraps the endpoint handler, inside the access-token check.
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(s *Server) {
		s.middleware = mw
	})
}

// WithExtraRoute mounts an additional handler, such as /metrics, outside the
// base path and the access-token check.
func WithExtraRoute(pattern string, h http.Handler) Option {
	return optionFunc(func(s *Server) {
		s.extra = append(s.extra, route{pattern: pattern, handler: h})
	})
}
