package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jdziat/xxljob-executor/pkg/config"
	"github.com/jdziat/xxljob-executor/pkg/core"
	"github.com/jdziat/xxljob-executor/pkg/joblog"
	"github.com/jdziat/xxljob-executor/pkg/scheduler"
)

// Scheduler is the subset of the job scheduler the endpoints drive.
type Scheduler interface {
	Submit(ctx context.Context, name string, tc *core.TriggerContext) (scheduler.Outcome, error)
	Kill(ctx context.Context, jobID int64) (int, error)
	JobIdle(ctx context.Context, jobID int64) (bool, error)
	Active(ctx context.Context, logID int64) (bool, error)
}

// LogReader serves execution log fragments for /log.
type LogReader interface {
	Read(ctx context.Context, logID int64, fromLine int) (joblog.Fragment, error)
}

type route struct {
	pattern string
	handler http.Handler
}

// Server serves the coordinator-facing endpoints.
type Server struct {
	listenAddr  string
	accessToken string
	basePath    string
	sched       Scheduler
	logs        LogReader
	logger      *slog.Logger
	tracing     bool
	middleware  func(http.Handler) http.Handler
	extra       []route

	handler http.Handler
	httpSrv *http.Server

	mu sync.Mutex
	ln net.Listener
}

// New creates a server for cfg that submits triggers to sched.
func New(cfg *config.Config, sched Scheduler, opts ...Option) *Server {
	s := &Server{
		listenAddr:  cfg.ListenAddr(),
		accessToken: cfg.AccessToken,
		basePath:    cfg.BasePath,
		sched:       sched,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.handler = s.buildHandler()
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the complete HTTP handler, including h2c support.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST "+s.basePath+"/beat", s.handleBeat)
	api.HandleFunc("POST "+s.basePath+"/idleBeat", s.handleIdleBeat)
	api.HandleFunc("POST "+s.basePath+"/run", s.handleRun)
	api.HandleFunc("POST "+s.basePath+"/kill", s.handleKill)
	api.HandleFunc("POST "+s.basePath+"/log", s.handleLog)

	var h http.Handler = api
	if s.middleware != nil {
		h = s.middleware(h)
	}
	h = s.requireToken(h)
	h = limitBody(h)

	mux := http.NewServeMux()
	mux.Handle("/", h)
	for _, r := range s.extra {
		mux.Handle(r.pattern, r.handler)
	}

	var root http.Handler = s.withRequestID(mux)
	if s.tracing {
		root = otelhttp.NewHandler(root, "xxl-executor",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents))
	}

	return h2c.NewHandler(root, &http2.Server{})
}

// Listen binds the configured listen address. A bind failure is returned
// so construction can fail before anything is registered with the
// coordinator.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("executor server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until Shutdown. It calls Listen if needed and
// returns nil after a clean shutdown.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Unlock()
	return err
}
