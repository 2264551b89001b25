package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

const (
	// BusyMsg is returned by /idleBeat when the job has work in flight.
	BusyMsg = "job thread is running or has trigger queue"
	// AlreadyKilledMsg is returned by /kill when nothing matched the job.
	AlreadyKilledMsg = "job thread already killed"
)

func writeJSON(w http.ResponseWriter, env core.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(env)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &core.ProtocolError{Msg: "empty request body"}
		}
		return &core.ProtocolError{Msg: "malformed request body", Err: err}
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
	writeJSON(w, core.Failure(err.Error()))
}

func (s *Server) handleBeat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, core.Ok(nil))
}

func (s *Server) handleIdleBeat(w http.ResponseWriter, r *http.Request) {
	var p IdleBeatParam
	if err := decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	idle, err := s.sched.JobIdle(r.Context(), p.JobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !idle {
		writeJSON(w, core.Failure(BusyMsg))
		return
	}
	writeJSON(w, core.Ok(nil))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var p RunParam
	if err := decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	if p.ExecutorHandler == "" {
		s.fail(w, r, fmt.Errorf("%w, log_id:%d", core.ErrEmptyExecutorHandler, p.LogID))
		return
	}

	tc := p.TriggerContext()
	out, err := s.sched.Submit(r.Context(), p.ExecutorHandler, tc)
	if err != nil {
		if errors.Is(err, core.ErrHandlerNotFound) {
			s.fail(w, r, fmt.Errorf("job handler [%s] not found, log_id:%d", p.ExecutorHandler, p.LogID))
			return
		}
		s.fail(w, r, err)
		return
	}

	s.logger.Info("trigger accepted",
		"handler", p.ExecutorHandler,
		"job_id", p.JobID,
		"log_id", p.LogID,
		"outcome", out.String(),
		"request_id", RequestID(r.Context()))
	writeJSON(w, core.Ok(nil))
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	var p KillParam
	if err := decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.sched.Kill(r.Context(), p.JobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	env := core.Ok(nil)
	if n == 0 {
		env.Msg = AlreadyKilledMsg
	}
	writeJSON(w, env)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, core.Ok(nil))
		return
	}
	var p LogParam
	if err := decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}

	frag, err := s.logs.Read(r.Context(), p.LogID, p.FromLineNum)
	if err != nil {
		s.fail(w, r, fmt.Errorf("read log %d: %w", p.LogID, err))
		return
	}
	active, err := s.sched.Active(r.Context(), p.LogID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	frag.IsEnd = !active
	writeJSON(w, core.Ok(frag))
}
