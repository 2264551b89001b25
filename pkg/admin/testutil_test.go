package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jdziat/xxljob-executor/pkg/config"
	"github.com/jdziat/xxljob-executor/pkg/core"
)

type capturedRequest struct {
	Path  string
	Token string
	Agent string
	Body  []byte
}

// fakeCoordinator records every call and answers with a configurable envelope code.
type fakeCoordinator struct {
	*httptest.Server

	mu       sync.Mutex
	requests []capturedRequest
	code     int
}

func newFakeCoordinator(t *testing.T, code int) *fakeCoordinator {
	t.Helper()
	fc := &fakeCoordinator{code: code}
	fc.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fc.mu.Lock()
		fc.requests = append(fc.requests, capturedRequest{
			Path:  r.URL.Path,
			Token: r.Header.Get(core.AccessTokenHeader),
			Agent: r.Header.Get("User-Agent"),
			Body:  body,
		})
		code := fc.code
		fc.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(core.Envelope{Code: code, Msg: "fake"})
	}))
	t.Cleanup(fc.Close)
	return fc
}

func (fc *fakeCoordinator) setCode(code int) {
	fc.mu.Lock()
	fc.code = code
	fc.mu.Unlock()
}

func (fc *fakeCoordinator) calls(pathSuffix string) []capturedRequest {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var out []capturedRequest
	for _, r := range fc.requests {
		if strings.HasSuffix(r.Path, pathSuffix) {
			out = append(out, r)
		}
	}
	return out
}

// unreachableAddr returns the address of a server that has been shut down.
func unreachableAddr(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	return addr
}

func testConfig(t *testing.T, addrs string, token string) *config.Config {
	t.Helper()
	cfg, err := config.New(config.Config{
		AdminAddresses: addrs,
		AccessToken:    token,
		AppName:        "executor-sample",
		IP:             "10.0.0.9",
		Port:           9999,
	})
	require.NoError(t, err)
	return cfg
}
