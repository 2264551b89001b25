package executor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executor "github.com/jdziat/xxljob-executor"
	"github.com/jdziat/xxljob-executor/pkg/config"
)

// coordinator is a minimal fake of the scheduling service.
type coordinator struct {
	*httptest.Server

	mu        sync.Mutex
	calls     map[string]int
	callbacks []executor.CallbackRecord
}

func newCoordinator(t *testing.T) *coordinator {
	t.Helper()
	c := &coordinator{calls: map[string]int{}}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		path := r.URL.Path[strings.LastIndex(r.URL.Path, "/api/"):]

		c.mu.Lock()
		c.calls[path]++
		if path == "/api/callback" {
			var recs []executor.CallbackRecord
			_ = json.Unmarshal(body, &recs)
			c.callbacks = append(c.callbacks, recs...)
		}
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *coordinator) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

func (c *coordinator) callbackFor(logID int64) (executor.CallbackRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.callbacks {
		if rec.LogID == logID {
			return rec, true
		}
	}
	return executor.CallbackRecord{}, false
}

func newTestConfig(t *testing.T, adminURL string, port int) *executor.Config {
	t.Helper()
	cfg, err := executor.NewConfig(executor.Config{
		AdminAddresses: adminURL + "/xxl-job-admin",
		AppName:        "executor-sample",
		IP:             "127.0.0.1",
		Port:           port,
	})
	require.NoError(t, err)
	return cfg
}

func postRun(t *testing.T, port int, body string) executor.Envelope {
	t.Helper()
	url := fmt.Sprintf("http://127.0.0.1:%d/run", port)
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var env executor.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestNew_NilConfig(t *testing.T) {
	_, err := executor.New(nil)
	assert.ErrorIs(t, err, executor.ErrConfig)
}

func TestNewConfig_EmptyAddresses(t *testing.T) {
	_, err := executor.NewConfig(executor.Config{AdminAddresses: " , "})
	assert.ErrorIs(t, err, executor.ErrConfig)
}

func TestClient_EndToEnd(t *testing.T) {
	coord := newCoordinator(t)
	port := config.AvailablePort(23000)
	require.NotZero(t, port)

	reg := prometheus.NewRegistry()
	client, err := executor.New(newTestConfig(t, coord.URL, port),
		executor.WithHeartbeatInterval(50*time.Millisecond),
		executor.WithMetrics(reg),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, client.ID())
	assert.NotNil(t, client.Addr())
	assert.Equal(t, "running", client.AdminState().String())

	require.NoError(t, client.Register("demoJobHandler", executor.Cooperative(executor.HandlerFunc(
		func(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
			tc.Success("hello " + tc.Param)
			return tc, nil
		}))))

	require.Eventually(t, func() bool { return coord.count("/api/registry") >= 2 },
		2*time.Second, 10*time.Millisecond, "heartbeat should re-register")

	env := postRun(t, port, `{"jobId":1,"logId":501,"executorHandler":"demoJobHandler","executorParams":"world","executorBlockStrategy":"SERIAL_EXECUTION"}`)
	require.Equal(t, executor.SuccessCode, env.Code)

	require.Eventually(t, func() bool {
		_, ok := coord.callbackFor(501)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	rec, _ := coord.callbackFor(501)
	assert.Equal(t, executor.SuccessCode, rec.HandleCode)
	assert.Equal(t, "hello world", rec.HandleMsg)

	env = postRun(t, port, `{"jobId":1,"logId":502,"executorHandler":"missing"}`)
	assert.Equal(t, executor.FailCode, env.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Stop(ctx))
	assert.Equal(t, 1, coord.count("/api/registryRemove"))
	assert.Equal(t, "stopped", client.AdminState().String())

	registered := coord.count("/api/registry")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, registered, coord.count("/api/registry"), "no heartbeat after stop")

	select {
	case <-client.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	require.NoError(t, client.Stop(ctx))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["xxl_executor_admin_calls_total"])
}

func TestClient_StopReportsRunningAndQueuedTriggers(t *testing.T) {
	coord := newCoordinator(t)
	port := config.AvailablePort(23400)
	require.NotZero(t, port)

	client, err := executor.New(newTestConfig(t, coord.URL, port))
	require.NoError(t, err)

	started := make(chan int64, 4)
	release := make(chan struct{})
	require.NoError(t, client.Register("gated", executor.Cooperative(executor.HandlerFunc(
		func(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
			started <- tc.LogID
			<-release
			tc.Success("finished")
			return tc, nil
		}))))

	env := postRun(t, port, `{"jobId":9,"logId":1,"executorHandler":"gated","executorBlockStrategy":"SERIAL_EXECUTION"}`)
	require.Equal(t, executor.SuccessCode, env.Code)
	select {
	case id := <-started:
		require.Equal(t, int64(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}
	env = postRun(t, port, `{"jobId":9,"logId":2,"executorHandler":"gated","executorBlockStrategy":"SERIAL_EXECUTION"}`)
	require.Equal(t, executor.SuccessCode, env.Code)

	st, err := client.Status(context.Background(), "gated")
	require.NoError(t, err)
	require.Equal(t, []int64{2}, st.Queued)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Stop(ctx))

	running, ok := coord.callbackFor(1)
	require.True(t, ok, "in-flight run must be reported")
	assert.Equal(t, executor.SuccessCode, running.HandleCode)
	assert.Equal(t, "finished", running.HandleMsg)

	queued, ok := coord.callbackFor(2)
	require.True(t, ok, "queued trigger must be reported")
	assert.Equal(t, executor.FailCode, queued.HandleCode)
	assert.Equal(t, executor.StoppingMsg, queued.HandleMsg)

	assert.Equal(t, 1, coord.count("/api/registryRemove"))
	select {
	case id := <-started:
		t.Fatalf("queued trigger %d ran during shutdown", id)
	default:
	}
}

func TestClient_StopCutsShortRunsAtDeadline(t *testing.T) {
	coord := newCoordinator(t)
	port := config.AvailablePort(23500)
	require.NotZero(t, port)

	client, err := executor.New(newTestConfig(t, coord.URL, port))
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	t.Cleanup(func() { close(unblock) })
	require.NoError(t, client.Register("stubborn", executor.ThreadPerCall(executor.HandlerFunc(
		func(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
			started <- struct{}{}
			<-unblock
			return tc, nil
		}))))

	env := postRun(t, port, `{"jobId":3,"logId":30,"executorHandler":"stubborn"}`)
	require.Equal(t, executor.SuccessCode, env.Code)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = client.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rec, ok := coord.callbackFor(30)
	require.True(t, ok, "abandoned run must be reported")
	assert.Equal(t, executor.FailCode, rec.HandleCode)
	assert.Equal(t, executor.StoppingMsg, rec.HandleMsg)
	assert.Equal(t, 1, coord.count("/api/registryRemove"))
}

func TestClient_LogStore(t *testing.T) {
	coord := newCoordinator(t)
	port := config.AvailablePort(24000)
	require.NotZero(t, port)

	store, err := executor.OpenLogStore(":memory:")
	require.NoError(t, err)

	client, err := executor.New(newTestConfig(t, coord.URL, port), executor.WithLogStore(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Stop(context.Background()) })

	require.NoError(t, client.Register("logging", executor.ThreadPerCall(executor.HandlerFunc(
		func(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
			tc.Log("shard %d of %d", tc.ShardIndex, tc.ShardTotal)
			return tc, nil
		}))))

	env := postRun(t, port, `{"jobId":2,"logId":601,"executorHandler":"logging"}`)
	require.Equal(t, executor.SuccessCode, env.Code)
	require.Eventually(t, func() bool {
		_, ok := coord.callbackFor(601)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	url := fmt.Sprintf("http://127.0.0.1:%d/log", port)
	resp, err := http.Post(url, "application/json", strings.NewReader(`{"logId":601,"fromLineNum":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Code int `json:"code"`
		Data struct {
			ToLineNum  int    `json:"toLineNum"`
			LogContent string `json:"logContent"`
			IsEnd      bool   `json:"isEnd"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, executor.SuccessCode, out.Code)
	assert.Equal(t, 1, out.Data.ToLineNum)
	assert.Equal(t, "shard 0 of 1\n", out.Data.LogContent)
	assert.True(t, out.Data.IsEnd)
}

func TestNew_PortInUse(t *testing.T) {
	coord := newCoordinator(t)
	port := config.AvailablePort(25000)
	require.NotZero(t, port)

	first, err := executor.New(newTestConfig(t, coord.URL, port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	_, err = executor.New(newTestConfig(t, coord.URL, port))
	assert.Error(t, err)
}

func TestClient_RegisterValidation(t *testing.T) {
	coord := newCoordinator(t)
	port := config.AvailablePort(26000)
	require.NotZero(t, port)

	client, err := executor.New(newTestConfig(t, coord.URL, port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Stop(context.Background()) })

	assert.ErrorIs(t, client.Register("bad name!", executor.Cooperative(executor.HandlerFunc(nil))), executor.ErrInvalidHandlerName)
	assert.ErrorIs(t, client.Register("ok", executor.Variant{}), executor.ErrNilHandler)

	_, err = client.Status(context.Background(), "ok")
	assert.ErrorIs(t, err, executor.ErrHandlerNotFound)
}
