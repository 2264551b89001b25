package admin

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jdziat/xxljob-executor/pkg/config"
	"github.com/jdziat/xxljob-executor/pkg/core"
	"github.com/jdziat/xxljob-executor/pkg/security"
)

// Coordinator API paths, relative to each configured address.
const (
	PathRegistry       = "/api/registry"
	PathRegistryRemove = "/api/registryRemove"
	PathCallback       = "/api/callback"
)

// RegistryGroup is the group every executor registers under.
const RegistryGroup = "EXECUTOR"

// UserAgent identifies this runtime to the coordinator.
var UserAgent = "xxljob-executor-go/" + core.Version

// maxResponseSize bounds how much of a coordinator response is read.
const maxResponseSize = 1 << 20

// RegistryParam is the registration record posted to the coordinator.
type RegistryParam struct {
	RegistryGroup string `json:"registryGroup"`
	RegistryKey   string `json:"registryKey"`
	RegistryValue string `json:"registryValue"`
}

// Client talks to the coordinator addresses of one executor configuration.
// It is safe for concurrent use.
type Client struct {
	cfg     *config.Config
	addrs   []string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
	obs     Observer
}

// NewClient creates a coordinator client. The address list must be non-empty.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, &core.ConfigError{Field: "config", Reason: "is nil"}
	}
	addrs := cfg.Addresses()
	if len(addrs) == 0 {
		return nil, &core.ConfigError{Field: "admin_addresses", Reason: "is empty"}
	}
	o := newOptions(opts)
	return &Client{
		cfg:     cfg,
		addrs:   addrs,
		http:    buildHTTPClient(cfg, o),
		timeout: o.requestTimeout,
		logger:  o.logger,
		obs:     o.observer,
	}, nil
}

func buildHTTPClient(cfg *config.Config, o *options) *http.Client {
	if o.httpClient != nil {
		return o.httpClient
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	var rt http.RoundTripper = transport
	if o.tracing {
		rt = otelhttp.NewTransport(rt)
	}
	return &http.Client{Transport: rt}
}

// Addresses returns the coordinator addresses in the order they are tried.
func (c *Client) Addresses() []string {
	out := make([]string, len(c.addrs))
	copy(out, c.addrs)
	return out
}

// RegistryParam builds this executor's registration record.
func (c *Client) RegistryParam() RegistryParam {
	return RegistryParam{
		RegistryGroup: RegistryGroup,
		RegistryKey:   c.cfg.AppName,
		RegistryValue: c.cfg.RegistryValue(),
	}
}

// Registry announces this executor to the coordinator.
func (c *Client) Registry(ctx context.Context) error {
	return c.post(ctx, "registry", PathRegistry, c.RegistryParam())
}

// RegistryRemove withdraws this executor's registration.
func (c *Client) RegistryRemove(ctx context.Context) error {
	return c.post(ctx, "registryRemove", PathRegistryRemove, c.RegistryParam())
}

// Callback delivers a batch of completion records.
func (c *Client) Callback(ctx context.Context, records []core.CallbackRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := make([]core.CallbackRecord, len(records))
	for i, rec := range records {
		rec.HandleMsg = security.SanitizeHandleMsg(rec.HandleMsg)
		batch[i] = rec
	}
	return c.post(ctx, "callback", PathCallback, batch)
}

// post sends body to each address in order and stops at the first success
// envelope. Each address gets its own timeout; failures fall through to the
// next address without retrying.
func (c *Client) post(ctx context.Context, op, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &core.ProtocolError{Msg: "encode " + op, Err: err}
	}

	var errs []error
	for _, addr := range c.addrs {
		err := c.postOne(ctx, URLFor(addr, path), payload)
		if err == nil {
			c.logger.Debug("coordinator call succeeded", "op", op, "addr", addr)
			c.observe(op, nil)
			return nil
		}
		c.logger.Debug("coordinator call failed", "op", op, "addr", addr, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		if ctx.Err() != nil {
			break
		}
	}
	terr := &core.TransportError{Op: op, Errors: errs}
	c.observe(op, terr)
	return terr
}

func (c *Client) postOne(ctx context.Context, url string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if c.cfg.AccessToken != "" {
		req.Header.Set(core.AccessTokenHeader, c.cfg.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %s", resp.Status)
	}

	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &core.ProtocolError{Msg: "decode envelope", Err: err}
	}
	if !env.IsSuccess() {
		return fmt.Errorf("coordinator rejected call: code=%d msg=%s", env.Code, env.Msg)
	}
	return nil
}

func (c *Client) observe(op string, err error) {
	if c.obs != nil {
		c.obs.ObserveAdminCall(op, err)
	}
}

// URLFor joins a coordinator address and an API path. Addresses without a
// scheme are treated as plain HTTP.
func URLFor(addr, path string) string {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + path
}
