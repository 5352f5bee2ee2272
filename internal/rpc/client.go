package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brewgator/block-explorer/internal/metrics"
)

const (
	// maxResponseBytes caps a single reply; a verbosity-2 block is a few MB.
	maxResponseBytes = 64 << 20
	maxErrorBody     = 512
)

// Caller issues a single JSON-RPC call and returns the raw result.
type Caller interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// Config holds the fixed endpoint and credentials the client is built with.
type Config struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration
	// RequestsPerMinute bounds outbound calls; zero disables limiting.
	RequestsPerMinute int
}

// Client is a Bitcoin Core JSON-RPC client over HTTP POST with Basic auth.
// Each call is a single attempt: there is no retry.
type Client struct {
	endpoint   string
	user       string
	password   string
	httpClient *http.Client
	limiter    *RateLimiter
	metrics    *metrics.Store
	logger     *zap.SugaredLogger
}

// NewClient creates a client for cfg. store may be nil.
func NewClient(cfg Config, logger *zap.SugaredLogger, store *metrics.Store) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &Client{
		endpoint: strings.TrimRight(cfg.URL, "/"),
		user:     cfg.User,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: store,
		logger:  logger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
	}
	return c
}

// WithWallet returns a client whose calls are routed to the named wallet
// (Bitcoin Core's /wallet/<name> endpoint). The limiter is shared.
func (c *Client) WithWallet(name string) *Client {
	scoped := *c
	scoped.endpoint = c.endpoint + "/wallet/" + url.PathEscape(name)
	return &scoped
}

// Endpoint returns the URL calls are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close stops the rate limiter. Call it on the root client only.
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}

// Call posts one request envelope and returns the envelope's result.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.call(ctx, method, params)

	status := metrics.StatusOK
	if err != nil {
		status = string(Classify(err))
		c.logger.Debugw("rpc call failed", "method", method, "elapsed", time.Since(start), "error", err)
	} else {
		c.logger.Debugw("rpc call", "method", method, "elapsed", time.Since(start), "bytes", len(result))
	}
	c.metrics.ObserveRPC(method, status, time.Since(start))

	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, Err: err}
		}
	}

	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(Request{
		JSONRPC: "1.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Method: method, StatusCode: resp.StatusCode, Err: err}
	}

	var envelope Response
	decodeErr := json.Unmarshal(raw, &envelope)

	// Core replies to most RPC errors with HTTP 500 and a full envelope, so the
	// envelope takes precedence over the status code when it decodes.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && envelope.Error != nil {
			envelope.Error.Method = method
			return nil, envelope.Error
		}
		return nil, &TransportError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       errorBody(raw),
		}
	}

	if decodeErr != nil {
		return nil, &DecodeError{Method: method, Err: decodeErr}
	}
	if envelope.Error != nil {
		envelope.Error.Method = method
		return nil, envelope.Error
	}

	return envelope.Result, nil
}

func errorBody(raw []byte) string {
	body := strings.TrimSpace(string(raw))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return body
}
