// Package syncclient issues the dashboard's sync requests. It is strictly
// fire-and-forget: every operation reports a Result instead of returning an
// error, nothing is retried, and nothing here may block or disturb the host
// application.
package syncclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/beacon/internal/config"
	"github.com/thebtf/beacon/internal/transform"
)

// Result is the outcome of one sync operation. Error distinguishes the two
// failure kinds by shape: remote rejections read "<status>: <body>", while
// transport failures carry the raw error text.
type Result struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// sessionResponse is the dashboard's success body for session upserts.
type sessionResponse struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId"`
}

// Client talks to the dashboard's sync endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	trace      *Trace

	requests metric.Int64Counter
	errors   metric.Int64Counter

	attempts atomic.Int64
	failures atomic.Int64
}

// New builds a client from the sync configuration. When debug is on, every
// request/response/error is appended to the local trace file.
func New(cfg config.SyncConfig) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		// Timeouts are the transport's concern; this layer enforces none.
		httpClient: &http.Client{},
	}
	if cfg.Debug {
		c.trace = NewTrace(config.TracePath())
	}

	meter := otel.Meter("github.com/thebtf/beacon/internal/syncclient")
	c.requests, _ = meter.Int64Counter("beacon.sync.requests",
		metric.WithDescription("Sync requests issued to the dashboard"))
	c.errors, _ = meter.Int64Counter("beacon.sync.errors",
		metric.WithDescription("Sync requests that failed"))

	return c
}

// SyncSession upserts one session.
func (c *Client) SyncSession(ctx context.Context, payload transform.SessionPayload) Result {
	return c.post(ctx, "/sync/session", payload)
}

// SyncMessage upserts one message.
func (c *Client) SyncMessage(ctx context.Context, payload transform.MessagePayload) Result {
	return c.post(ctx, "/sync/message", payload)
}

// batchBody is the body of POST /sync/batch.
type batchBody struct {
	Sessions []transform.SessionPayload `json:"sessions"`
	Messages []transform.MessagePayload `json:"messages"`
}

// SyncBatch upserts sessions and messages in one request. Used only when
// replaying a fork's history.
func (c *Client) SyncBatch(ctx context.Context, sessions []transform.SessionPayload, messages []transform.MessagePayload) Result {
	if sessions == nil {
		sessions = []transform.SessionPayload{}
	}
	if messages == nil {
		messages = []transform.MessagePayload{}
	}
	return c.post(ctx, "/sync/batch", batchBody{Sessions: sessions, Messages: messages})
}

// TestConnection probes the dashboard's liveness path. The request is
// unauthenticated; any 2xx means reachable.
func (c *Client) TestConnection(ctx context.Context) Result {
	url := c.baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Error: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.trace.Error(http.MethodGet, "/health", err)
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	c.trace.Response(http.MethodGet, "/health", resp.StatusCode, string(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Error: fmt.Sprintf("%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return Result{Success: true}
}

// Stats returns the cumulative attempt and failure counts for this client.
func (c *Client) Stats() (attempts, failures int64) {
	return c.attempts.Load(), c.failures.Load()
}

// post sends one payload verbatim and interprets the response. Non-2xx and
// transport errors both land in Result.Error; neither is retried.
func (c *Client) post(ctx context.Context, path string, payload any) Result {
	c.attempts.Add(1)
	c.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))

	body, err := json.Marshal(payload)
	if err != nil {
		return c.failure(ctx, path, err.Error())
	}
	c.trace.Request(http.MethodPost, path, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return c.failure(ctx, path, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.trace.Error(http.MethodPost, path, err)
		return c.failure(ctx, path, err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	c.trace.Response(http.MethodPost, path, resp.StatusCode, string(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.failure(ctx, path, fmt.Sprintf("%d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	result := Result{Success: true}
	var parsed sessionResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		result.SessionID = parsed.SessionID
	}
	return result
}

func (c *Client) failure(ctx context.Context, path, message string) Result {
	c.failures.Add(1)
	c.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
	log.Debug().Str("path", path).Str("error", message).Msg("Sync request failed")
	return Result{Error: message}
}
