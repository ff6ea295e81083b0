// Package api is the HTTP client for the backend. It attaches the bearer
// token from secure storage on every request and reports 401s to an
// unauthorized handler injected at construction, so the handler is wired
// before the first request can ever be issued.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"billpoint/client/internal/config"
	"billpoint/client/internal/store"
)

// UnauthorizedHandler is invoked whenever any request receives a 401.
// Concurrent requests may each invoke it; it must tolerate repeat calls.
type UnauthorizedHandler func()

// Client executes JSON requests against the backend base URL.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	secure         store.Secure
	onUnauthorized UnauthorizedHandler
	log            *zap.Logger

	tracer       trace.Tracer
	requests     metric.Int64Counter
	unauthorized metric.Int64Counter
}

// New returns a Client. onUnauthorized may be nil (401s then only clear the
// stored access token). No retries happen at this layer.
func New(cfg *config.Config, secure store.Secure, onUnauthorized UnauthorizedHandler, log *zap.Logger) *Client {
	meter := otel.Meter("billpoint/client/api")
	requests, _ := meter.Int64Counter("api.requests",
		metric.WithDescription("Outgoing backend requests by method and status."))
	unauthorizedC, _ := meter.Int64Counter("api.unauthorized",
		metric.WithDescription("Requests that came back 401."))
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.APIBaseURL, "/"),
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeoutDuration()},
		secure:         secure,
		onUnauthorized: onUnauthorized,
		log:            log,
		tracer:         otel.Tracer("billpoint/client/api"),
		requests:       requests,
		unauthorized:   unauthorizedC,
	}
}

// Do executes method path with an optional JSON body and returns the raw
// response body. Non-2xx statuses return *Error; transport failures return a
// wrapped error with no status.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer span.End()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("x-request-id", uuid.New().String())

	// Token comes from secure storage at request time, never cached in memory.
	if tok, err := c.secure.Get(ctx, store.KeyAccessToken); err == nil && len(tok) > 0 {
		req.Header.Set("Authorization", "Bearer "+string(tok))
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("api: read access token: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("status", resp.StatusCode),
	))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.unauthorized.Add(ctx, 1)
		// Token is gone server-side; drop it locally before telling anyone.
		if err := c.secure.Delete(ctx, store.KeyAccessToken); err != nil {
			c.log.Warn("clear access token", zap.Error(err))
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode, Message: messageFrom(raw, resp.StatusCode)}
		span.SetStatus(codes.Error, apiErr.Message)
		c.log.Warn("request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}
	return raw, nil
}

// DoJSON executes Do and unmarshals the response body into out when out is
// non-nil and the body is non-empty.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

// Get fetches path and returns the raw body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post sends body to path and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, body, out)
}

// Put sends body to path and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPut, path, body, out)
}

// Patch sends body to path and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPatch, path, body, out)
}

// Delete issues a DELETE to path and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodDelete, path, nil, out)
}

// messageFrom extracts a server-provided {"message": ...} from raw, falling
// back to the standard status text.
func messageFrom(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return http.StatusText(status)
}
