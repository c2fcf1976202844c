// Package platform talks to the external order platform's REST API:
// OAuth token lifecycle, paginated order and product listings and
// single-order detail.
package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/ordersync-backend/internal/infrastructure/telemetry"
)

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 16 << 20

// CallLogger records one audit row per platform request
type CallLogger interface {
	LogAPICall(ctx context.Context, call *storage.APICall) error
}

type runIDKey struct{}

// WithRunID tags requests made with ctx as belonging to a sync run
func WithRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) *int64 {
	if id, ok := ctx.Value(runIDKey{}).(int64); ok {
		return &id
	}
	return nil
}

// Response is a fully read platform response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs authenticated GETs against the platform API
type Client struct {
	baseURL string
	http    *http.Client
	calls   CallLogger
	logger  *slog.Logger
}

// NewClient creates a client with a pooled transport. calls may be nil.
func NewClient(cfg config.PlatformConfig, calls CallLogger, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.RequestTimeout.Std()

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		calls:   calls,
		logger:  logger.With(slog.String("client", "platform")),
	}
}

// HTTPClient exposes the underlying client so OAuth grants share the pool
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Get sends one request. A non-nil error means no response was received;
// HTTP error statuses are returned in Response for the caller to classify.
// endpoint is a low-cardinality label used for metrics and the audit log.
func (c *Client) Get(ctx context.Context, accountID int64, endpoint, path string, query url.Values, accessToken string) (*Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "platform.GET "+endpoint)
	defer span.End()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	span.SetAttributes(
		attribute.String("http.method", http.MethodGet),
		attribute.String("http.url", target),
		attribute.Int64("account.id", accountID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	telemetry.PlatformRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	if err != nil {
		telemetry.PlatformRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		telemetry.RecordError(span, err)
		c.audit(ctx, accountID, path, 0, err, elapsed)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		telemetry.PlatformRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		telemetry.RecordError(span, err)
		c.audit(ctx, accountID, path, resp.StatusCode, err, elapsed)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	status := strconv.Itoa(resp.StatusCode)
	telemetry.PlatformRequestsTotal.WithLabelValues(endpoint, status).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var callErr error
	if resp.StatusCode >= 400 {
		callErr = fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
	}
	c.audit(ctx, accountID, path, resp.StatusCode, callErr, elapsed)

	c.logger.Debug("platform request",
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
	)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) audit(ctx context.Context, accountID int64, path string, status int, callErr error, elapsed time.Duration) {
	if c.calls == nil {
		return
	}

	call := &storage.APICall{
		RunID:      runIDFrom(ctx),
		AccountID:  accountID,
		Method:     http.MethodGet,
		Endpoint:   path,
		StatusCode: status,
		DurationMs: elapsed.Milliseconds(),
	}
	if callErr != nil {
		call.Error = callErr.Error()
	}

	// The request context may already be cancelled; the audit row still matters.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.calls.LogAPICall(logCtx, call); err != nil {
		c.logger.Warn("failed to record api call", slog.String("endpoint", path), slog.String("error", err.Error()))
	}
}

const snippetLimit = 200

// snippet shortens an error body for messages, cutting on a rune boundary
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
