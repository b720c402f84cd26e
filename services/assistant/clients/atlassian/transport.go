// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package atlassian is the shared REST transport for the Jira, Bitbucket and
// Confluence clients: basic auth, JSON decoding, typed status errors,
// tracing and fetch metrics.
package atlassian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/projectassist/services/llm"
	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "projectassist.clients"

const (
	// DefaultTimeout is the HTTP client timeout for upstream calls.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 8 << 20
)

var (
	// ErrNotFound is matched by a StatusError with status 404.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is matched by a StatusError with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "projectassist",
			Subsystem: "upstream",
			Name:      "fetches_total",
			Help:      "Upstream REST calls by service, operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "projectassist",
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream REST call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
)

// StatusError is a non-2xx upstream response. Body is redacted.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Is lets errors.Is match ErrNotFound and ErrUnauthorized.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Credentials authenticate with HTTP basic auth (account email or user name
// plus API token or app password). An empty Username with a Token sends a
// bearer token instead. NewTransport seals the token in an encrypted
// enclave; it is only decrypted while a request is being signed.
type Credentials struct {
	Username string
	Token    string
}

// Transport performs authenticated GET requests against one service.
//
// Thread Safety: Transport is safe for concurrent use.
type Transport struct {
	service    string
	baseURL    *url.URL
	username   string
	token      *memguard.Enclave
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport creates a Transport.
//
// Inputs:
//   - service: Short service name used in errors, spans and metrics.
//   - baseURL: Absolute base URL; request paths are appended to its path.
//   - creds: Authentication; zero value sends no Authorization header.
//
// Outputs:
//   - *Transport: The transport.
//   - error: Non-nil if baseURL is not an absolute http(s) URL.
func NewTransport(service, baseURL string, creds Credentials, opts ...Option) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: parsing base URL: %w", service, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s: base URL must be an absolute http(s) URL, got %q", service, baseURL)
	}
	t := &Transport{
		service:    service,
		baseURL:    u,
		username:   creds.Username,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	if creds.Token != "" {
		t.token = memguard.NewEnclave([]byte(creds.Token))
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Service is the service name given to NewTransport.
func (t *Transport) Service() string { return t.service }

// BaseURL is the configured base URL.
func (t *Transport) BaseURL() string { return t.baseURL.String() }

// GetJSON fetches path with query parameters and decodes the JSON body
// into out.
//
// Description:
//
//	Non-2xx responses return *StatusError, which matches ErrNotFound or
//	ErrUnauthorized with errors.Is. Every call is traced as
//	"<service>.<operation>" and counted by outcome.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - operation: Short operation name for spans and metrics.
//   - path: Path relative to the base URL, already escaped.
//   - query: Query parameters. May be nil.
//   - out: Pointer to decode into.
func (t *Transport) GetJSON(ctx context.Context, operation, path string, query url.Values, out any) error {
	return t.observe(ctx, operation, path, func(ctx context.Context) error {
		body, err := t.get(ctx, path, query, "application/json")
		if err != nil || out == nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: parsing response JSON: %w", t.service, err)
		}
		return nil
	})
}

// GetText fetches path and returns the body as text, for endpoints such as
// diffs that do not answer in JSON. Errors match GetJSON's.
func (t *Transport) GetText(ctx context.Context, operation, path string, query url.Values) (string, error) {
	var text string
	err := t.observe(ctx, operation, path, func(ctx context.Context) error {
		body, err := t.get(ctx, path, query, "text/plain")
		text = string(body)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// observe traces, times, counts and logs one upstream call.
func (t *Transport) observe(ctx context.Context, operation, path string, call func(context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, t.service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("service", t.service),
			attribute.String("path", path),
		),
	)
	defer span.End()

	start := time.Now()
	err := call(ctx)
	fetchDuration.WithLabelValues(t.service, operation).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		t.logger.Warn("upstream request failed",
			slog.String("service", t.service),
			slog.String("operation", operation),
			slog.String("outcome", outcome),
			slog.String("error", llm.SafeLogString(err.Error())),
		)
	}
	fetchesTotal.WithLabelValues(t.service, operation, outcome).Inc()
	return err
}

func (t *Transport) get(ctx context.Context, path string, query url.Values, accept string) ([]byte, error) {
	u := *t.baseURL
	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: creating HTTP request: %w", t.service, err)
	}
	req.Header.Set("Accept", accept)
	if err := t.authorize(req); err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: HTTP request failed: %w", t.service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response body (status %d): %w", t.service, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Service: t.service, StatusCode: resp.StatusCode, Body: llm.SafeLogString(truncate(string(body), 512))}
	}
	return body, nil
}

// authorize opens the sealed token just long enough to set the header.
func (t *Transport) authorize(req *http.Request) error {
	if t.token == nil {
		if t.username != "" {
			req.SetBasicAuth(t.username, "")
		}
		return nil
	}
	buf, err := t.token.Open()
	if err != nil {
		return fmt.Errorf("%s: opening credentials: %w", t.service, err)
	}
	defer buf.Destroy()
	if t.username != "" {
		req.SetBasicAuth(t.username, buf.String())
	} else {
		req.Header.Set("Authorization", "Bearer "+buf.String())
	}
	return nil
}

func outcomeOf(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case errors.As(err, &se) && se.StatusCode >= 500:
		return "server_error"
	case errors.As(err, &se):
		return "client_error"
	default:
		return "transport_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
