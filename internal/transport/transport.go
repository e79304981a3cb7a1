// Package transport is the outbound HTTP substrate: POSTing a compressed
// or plain JSON body to the configured webhook URL. Grounded on
// apps/cli/internal/api/client.go's doRequest/executeRequest pair (context
// request construction, status-based success/failure split, limited
// readers on the response body).
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorResponseSize bounds how much of a failure response body is read,
// mirroring client.go's maxErrorResponseSize guard against unbounded
// reads from a misbehaving server.
const maxErrorResponseSize = 64 * 1024

// SendError is returned by HTTPTransport.Send on a response with status
// >= 400. It
// implements NonRetryable() so internal/retry's DefaultClassifier can
// apply spec.md §4.6/§6's 400/401/403/404-are-final rule without string
// matching.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// NonRetryable reports whether this status code is terminal per spec.md
// §4.6/§6 (400, 401, 403, 404) rather than transient (5xx, 408, 429, ...).
func (e *SendError) NonRetryable() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// Transport sends a pre-serialized, possibly-compressed body to the
// webhook with the given headers already resolved (Content-Type,
// Content-Encoding, User-Agent).
type Transport interface {
	Send(ctx context.Context, body []byte, headers map[string]string) error
}

// HTTPTransport is the default Transport, backed by net/http.
type HTTPTransport struct {
	webhookURL string
	client     *http.Client
	userAgent  string
}

// New creates an HTTPTransport posting to webhookURL with the given
// per-request timeout (spec.md §6's `timeout`, default 5000ms) and a
// User-Agent identifying the SDK name and version.
func New(webhookURL string, timeout time.Duration, sdkVersion string) *HTTPTransport {
	return &HTTPTransport{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		userAgent:  fmt.Sprintf("errship-go/%s", sdkVersion),
	}
}

// Send issues the POST. HTTP status < 400 is success; >= 400 is failure,
// wrapped in *SendError so callers can classify retryability.
func (t *HTTPTransport) Send(ctx context.Context, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, newReader(body))
	if err != nil {
		return fmt.Errorf("transport: create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorResponseSize))
		return &SendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	// Drain and discard so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorResponseSize))
	return nil
}
