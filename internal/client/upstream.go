package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/garden-assistant-service/internal/observability"
)

const (
	maxResponseBytes  = 4 << 20
	errorBodyLogBytes = 4 << 10
)

// upstream performs single, bounded outbound calls for one collaborator. No retries.
type upstream struct {
	name    string
	timeout time.Duration
	client  *http.Client
	breaker *Breaker
}

func newUpstream(name string, timeout time.Duration) *upstream {
	return &upstream{
		name:    name,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// do sends the request produced by build and returns the body of a 2xx reply.
func (u *upstream) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := u.breaker.Execute(func() error {
		var callErr error
		body, callErr = u.call(ctx, build)
		return callErr
	})
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(u.name, string(CategorizeError(err))).Inc()
		return nil, err
	}
	return body, nil
}

func (u *upstream) call(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		observability.RecordUpstreamCall(u.name, "error", time.Since(start).Seconds())
		return nil, &UpstreamError{Upstream: u.name, Kind: KindTransport, Err: fmt.Errorf("build request: %w", err)}
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		ue := transportError(u.name, err)
		observability.RecordUpstreamCall(u.name, string(CategorizeError(ue)), time.Since(start).Seconds())
		return nil, ue
	}
	defer resp.Body.Close()

	observability.RecordUpstreamCall(u.name, statusLabel(resp.StatusCode), time.Since(start).Seconds())

	if err := statusError(u.name, resp.StatusCode); err != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLogBytes))
		observability.LoggerFromContext(ctx).Debug("upstream error response",
			zap.String("upstream", u.name),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(u.name, fmt.Errorf("read response body: %w", err))
	}
	return body, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
