// Package notify informs an external system about finished runs over HTTP.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/registry"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLInvalid is returned when the notification endpoint is not an absolute http(s) URL.
	ErrURLInvalid = errors.New("invalid notification URL")
	// ErrHTTPServerError is returned when the endpoint keeps answering with a 5xx status.
	ErrHTTPServerError = errors.New("server error during notification")
	// ErrHTTPClientError is returned when the endpoint rejects the notification.
	ErrHTTPClientError = errors.New("notification rejected")
	ErrNotNotifier     = errors.New("asset is not a notifier")
)

// RetryConfig defines retry behavior for 5xx answers and transport errors.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Payload is the JSON body posted to the endpoint.
type Payload struct {
	Target   string            `json:"target"`
	Asset    string            `json:"asset"`
	RunID    string            `json:"run_id"`
	Job      string            `json:"job"`
	SentAt   time.Time         `json:"sent_at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Handler posts a Payload for every executed notifier asset.
type Handler struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retry   RetryConfig

	client *http.Client
	now    func() time.Time
}

func NewHandler(endpoint string, headers map[string]string, retry RetryConfig) (*Handler, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrURLInvalid, endpoint)
	}

	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	if headers == nil {
		headers = map[string]string{}
	}

	return &Handler{
		URL:     endpoint,
		Headers: headers,
		Timeout: defaultTimeoutSeconds * time.Second,
		Retry:   retry,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Execute posts the notification, retrying on transport errors and 5xx answers.
func (h *Handler) Execute(ctx context.Context, execCtx registry.ExecutionContext, logger *slog.Logger) (registry.Result, error) {
	logger = logger.With("module", "notify_handler")

	notifier, ok := execCtx.Asset.Producer.(models.Notifier)
	if !ok {
		return registry.Result{}, fmt.Errorf("%w: %s", ErrNotNotifier, execCtx.Asset.Key)
	}

	body, err := json.Marshal(Payload{
		Target:   notifier.Target,
		Asset:    execCtx.Asset.Key.String(),
		RunID:    execCtx.RunID,
		Job:      execCtx.JobName,
		SentAt:   h.now(),
		Metadata: execCtx.Metadata,
	})
	if err != nil {
		return registry.Result{}, fmt.Errorf("failed to marshal notification: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= h.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying notification", "attempt", attempt, "attempts", h.Retry.Attempts)

			select {
			case <-ctx.Done():
				return registry.Result{}, ctx.Err()
			case <-time.After(h.Retry.Delay):
			}
		}

		status, err := h.post(ctx, body, execCtx.Metadata)
		if err == nil {
			logger.InfoContext(ctx, "Notification delivered", "target", notifier.Target, "status", status)

			return registry.Result{Metadata: map[string]string{
				"target":      notifier.Target,
				"status_code": fmt.Sprint(status),
			}}, nil
		}

		lastErr = err

		if errors.Is(err, ErrHTTPClientError) || ctx.Err() != nil {
			break
		}
	}

	return registry.Result{}, fmt.Errorf("all notification attempts failed, last error: %w", lastErr)
}

func (h *Handler) post(ctx context.Context, body []byte, metadata map[string]string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	if traceparent := metadata[models.TraceparentTag]; traceparent != "" {
		req.Header.Set(models.TraceparentTag, traceparent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return resp.StatusCode, fmt.Errorf("status %d: %w", resp.StatusCode, ErrHTTPServerError)
	case resp.StatusCode >= http.StatusBadRequest:
		return resp.StatusCode, fmt.Errorf("status %d: %w", resp.StatusCode, ErrHTTPClientError)
	}

	return resp.StatusCode, nil
}
