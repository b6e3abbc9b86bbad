package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"Postgen/internal/core/posts"
)

// DefaultWebhookTimeout bounds a single generation call.
const DefaultWebhookTimeout = 300 * time.Second

// maxLoggedBody caps how much of an upstream error body reaches the logs
const maxLoggedBody = 512

// maxResponseBytes caps the webhook response body
const maxResponseBytes = 10 * 1024 * 1024

// WebhookRequest is the body sent to the generation webhook.
type WebhookRequest struct {
	CurrentPostID *string       `json:"currentPostId"`
	PostContext   string        `json:"postContext"`
	Options       posts.Options `json:"options"`
}

// RawResult is the untrusted webhook payload. Fields are untyped until validated.
type RawResult struct {
	GeneratedContent any `json:"generatedContent"`
	PreviewImage     any `json:"previewImage"`
	GenerationStyle  any `json:"generationStyle"`
}

// Generator calls the external generation workflow.
type Generator interface {
	// Configured reports whether an endpoint is available.
	Configured() bool

	// Generate performs exactly one call. It never retries.
	Generate(ctx context.Context, req WebhookRequest) (*RawResult, error)
}

// WebhookClient posts generation requests to an HTTP webhook.
type WebhookClient struct {
	client   *http.Client
	logger   *zap.Logger
	endpoint string
}

// NewWebhookClient creates a client for endpoint. An empty endpoint yields an
// unconfigured client whose calls fail with ErrNotConfigured.
func NewWebhookClient(endpoint string, timeout time.Duration, logger *zap.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookClient{
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("webhook"),
		endpoint: strings.TrimSpace(endpoint),
	}
}

// Configured reports whether the webhook endpoint is set.
func (c *WebhookClient) Configured() bool {
	return c.endpoint != ""
}

// Generate sends req to the webhook and decodes its JSON body.
func (c *WebhookClient) Generate(ctx context.Context, req WebhookRequest) (*RawResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// No response at all: timeout, refused connection, DNS failure
		return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrUpstreamTimeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("[GENERATE] Webhook returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), maxLoggedBody)))
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var result RawResult
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("[GENERATE] Webhook returned undecodable body",
			zap.String("body", truncate(string(body), maxLoggedBody)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
