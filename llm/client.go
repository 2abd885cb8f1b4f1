package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultTimeout bounds a whole HTTP generation call, including the body read.
const DefaultTimeout = 5 * time.Minute

// HTTPBackend is a Backend that talks to an HTTP API through a Provider,
// with retry on transient failures.
type HTTPBackend struct {
	provider    Provider
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) HTTPOption {
	return func(b *HTTPBackend) {
		b.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(b *HTTPBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBaseURL overrides the provider's default endpoint.
func WithBaseURL(url string) HTTPOption {
	return func(b *HTTPBackend) {
		b.baseURL = url
	}
}

// WithAPIKey sets the credential sent by SetHeaders.
func WithAPIKey(key string) HTTPOption {
	return func(b *HTTPBackend) {
		b.apiKey = key
	}
}

// WithModel sets the model used when a request does not name one.
func WithModel(model string) HTTPOption {
	return func(b *HTTPBackend) {
		b.model = model
	}
}

// WithMaxTokens bounds the output size. 0 uses the provider default.
func WithMaxTokens(n int) HTTPOption {
	return func(b *HTTPBackend) {
		b.maxTokens = n
	}
}

// NewHTTPBackend creates a backend for the given provider.
func NewHTTPBackend(provider Provider, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		provider:    provider,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Name returns the provider identifier.
func (b *HTTPBackend) Name() string {
	return b.provider.Name()
}

// Endpoint returns the resolved request URL.
func (b *HTTPBackend) Endpoint() string {
	return b.provider.BuildURL(b.baseURL)
}

// FixCode sends the fix request and decodes the reply with ParseResponse.
func (b *HTTPBackend) FixCode(ctx context.Context, req FixRequest) (*Generation, error) {
	requestID := uuid.New().String()
	messages := BuildMessages(req)

	resp, attempts, err := b.doWithRetry(ctx, requestID, req, messages)
	if err != nil {
		return nil, fmt.Errorf("%s request failed after %d attempt(s): %w", b.provider.Name(), attempts, err)
	}

	b.logger.Debug("Generation complete",
		"request_id", requestID,
		"provider", b.provider.Name(),
		"model", resp.Model,
		"attempts", attempts,
		"total_tokens", resp.Usage.TotalTokens,
		"finish_reason", resp.FinishReason)

	return ParseResponse(resp.Content), nil
}

// doWithRetry attempts a request with retry logic and returns the attempt count.
func (b *HTTPBackend) doWithRetry(ctx context.Context, requestID string, req FixRequest, messages []Message) (*Response, int, error) {
	maxAttempts := b.retryConfig.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := b.doRequest(ctx, requestID, req, messages)
		if err == nil {
			return resp, attempt, nil
		}

		lastErr = err

		// Don't retry fatal errors
		if IsFatal(err) {
			return nil, attempt, err
		}

		if attempt < maxAttempts {
			backoff := b.retryConfig.Backoff(attempt)
			b.logger.Debug("Request failed, retrying",
				"request_id", requestID,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, maxAttempts, lastErr
}

// doRequest executes a single HTTP request.
func (b *HTTPBackend) doRequest(ctx context.Context, requestID string, req FixRequest, messages []Message) (*Response, error) {
	url := b.provider.BuildURL(b.baseURL)
	model := req.Model
	if model == "" {
		model = b.model
	}

	body, err := b.provider.BuildRequestBody(model, messages, req.Temperature, b.maxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	b.logger.Debug("Sending generation request",
		"request_id", requestID,
		"provider", b.provider.Name(),
		"model", model,
		"url", url)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	b.provider.SetHeaders(httpReq, b.apiKey)

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewFatalError(ctx.Err())
		}
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	// Read response body with size limit to prevent memory exhaustion
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := b.provider.ParseResponse(respBody)
	if err != nil {
		return nil, NewFatalError(err)
	}
	return resp, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		// Auth, bad request, and anything unexpected are fatal
		return NewFatalError(err)
	}
}
