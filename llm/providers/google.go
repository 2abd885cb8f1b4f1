package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/c360studio/codefix/llm"
)

// GoogleBackend generates fixes through the Gemini API using the genai SDK.
// The client is created lazily on first use so construction performs no I/O.
type GoogleBackend struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	retry      llm.RetryConfig
	logger     *slog.Logger
}

// Name returns the backend identifier.
func (g *GoogleBackend) Name() string {
	return string(KindGoogle)
}

func (g *GoogleBackend) client(ctx context.Context) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     g.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create genai client: %w", err))
	}
	return c, nil
}

// FixCode sends the fix request as a single user turn with the protocol
// prompt as system instruction.
func (g *GoogleBackend) FixCode(ctx context.Context, req llm.FixRequest) (*llm.Generation, error) {
	requestID := uuid.New().String()

	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	messages := llm.BuildMessages(req)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(messages[0].Content, genai.RoleUser),
		MaxOutputTokens:   int32(g.maxTokens),
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	contents := []*genai.Content{genai.NewContentFromText(messages[1].Content, genai.RoleUser)}

	maxAttempts := max(g.retry.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		g.logger.Debug("Sending generation request",
			"request_id", requestID,
			"provider", g.Name(),
			"model", model,
			"attempt", attempt)

		resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			g.logger.Debug("Generation complete",
				"request_id", requestID,
				"provider", g.Name(),
				"model", model,
				"attempts", attempt)
			return llm.ParseResponse(resp.Text()), nil
		}

		lastErr = classifyGenAIError(ctx, err)
		if llm.IsFatal(lastErr) {
			return nil, fmt.Errorf("%s request failed after %d attempt(s): %w", g.Name(), attempt, lastErr)
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s request failed after %d attempt(s): %w", g.Name(), attempt, ctx.Err())
			case <-time.After(g.retry.Backoff(attempt)):
			}
		}
	}

	return nil, fmt.Errorf("%s request failed after %d attempt(s): %w", g.Name(), maxAttempts, lastErr)
}

// classifyGenAIError applies the HTTP transport's rules to SDK errors:
// rate limiting and server errors are transient, the rest fatal.
func classifyGenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return llm.NewFatalError(ctx.Err())
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return llm.NewTransientError(err)
		}
		return llm.NewFatalError(err)
	}
	// Network failures surface as plain errors
	return llm.NewTransientError(err)
}
