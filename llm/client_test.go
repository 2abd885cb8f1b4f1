package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider speaks a minimal JSON format: {"text": "..."}.
type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) BuildURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/generate"
}

func (stubProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (stubProvider) BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	})
}

func (stubProvider) ParseResponse(body []byte) (*Response, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse stub response: %w", err)
	}
	return &Response{Content: resp.Text, Model: "stub-model"}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       10 * time.Millisecond,
		BackoffMultiplier: 1.5,
		MaxBackoff:        100 * time.Millisecond,
	}
}

func TestHTTPBackend_FixCode_Success(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"text": "FIXED_CODE:\n```python\nx = 1\n```\n\nEXPLANATION:\nAdded spaces.",
		})
	}))
	defer server.Close()

	backend := NewHTTPBackend(stubProvider{},
		WithBaseURL(server.URL),
		WithAPIKey("secret"),
		WithMaxTokens(1024),
		WithRetryConfig(fastRetry()))

	temp := 0.2
	gen, err := backend.FixCode(context.Background(), FixRequest{
		Path:        "sample.py",
		Code:        "x=1\n",
		Issues:      []string{"[E225] missing whitespace around operator"},
		Model:       "m1",
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "x = 1", gen.FixedCode)
	assert.Equal(t, "Added spaces.", gen.Explanation)
	assert.Contains(t, gen.Raw, "FIXED_CODE:")

	assert.Equal(t, "m1", captured["model"])
	assert.Equal(t, 0.2, captured["temperature"])
	assert.Equal(t, float64(1024), captured["max_tokens"])
	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	system := msgs[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "- [E225] missing whitespace around operator")
	assert.Equal(t, "x=1\n", msgs[1].(map[string]any)["content"])
}

func TestHTTPBackend_FixCode_RetryOnTransientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Service temporarily unavailable"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "FIXED_CODE:\nok\nEXPLANATION:\nretried"})
	}))
	defer server.Close()

	backend := NewHTTPBackend(stubProvider{}, WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	gen, err := backend.FixCode(context.Background(), FixRequest{Code: "x"})
	require.NoError(t, err)

	assert.Equal(t, "ok", gen.FixedCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPBackend_FixCode_NoRetryOnFatalError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(stubProvider{}, WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := backend.FixCode(context.Background(), FixRequest{Code: "x"})
	require.Error(t, err)

	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPBackend_FixCode_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend := NewHTTPBackend(stubProvider{}, WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := backend.FixCode(context.Background(), FixRequest{Code: "x"})
	require.Error(t, err)

	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPBackend_FixCode_MalformedBodyIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	backend := NewHTTPBackend(stubProvider{}, WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := backend.FixCode(context.Background(), FixRequest{Code: "x"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestHTTPBackend_FixCode_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	backend := NewHTTPBackend(stubProvider{}, WithBaseURL(server.URL), WithRetryConfig(fastRetry()))
	_, err := backend.FixCode(ctx, FixRequest{Code: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := classifyHTTPError(tt.status, []byte("body"))
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, !tt.transient, IsFatal(err))
		})
	}
}

func TestClassifyHTTPError_TruncatesBody(t *testing.T) {
	err := classifyHTTPError(http.StatusBadRequest, []byte(strings.Repeat("x", 500)))
	assert.Less(t, len(err.Error()), 300)
	assert.True(t, strings.HasSuffix(err.Error(), "..."))
}

func TestIsConfigError(t *testing.T) {
	assert.True(t, IsConfigError(fmt.Errorf("%w: foo", ErrUnknownBackend)))
	assert.True(t, IsConfigError(fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredential)))
	assert.False(t, IsConfigError(NewFatalError(fmt.Errorf("boom"))))
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{BackoffBase: time.Second, BackoffMultiplier: 2, MaxBackoff: 3 * time.Second}

	first := cfg.Backoff(1)
	assert.GreaterOrEqual(t, first, 750*time.Millisecond)
	assert.LessOrEqual(t, first, 1250*time.Millisecond)

	capped := cfg.Backoff(5)
	assert.LessOrEqual(t, capped, 3750*time.Millisecond)
	assert.GreaterOrEqual(t, capped, 2250*time.Millisecond)
}
