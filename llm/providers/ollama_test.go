package providers

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codefix/llm"
)

func TestLocalProvider_BuildURL(t *testing.T) {
	tests := []struct {
		name     string
		provider *LocalProvider
		baseURL  string
		want     string
	}{
		{
			name:     "ollama default",
			provider: NewOllamaProvider(),
			want:     "http://localhost:11434/v1/chat/completions",
		},
		{
			name:     "local default",
			provider: NewLocalProvider(),
			want:     "http://localhost:11434/v1/chat/completions",
		},
		{
			name:     "lmstudio default",
			provider: NewLMStudioProvider(),
			want:     "http://localhost:1234/v1/chat/completions",
		},
		{
			name:     "custom base URL",
			provider: NewOllamaProvider(),
			baseURL:  "http://myserver:8080/v1",
			want:     "http://myserver:8080/v1/chat/completions",
		},
		{
			name:     "trailing slash handled",
			provider: NewOllamaProvider(),
			baseURL:  "http://localhost:11434/v1/",
			want:     "http://localhost:11434/v1/chat/completions",
		},
		{
			name:     "already has endpoint",
			provider: NewLMStudioProvider(),
			baseURL:  "http://localhost:1234/v1/chat/completions",
			want:     "http://localhost:1234/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.provider.BuildURL(tt.baseURL))
		})
	}
}

func TestLocalProvider_Names(t *testing.T) {
	assert.Equal(t, "local", NewLocalProvider().Name())
	assert.Equal(t, "ollama", NewOllamaProvider().Name())
	assert.Equal(t, "lmstudio", NewLMStudioProvider().Name())
	assert.Equal(t, "openai", NewOpenAIProvider().Name())
}

func TestLocalProvider_SetHeaders(t *testing.T) {
	p := NewOllamaProvider()

	req := httptest.NewRequest("POST", "/", nil)
	p.SetHeaders(req, "")
	assert.Empty(t, req.Header.Get("Authorization"))

	req = httptest.NewRequest("POST", "/", nil)
	p.SetHeaders(req, "proxy-token")
	assert.Equal(t, "Bearer proxy-token", req.Header.Get("Authorization"))
}

func TestLocalProvider_BuildRequestBody(t *testing.T) {
	p := NewOllamaProvider()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful."},
		{Role: llm.RoleUser, Content: "Hello"},
	}

	temp := 0.7
	body, err := p.BuildRequestBody("qwen2.5-coder-14b", messages, &temp, 2048)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"model":"qwen2.5-coder-14b"`)
	assert.Contains(t, string(body), `"role":"system"`)
	assert.Contains(t, string(body), `"max_tokens":2048`)
	assert.Contains(t, string(body), `"temperature":0.7`)
}

func TestLocalProvider_BuildRequestBody_OmitsUnsetFields(t *testing.T) {
	p := NewLocalProvider()

	body, err := p.BuildRequestBody("m", []llm.Message{{Role: llm.RoleUser, Content: "Hello"}}, nil, 0)
	require.NoError(t, err)

	assert.NotContains(t, string(body), `"max_tokens"`)
	assert.NotContains(t, string(body), `"temperature"`)
}

func TestLocalProvider_ParseResponse(t *testing.T) {
	p := NewOllamaProvider()

	responseBody := []byte(`{
		"id": "chatcmpl-123",
		"model": "qwen2.5-coder-14b",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "FIXED_CODE:\nx = 1"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
	}`)

	resp, err := p.ParseResponse(responseBody)
	require.NoError(t, err)

	assert.Equal(t, "FIXED_CODE:\nx = 1", resp.Content)
	assert.Equal(t, "qwen2.5-coder-14b", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 25, resp.Usage.TotalTokens)
}

func TestLocalProvider_ParseResponse_NoChoices(t *testing.T) {
	p := NewOllamaProvider()

	_, err := p.ParseResponse([]byte(`{"id": "x", "choices": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIProvider_SetHeaders(t *testing.T) {
	t.Setenv("OPENROUTER_SITE_URL", "https://example.org")
	t.Setenv("OPENROUTER_SITE_NAME", "")

	p := NewOpenAIProvider()
	req := httptest.NewRequest("POST", "/", nil)
	p.SetHeaders(req, "sk-test")

	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "https://example.org", req.Header.Get("HTTP-Referer"))
	assert.Empty(t, req.Header.Get("X-Title"))
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", p.BuildURL(""))
}
