package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/codefix/llm"
)

// Default endpoints for local OpenAI-compatible runtimes.
const (
	DefaultOllamaURL   = "http://localhost:11434/v1"
	DefaultLMStudioURL = "http://localhost:1234/v1"
)

// LocalProvider implements the OpenAI-compatible chat completions API served
// by local runtimes (Ollama, LM Studio, vLLM, llama.cpp). No credential is
// required.
type LocalProvider struct {
	name       string
	defaultURL string
}

// NewLocalProvider returns the generic local flavor.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{name: string(KindLocal), defaultURL: DefaultOllamaURL}
}

// NewOllamaProvider returns the Ollama flavor.
func NewOllamaProvider() *LocalProvider {
	return &LocalProvider{name: string(KindOllama), defaultURL: DefaultOllamaURL}
}

// NewLMStudioProvider returns the LM Studio flavor.
func NewLMStudioProvider() *LocalProvider {
	return &LocalProvider{name: string(KindLMStudio), defaultURL: DefaultLMStudioURL}
}

// Name returns the provider identifier.
func (o *LocalProvider) Name() string {
	return o.name
}

// BuildURL constructs the chat completions endpoint.
func (o *LocalProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, o.defaultURL)
}

// SetHeaders sends a bearer token only when one was explicitly configured,
// e.g. for a vLLM server behind an auth proxy.
func (o *LocalProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// openAIRequest is the OpenAI-compatible request format.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequestBody creates the OpenAI-compatible request body.
func (o *LocalProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	apiMessages := make([]openAIMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = openAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openAIRequest{
		Model:       model,
		Messages:    apiMessages,
		Temperature: temperature, // nil = use default, 0 = deterministic
	}

	// Only set max_tokens if explicitly provided
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	return json.Marshal(req)
}

// openAIResponse is the OpenAI-compatible response format.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ParseResponse extracts content from OpenAI-compatible response.
func (o *LocalProvider) ParseResponse(body []byte) (*llm.Response, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

func chatCompletionsURL(baseURL, defaultURL string) string {
	if baseURL == "" {
		baseURL = defaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}
