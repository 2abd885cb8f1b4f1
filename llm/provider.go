package llm

import (
	"net/http"
)

// Provider translates between the generation request and one HTTP API's wire
// format. Providers are stateless; credentials are supplied per request.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string

	// BuildURL constructs the full API endpoint URL. An empty baseURL selects
	// the provider's default endpoint.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific headers to the request. apiKey is
	// empty for keyless providers.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body for the provider.
	// temperature is nil to use provider default, or a pointer to explicit value.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse extracts the response text from provider-specific JSON.
	ParseResponse(body []byte) (*Response, error)
}

// TokenUsage represents token consumption details for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains a decoded completion before protocol parsing.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}
