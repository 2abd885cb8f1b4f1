package providers

import (
	"net/http"
	"os"
)

// DefaultOpenAIURL is the OpenAI API base.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIProvider implements the OpenAI API for direct OpenAI or OpenRouter usage.
// This is separate from LocalProvider to allow different default URLs and auth.
type OpenAIProvider struct {
	LocalProvider // Embed for shared request/response format
}

// NewOpenAIProvider returns the keyed OpenAI provider.
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{LocalProvider{name: string(KindOpenAI), defaultURL: DefaultOpenAIURL}}
}

// SetHeaders adds OpenAI authentication headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)

	// Support OpenRouter
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
