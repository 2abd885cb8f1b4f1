package providers

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/c360studio/codefix/llm"
)

// Kind identifies a generation backend variant.
type Kind string

// Supported backend kinds.
const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindGoogle    Kind = "google"
	KindLocal     Kind = "local"
	KindLMStudio  Kind = "lmstudio"
	KindOllama    Kind = "ollama"
)

// DefaultMaxTokens is the output bound for keyed cloud backends.
const DefaultMaxTokens = 8192

const defaultLocalModel = "qwen2.5-coder-14b"

// Options configures backend construction. Zero values select the variant's
// defaults.
type Options struct {
	// APIKey overrides the <KIND>_API_KEY environment variable.
	APIKey string

	// BaseURL overrides the variant's default endpoint.
	BaseURL string

	// Model is used when a request does not name one.
	Model string

	// MaxTokens overrides the variant's output bound.
	MaxTokens int

	HTTPClient *http.Client
	Retry      *llm.RetryConfig
	Logger     *slog.Logger
}

type variant struct {
	defaultURL         string
	defaultModel       string
	requiresCredential bool
	maxTokens          int
	build              func(settings) llm.Backend
}

// settings is Options with defaults applied.
type settings struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	retry      llm.RetryConfig
	logger     *slog.Logger
}

var variants = map[Kind]variant{
	KindOpenAI: {
		defaultURL:         DefaultOpenAIURL,
		defaultModel:       "gpt-4o",
		requiresCredential: true,
		maxTokens:          DefaultMaxTokens,
		build:              httpVariant(func() llm.Provider { return NewOpenAIProvider() }),
	},
	KindAnthropic: {
		defaultURL:         DefaultAnthropicURL,
		defaultModel:       "claude-3-5-sonnet-20241022",
		requiresCredential: true,
		maxTokens:          DefaultMaxTokens,
		build:              httpVariant(func() llm.Provider { return &AnthropicProvider{} }),
	},
	KindGoogle: {
		defaultModel:       "gemini-2.0-flash",
		requiresCredential: true,
		maxTokens:          DefaultMaxTokens,
		build: func(s settings) llm.Backend {
			return &GoogleBackend{
				apiKey:     s.apiKey,
				baseURL:    s.baseURL,
				model:      s.model,
				maxTokens:  s.maxTokens,
				httpClient: s.httpClient,
				retry:      s.retry,
				logger:     s.logger,
			}
		},
	},
	KindLocal: {
		defaultURL:   DefaultOllamaURL,
		defaultModel: defaultLocalModel,
		build:        httpVariant(func() llm.Provider { return NewLocalProvider() }),
	},
	KindLMStudio: {
		defaultURL:   DefaultLMStudioURL,
		defaultModel: defaultLocalModel,
		build:        httpVariant(func() llm.Provider { return NewLMStudioProvider() }),
	},
	KindOllama: {
		defaultURL:   DefaultOllamaURL,
		defaultModel: defaultLocalModel,
		build:        httpVariant(func() llm.Provider { return NewOllamaProvider() }),
	},
}

func httpVariant(provider func() llm.Provider) func(settings) llm.Backend {
	return func(s settings) llm.Backend {
		opts := []llm.HTTPOption{
			llm.WithBaseURL(s.baseURL),
			llm.WithAPIKey(s.apiKey),
			llm.WithModel(s.model),
			llm.WithMaxTokens(s.maxTokens),
			llm.WithRetryConfig(s.retry),
			llm.WithLogger(s.logger),
			llm.WithHTTPClient(s.httpClient),
		}
		return llm.NewHTTPBackend(provider(), opts...)
	}
}

// ParseKind normalises a backend identifier. Unknown identifiers yield
// ErrUnknownBackend listing the valid kinds.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := variants[k]; !ok {
		return "", fmt.Errorf("%w: %q (valid: %s)", llm.ErrUnknownBackend, name, strings.Join(Kinds(), ", "))
	}
	return k, nil
}

// Kinds returns every supported backend identifier, sorted.
func Kinds() []string {
	names := make([]string, 0, len(variants))
	for k := range variants {
		names = append(names, string(k))
	}
	slices.Sort(names)
	return names
}

// RequiresCredential reports whether kind needs an API key.
func RequiresCredential(kind Kind) bool {
	return variants[kind].requiresCredential
}

// CredentialEnv returns the environment variable holding kind's API key, or
// "" for keyless kinds.
func CredentialEnv(kind Kind) string {
	if !RequiresCredential(kind) {
		return ""
	}
	return strings.ToUpper(string(kind)) + "_API_KEY"
}

// DefaultModel returns kind's default model.
func DefaultModel(kind Kind) string {
	return variants[kind].defaultModel
}

// DefaultBaseURL returns kind's default endpoint, empty when the SDK picks it.
func DefaultBaseURL(kind Kind) string {
	return variants[kind].defaultURL
}

// New constructs the backend for kind. Configuration errors are returned
// before any network activity.
func New(kind Kind, opts Options) (llm.Backend, error) {
	kind, err := ParseKind(string(kind))
	if err != nil {
		return nil, err
	}
	v := variants[kind]

	s := settings{
		apiKey:     opts.APIKey,
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		httpClient: opts.HTTPClient,
		retry:      llm.DefaultRetryConfig(),
		logger:     opts.Logger,
	}

	if v.requiresCredential && s.apiKey == "" {
		env := CredentialEnv(kind)
		s.apiKey = os.Getenv(env)
		if s.apiKey == "" {
			return nil, fmt.Errorf("%w: %s backend needs an API key; set %s", llm.ErrMissingCredential, kind, env)
		}
	}

	if s.baseURL == "" {
		s.baseURL = v.defaultURL
	}
	if s.model == "" {
		s.model = v.defaultModel
	}
	if s.maxTokens <= 0 {
		s.maxTokens = v.maxTokens
	}
	if opts.Retry != nil {
		s.retry = *opts.Retry
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: llm.DefaultTimeout}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return v.build(s), nil
}
