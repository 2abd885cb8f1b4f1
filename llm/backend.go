// Package llm provides the generation layer: a single-capability Backend
// interface, the shared textual response protocol every backend must honour,
// and an HTTP transport with retry used by the HTTP-based variants.
package llm

import (
	"context"
)

// Backend proposes a rewritten version of a file.
//
// Implementations build their request from BuildMessages and decode the reply
// with ParseResponse; no backend carries its own decoding logic.
type Backend interface {
	// Name returns the backend identifier (e.g. "anthropic", "ollama").
	Name() string

	// FixCode asks the model for fixed content plus an explanation.
	FixCode(ctx context.Context, req FixRequest) (*Generation, error)
}

// FixRequest is the input to a generation call.
type FixRequest struct {
	// Path names the file being repaired; only its base name and extension
	// reach the model.
	Path string

	// Code is the file's current content.
	Code string

	// Issues are display strings from analysis, one per finding.
	Issues []string

	// Model is the backend-specific model name.
	Model string

	// Temperature controls randomness. nil uses the backend default.
	Temperature *float64
}

// Generation is the decoded reply of one generation call.
type Generation struct {
	// Raw is the unmodified response text.
	Raw string

	// FixedCode is the proposed replacement content.
	FixedCode string

	// Explanation is the model's short rationale.
	Explanation string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Role names used in Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
