package types

import (
	"context"
)

// Invoker is the model invocation contract specialists depend on.
// usesTools is forwarded to the backend; backends without tool support mark
// the result Degraded.
type Invoker interface {
	Invoke(ctx context.Context, specialistID, prompt string, usesTools bool) (Generation, error)
}

// Completer is the plain retry path: no tools, bounded attempts with model
// substitution. Invokers that offer it are used that way by text-only writers.
type Completer interface {
	CompleteWithRetry(ctx context.Context, specialistID, prompt string) (Generation, error)
}

// Generation is a successful model call.
type Generation struct {
	Text     string        `json:"text"`
	Backend  string        `json:"backend"`   // backend identity that answered
	Model    string        `json:"model"`     // concrete model name
	Usage    UsageMetadata `json:"usage"`     // token usage reported by the backend
	FellBack bool          `json:"fell_back"` // answered by the local fallback
	Degraded bool          `json:"degraded"`  // tool use requested but unavailable
}

// UsageMetadata captures token usage metrics from the backend.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
