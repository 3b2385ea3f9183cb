package perception

import (
	"context"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// Request is one generation request.
type Request struct {
	Prompt     string
	UsesTools  bool
	Generation config.GenerationConfig
}

// Response is a backend's answer to one Request.
type Response struct {
	Text  string
	Model string
	Usage types.UsageMetadata
}

// Client is one concrete backend. Implementations return *BackendError on
// failure.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	// Model returns the concrete model name.
	Model() string
	// SupportsTools reports whether usesTools requests can be honored.
	SupportsTools() bool
}
