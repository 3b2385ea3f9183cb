package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// =============================================================================
// LOCAL FALLBACK BACKEND (Ollama-compatible /api/generate)
// =============================================================================

// LocalClient implements Client against a local Ollama-compatible server.
// It has no tool support.
type LocalClient struct {
	backend    string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type localRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options localOptions `json:"options"`
}

type localOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	TopK        int     `json:"top_k"`
	NumPredict  int32   `json:"num_predict"`
}

type localResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// NewLocalClient creates a client for the local backend.
func NewLocalClient(backend, baseURL, model string, timeout, minInterval time.Duration) *LocalClient {
	return &LocalClient{
		backend:    backend,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(minInterval),
	}
}

// Model returns the concrete model name.
func (c *LocalClient) Model() string { return c.model }

// SupportsTools reports false; the local backend cannot run tools.
func (c *LocalClient) SupportsTools() bool { return false }

// Generate sends one non-streaming completion request.
func (c *LocalClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, transportError(c.backend, err)
	}

	body, err := json.Marshal(localRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		Stream: false,
		Options: localOptions{
			Temperature: req.Generation.Temperature,
			TopP:        req.Generation.TopP,
			TopK:        int(req.Generation.TopK),
			NumPredict:  req.Generation.MaxOutputTokens,
		},
	})
	if err != nil {
		return Response{}, &BackendError{Class: FailureMalformed, Backend: c.backend, Message: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, &BackendError{Class: FailureMalformed, Backend: c.backend, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logging.APIDebug("[Local] Generate: backend=%s model=%s prompt_len=%d", c.backend, c.model, len(req.Prompt))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, transportError(c.backend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, transportError(c.backend, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, statusError(c.backend, resp.StatusCode, strings.TrimSpace(string(data)), nil)
	}

	var lr localResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return Response{}, &BackendError{Class: FailureGeneric, Backend: c.backend, Message: "failed to parse response", Err: err}
	}
	if lr.Error != "" {
		return Response{}, &BackendError{Class: FailureGeneric, Backend: c.backend, Message: lr.Error}
	}
	if strings.TrimSpace(lr.Response) == "" {
		return Response{}, &BackendError{Class: FailureGeneric, Backend: c.backend, Message: fmt.Sprintf("empty response from %s", c.model)}
	}

	return Response{
		Text:  lr.Response,
		Model: c.model,
		Usage: types.UsageMetadata{
			InputTokens:  lr.PromptEvalCount,
			OutputTokens: lr.EvalCount,
			TotalTokens:  lr.PromptEvalCount + lr.EvalCount,
		},
	}, nil
}
