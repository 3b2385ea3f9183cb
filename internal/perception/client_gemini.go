package perception

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// =============================================================================
// HOSTED BACKEND (Gemini API via google.golang.org/genai)
// =============================================================================

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	Backend     string // backend identity, used in errors and logs
	APIKey      string
	Model       string
	BaseURL     string // optional endpoint override
	Timeout     time.Duration
	MinInterval time.Duration
	Safety      config.SafetyConfig
}

// GeminiClient implements Client for the hosted Gemini API.
type GeminiClient struct {
	backend string
	model   string
	client  *genai.Client // nil when no API key is configured
	limiter *rate.Limiter
	safety  []*genai.SafetySetting
	initErr error
}

// NewGeminiClient creates a new Gemini client. A missing API key does not
// fail construction; every Generate call then reports an auth failure.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) *GeminiClient {
	c := &GeminiClient{
		backend: cfg.Backend,
		model:   cfg.Model,
		limiter: newLimiter(cfg.MinInterval),
		safety:  buildSafetySettings(cfg.Safety),
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		c.initErr = &BackendError{
			Class:   FailureAuthQuota,
			Backend: cfg.Backend,
			Message: "API key not configured (set GEMINI_API_KEY or GOOGLE_API_KEY)",
		}
		return c
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		c.initErr = &BackendError{Class: FailureAuthQuota, Backend: cfg.Backend, Message: "failed to create GenAI client", Err: err}
		return c
	}
	c.client = client
	return c
}

// Model returns the concrete model name.
func (c *GeminiClient) Model() string { return c.model }

// SupportsTools reports tool support (built-in code execution).
func (c *GeminiClient) SupportsTools() bool { return true }

// Generate sends one prompt to the hosted backend.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if c.initErr != nil {
		return Response{}, c.initErr
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, transportError(c.backend, err)
	}

	logging.APIDebug("[Gemini] Generate: backend=%s model=%s prompt_len=%d tools=%v", c.backend, c.model, len(req.Prompt), req.UsesTools)

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Generation.Temperature),
		TopP:            genai.Ptr(req.Generation.TopP),
		TopK:            genai.Ptr(req.Generation.TopK),
		MaxOutputTokens: req.Generation.MaxOutputTokens,
		SafetySettings:  c.safety,
	}
	if req.UsesTools {
		gc.Tools = []*genai.Tool{{CodeExecution: &genai.ToolCodeExecution{}}}
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		return Response{}, c.classify(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Response{}, &BackendError{
			Class:   FailureSafetyBlocked,
			Backend: c.backend,
			Message: fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 {
		return Response{}, &BackendError{Class: FailureGeneric, Backend: c.backend, Message: "no candidates in response"}
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return Response{}, &BackendError{Class: FailureSafetyBlocked, Backend: c.backend, Message: "finish reason SAFETY"}
	}

	out := Response{Text: resp.Text(), Model: c.model}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (c *GeminiClient) classify(err error) *BackendError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(c.backend, apiErr.Code, apiErr.Message, err)
	}
	return transportError(c.backend, err)
}

func buildSafetySettings(s config.SafetyConfig) []*genai.SafetySetting {
	if s.Threshold == "" {
		return nil
	}
	settings := make([]*genai.SafetySetting, 0, len(s.Categories))
	for _, cat := range s.Categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  genai.HarmCategory(cat),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	return settings
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
