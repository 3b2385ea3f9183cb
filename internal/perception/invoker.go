package perception

import (
	"context"
	"fmt"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// UsageRecorder receives token usage for every successful generation.
type UsageRecorder interface {
	Record(specialist string, gen types.Generation)
}

// Invoker routes specialist prompts to their assigned backend, with one
// fallback to the local backend on transient failures.
type Invoker struct {
	cfg     *config.Config
	clients map[string]Client
	usage   UsageRecorder
}

// NewInvoker creates an invoker over prebuilt clients. usage may be nil.
func NewInvoker(cfg *config.Config, clients map[string]Client, usage UsageRecorder) *Invoker {
	return &Invoker{cfg: cfg, clients: clients, usage: usage}
}

// Invoke sends prompt to the specialist's assigned backend. Transient failures
// get exactly one attempt on the local backend; permanent failures return
// immediately. Failures are *BackendError (possibly wrapped).
func (inv *Invoker) Invoke(ctx context.Context, specialistID, prompt string, usesTools bool) (types.Generation, error) {
	primary := inv.cfg.BackendFor(specialistID)
	req := inv.request(prompt, usesTools)

	gen, err := inv.call(ctx, specialistID, primary, req)
	if err == nil {
		inv.record(specialistID, gen)
		return gen, nil
	}
	if !IsTransient(err) {
		logging.APIError("[Invoke] %s: permanent failure on %s: %v", specialistID, primary, err)
		return types.Generation{}, err
	}

	local := inv.cfg.LocalBackend
	if local == "" || local == primary || inv.clients[local] == nil {
		logging.APIError("[Invoke] %s: transient failure on %s, no local fallback available: %v", specialistID, primary, err)
		return types.Generation{}, err
	}

	logging.APIWarn("[Invoke] %s: %s failed (%s), falling back to %s", specialistID, primary, ClassOf(err), local)
	gen, fbErr := inv.call(ctx, specialistID, local, req)
	if fbErr != nil {
		logging.APIError("[Invoke] %s: fallback %s also failed: %v", specialistID, local, fbErr)
		return types.Generation{}, fmt.Errorf("primary %s failed (%v); fallback: %w", primary, err, fbErr)
	}

	gen.FellBack = true
	if usesTools && !inv.clients[local].SupportsTools() {
		gen.Degraded = true
		logging.APIWarn("[Invoke] %s: fallback %s has no tool support, result is degraded", specialistID, local)
	}
	inv.record(specialistID, gen)
	return gen, nil
}

// CompleteWithRetry is the plain single-shot path: up to the configured
// attempt budget (max 2), substituting the next backend in the static
// fallback order after each failure. Safety blocks are not retried.
func (inv *Invoker) CompleteWithRetry(ctx context.Context, specialistID, prompt string) (types.Generation, error) {
	backend := inv.cfg.BackendFor(specialistID)
	req := inv.request(prompt, false)

	var lastErr error
	for attempt := 1; attempt <= inv.cfg.GetRetryAttempts(); attempt++ {
		gen, err := inv.call(ctx, specialistID, backend, req)
		if err == nil {
			inv.record(specialistID, gen)
			return gen, nil
		}
		lastErr = err
		logging.APIWarn("[Retry] %s attempt %d on %s failed: %v", specialistID, attempt, backend, err)

		if ClassOf(err) == FailureSafetyBlocked || ctx.Err() != nil {
			break
		}
		next := inv.cfg.NextFallback(backend)
		if next == "" {
			break
		}
		backend = next
	}
	return types.Generation{}, lastErr
}

func (inv *Invoker) request(prompt string, usesTools bool) Request {
	return Request{Prompt: prompt, UsesTools: usesTools, Generation: inv.cfg.Generation}
}

func (inv *Invoker) call(ctx context.Context, specialistID, backend string, req Request) (types.Generation, error) {
	client, ok := inv.clients[backend]
	if !ok {
		return types.Generation{}, &BackendError{Class: FailureGeneric, Backend: backend, Message: "no client configured"}
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.cfg.GetCallTimeout())
	defer cancel()

	timer := logging.StartTimer(logging.CategoryAPI, fmt.Sprintf("%s via %s", specialistID, backend))
	resp, err := client.Generate(callCtx, req)
	timer.StopWithThreshold(inv.cfg.GetCallTimeout() / 2)
	if err != nil {
		return types.Generation{}, err
	}

	gen := types.Generation{
		Text:    resp.Text,
		Backend: backend,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}
	logging.APIDebug("[Invoke] %s: %s answered (%d tokens)", specialistID, backend, resp.Usage.TotalTokens)
	return gen, nil
}

func (inv *Invoker) record(specialistID string, gen types.Generation) {
	if inv.usage != nil {
		inv.usage.Record(specialistID, gen)
	}
}
