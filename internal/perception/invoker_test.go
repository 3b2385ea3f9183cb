package perception

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// fakeClient replays scripted results in order; the last one repeats.
type fakeClient struct {
	mu      sync.Mutex
	model   string
	tools   bool
	results []fakeResult
	calls   []Request
}

type fakeResult struct {
	text string
	err  error
}

func (f *fakeClient) Generate(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	if r.err != nil {
		return Response{}, r.err
	}
	return Response{Text: r.text, Model: f.model, Usage: types.UsageMetadata{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}}, nil
}

func (f *fakeClient) Model() string       { return f.model }
func (f *fakeClient) SupportsTools() bool { return f.tools }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordedUsage struct {
	mu   sync.Mutex
	gens []types.Generation
}

func (r *recordedUsage) Record(_ string, gen types.Generation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens = append(r.gens, gen)
}

func ok(text string) fakeResult { return fakeResult{text: text} }
func fail(backend string, code int) fakeResult {
	return fakeResult{err: statusError(backend, code, "scripted", nil)}
}

type fixture struct {
	flash, pro, local *fakeClient
	usage             *recordedUsage
	inv               *Invoker
}

func newFixture(flash, pro, local []fakeResult) *fixture {
	f := &fixture{
		flash: &fakeClient{model: "gemini-2.5-flash", tools: true, results: flash},
		pro:   &fakeClient{model: "gemini-2.5-pro", tools: true, results: pro},
		local: &fakeClient{model: "qwen2.5-coder:7b", results: local},
		usage: &recordedUsage{},
	}
	cfg := config.DefaultConfig()
	f.inv = NewInvoker(cfg, map[string]Client{
		"gemini-flash": f.flash,
		"gemini-pro":   f.pro,
		"local":        f.local,
	}, f.usage)
	return f
}

func TestInvoke_PrimarySuccess(t *testing.T) {
	f := newFixture([]fakeResult{ok("analysis")}, []fakeResult{ok("code")}, []fakeResult{ok("local")})

	gen, err := f.inv.Invoke(context.Background(), "analyst", "prompt", false)
	require.NoError(t, err)
	assert.Equal(t, "analysis", gen.Text)
	assert.Equal(t, "gemini-flash", gen.Backend)
	assert.False(t, gen.FellBack)

	gen, err = f.inv.Invoke(context.Background(), "coder", "prompt", true)
	require.NoError(t, err)
	assert.Equal(t, "gemini-pro", gen.Backend)
	assert.True(t, f.pro.calls[0].UsesTools)

	assert.Equal(t, 0, f.local.callCount())
	assert.Len(t, f.usage.gens, 2)
}

func TestInvoke_TransientFallsBackOnce(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		f := newFixture([]fakeResult{fail("gemini-flash", code)}, nil, []fakeResult{ok("from local")})

		gen, err := f.inv.Invoke(context.Background(), "planner", "prompt", false)
		require.NoError(t, err, "status %d", code)
		assert.Equal(t, "from local", gen.Text)
		assert.Equal(t, "local", gen.Backend)
		assert.True(t, gen.FellBack)
		assert.False(t, gen.Degraded)
		assert.Equal(t, 1, f.flash.callCount())
		assert.Equal(t, 1, f.local.callCount())
		require.Len(t, f.usage.gens, 1)
		assert.True(t, f.usage.gens[0].FellBack)
	}
}

func TestInvoke_ConnectionFailureFallsBack(t *testing.T) {
	connErr := fakeResult{err: transportError("gemini-pro", context.DeadlineExceeded)}
	f := newFixture(nil, []fakeResult{connErr}, []fakeResult{ok("patched")})

	gen, err := f.inv.Invoke(context.Background(), "debugger", "prompt", false)
	require.NoError(t, err)
	assert.True(t, gen.FellBack)
}

func TestInvoke_PermanentReturnsImmediately(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404} {
		f := newFixture([]fakeResult{fail("gemini-flash", code)}, nil, []fakeResult{ok("never")})

		_, err := f.inv.Invoke(context.Background(), "architect", "prompt", false)
		require.Error(t, err)
		assert.False(t, IsTransient(err))
		assert.Equal(t, 0, f.local.callCount(), "status %d must not fall back", code)
	}

	safety := fakeResult{err: &BackendError{Class: FailureSafetyBlocked, Backend: "gemini-flash", Message: "SAFETY"}}
	f := newFixture([]fakeResult{safety}, nil, []fakeResult{ok("never")})
	_, err := f.inv.Invoke(context.Background(), "architect", "prompt", false)
	assert.Equal(t, FailureSafetyBlocked, ClassOf(err))
	assert.Equal(t, 0, f.local.callCount())
}

func TestInvoke_FallbackFailureIsSurfaced(t *testing.T) {
	f := newFixture([]fakeResult{fail("gemini-flash", 503)}, nil, []fakeResult{fail("local", 500)})

	_, err := f.inv.Invoke(context.Background(), "analyst", "prompt", false)
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "local", be.Backend)
	assert.Contains(t, err.Error(), "gemini-flash")
	assert.Equal(t, 1, f.local.callCount())
}

func TestInvoke_ToolUseFallbackIsDegraded(t *testing.T) {
	f := newFixture(nil, []fakeResult{fail("gemini-pro", 429)}, []fakeResult{ok("code without tools")})

	gen, err := f.inv.Invoke(context.Background(), "coder", "prompt", true)
	require.NoError(t, err)
	assert.True(t, gen.FellBack)
	assert.True(t, gen.Degraded)
}

func TestCompleteWithRetry_SubstitutesModel(t *testing.T) {
	f := newFixture([]fakeResult{ok("flash answer")}, []fakeResult{fail("gemini-pro", 500)}, nil)

	gen, err := f.inv.CompleteWithRetry(context.Background(), "tester", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "flash answer", gen.Text)
	assert.Equal(t, "gemini-flash", gen.Backend)
	assert.Equal(t, 1, f.pro.callCount())
	assert.Equal(t, 1, f.flash.callCount())
}

func TestCompleteWithRetry_BoundedAttempts(t *testing.T) {
	f := newFixture([]fakeResult{fail("gemini-flash", 500)}, []fakeResult{fail("gemini-pro", 500)}, nil)

	_, err := f.inv.CompleteWithRetry(context.Background(), "tester", "prompt")
	require.Error(t, err)
	assert.Equal(t, 2, f.pro.callCount()+f.flash.callCount())
}

func TestCompleteWithRetry_SafetyNotRetried(t *testing.T) {
	safety := fakeResult{err: &BackendError{Class: FailureSafetyBlocked, Backend: "gemini-flash"}}
	f := newFixture([]fakeResult{safety}, []fakeResult{ok("never")}, nil)

	_, err := f.inv.CompleteWithRetry(context.Background(), "planner", "prompt")
	require.Error(t, err)
	assert.Equal(t, 0, f.pro.callCount())
}
