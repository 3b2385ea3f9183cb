package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/council"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/shards"
	"github.com/Qnatz/Qrews-sub000/internal/store"
	"github.com/Qnatz/Qrews-sub000/internal/types"
	"github.com/Qnatz/Qrews-sub000/internal/usage"
)

// scriptedInvoker answers each specialist with a fixed reply.
type scriptedInvoker struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
}

func (s *scriptedInvoker) Invoke(_ context.Context, id, _ string, _ bool) (types.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	reply, ok := s.replies[id]
	if !ok {
		return types.Generation{}, errors.New("no scripted reply for " + id)
	}
	return types.Generation{Text: reply, Backend: "gemini-flash", Usage: types.UsageMetadata{InputTokens: 10, OutputTokens: 5}}, nil
}

func (s *scriptedInvoker) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

type recordedSummaries struct {
	rows []store.RunSummary
}

func (r *recordedSummaries) Get(_ context.Context, name string) (store.RunSummary, bool, error) {
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].Name == name {
			return r.rows[i], true, nil
		}
	}
	return store.RunSummary{}, false, nil
}

func (r *recordedSummaries) Upsert(_ context.Context, row store.RunSummary) error {
	r.rows = append(r.rows, row)
	return nil
}

// panicSpecialist stands in for a specialist that crashes.
type panicSpecialist struct{ name string }

func (p panicSpecialist) Name() string { return p.name }
func (p panicSpecialist) Run(context.Context, *project.Record) project.AgentResult {
	panic("boom")
}

const webObjective = "Build a task management web app with a REST API"

func webReplies() map[string]string {
	return map[string]string{
		shards.IDAnalyst: `{"project_name": "task manager", "project_type": "web", "requires_frontend": true,
			"platforms": {"web": true}, "key_requirements": ["tasks"]}`,
		shards.IDArchitect: `{"architecture": "three tier", "proposals": [
			{"category": "database", "technology": "PostgreSQL", "confidence": 0.9},
			{"category": "web_backend", "technology": "Go", "confidence": 0.9},
			{"category": "frontend", "technology": "React", "confidence": 0.85}]}`,
		shards.IDPlanner:     `{"plan": "1. api 2. ui"}`,
		shards.IDAPIDesigner: `{"api_spec": "GET /tasks"}`,
		shards.IDFrontend:    `{"frontend_spec": "task list page"}`,
		shards.IDCoder:       `{"files": [{"path": "main.go", "content": "package main"}]}`,
		shards.IDTester:      `{"passed": true, "report": "all green"}`,
		shards.IDDebugger:    `{"diagnosis": "bad import", "fixed": false}`,
	}
}

func mobileReplies() map[string]string {
	return map[string]string{
		shards.IDAnalyst: `{"project_name": "habit tracker", "requires_frontend": false,
			"platforms": {"android": true}, "key_requirements": ["habits"]}`,
		shards.IDArchitect: `{"architecture": "sync service", "proposals": [
			{"category": "database", "technology": "PostgreSQL", "confidence": 0.9}]}`,
		shards.IDMobile: `{"mobile_architecture": "offline first", "proposals": [
			{"category": "mobile_database", "technology": "RoomDB", "confidence": 0.9},
			{"category": "mobile_framework", "technology": "Kotlin", "confidence": 0.9}]}`,
		shards.IDPlanner: `{"plan": "1. app"}`,
		shards.IDCoder:   `{"files": [{"path": "App.kt", "content": "class App"}]}`,
		shards.IDTester:  `{"passed": true}`,
	}
}

type harness struct {
	cfg       *config.Config
	inv       *scriptedInvoker
	catalogue *shards.Catalogue
	summaries *recordedSummaries
	usage     *usage.Tracker
	progress  []Progress
	engine    *Engine
}

func newHarness(t *testing.T, replies map[string]string) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.OutputDir = t.TempDir()

	h := &harness{
		cfg:       cfg,
		inv:       &scriptedInvoker{replies: replies, calls: make(map[string]int)},
		summaries: &recordedSummaries{},
		usage:     usage.NewTracker("run-test"),
	}
	h.catalogue = shards.DefaultCatalogue(recordingInvoker{h.inv, h.usage})

	var mu sync.Mutex
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	engine, err := New(Options{
		Config:    cfg,
		Catalogue: h.catalogue,
		Summaries: h.summaries,
		Usage:     h.usage,
		Progress: func(p Progress) {
			mu.Lock()
			h.progress = append(h.progress, p)
			mu.Unlock()
		},
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

// recordingInvoker feeds successful generations to the usage tracker the
// way the real invoker does.
type recordingInvoker struct {
	inner *scriptedInvoker
	usage *usage.Tracker
}

func (r recordingInvoker) Invoke(ctx context.Context, id, prompt string, tools bool) (types.Generation, error) {
	gen, err := r.inner.Invoke(ctx, id, prompt, tools)
	if err == nil {
		r.usage.Record(id, gen)
	}
	return gen, err
}

func (h *harness) states() []State {
	var out []State
	for _, p := range h.progress {
		if p.Step == "" {
			out = append(out, p.State)
		}
	}
	return out
}

func stepNames(steps []StepRecord) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Step
	}
	return out
}

func TestRun_WebProjectCompletes(t *testing.T) {
	h := newHarness(t, webReplies())

	res, err := h.engine.Run(context.Background(), webObjective)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.Status)
	assert.Equal(t, TemplateWeb, res.Template)
	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, []string{
		StepAnalysis, StepArchitecture, StepPlanner, StepAPIDesigner, StepFrontend, StepCoder, StepTester,
	}, stepNames(res.Steps))
	assert.Equal(t, []State{
		StateInitialized, StateAnalyzing, StateProposalGathering, StateNegotiating, StateExecuting, StateCompleted,
	}, h.states())
	assert.Equal(t, shards.IDTester, res.LastSpecialist)
	assert.Contains(t, res.CouncilReport, "APPROVED")
	assert.Contains(t, res.StackDiff, "+web_backend: Go")
	require.NotNil(t, res.Usage)
	assert.Equal(t, 7, res.Usage.Aggregate.Calls)

	rec := res.Record
	assert.Equal(t, "task_manager", rec.Name)
	assert.Equal(t, "Go", rec.ApprovedStack[project.CategoryWebBackend])
	assert.Equal(t, "all green", rec.Artifacts.TestReport)

	want := filepath.Join(h.cfg.Paths.OutputDir, "task_manager_web_context_snapshot.json")
	assert.Equal(t, want, res.SnapshotPath)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	var snap struct {
		Workflow struct {
			Status    string `json:"status"`
			Objective string `json:"objective"`
		} `json:"workflow_metadata"`
		Record struct {
			Name string `json:"project_name"`
		} `json:"project_context"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "completed", snap.Workflow.Status)
	assert.Equal(t, webObjective, snap.Workflow.Objective)
	assert.Equal(t, "task_manager", snap.Record.Name)

	saved := project.Load(h.cfg.RecordPath())
	assert.Equal(t, "Go", saved.ApprovedStack[project.CategoryWebBackend])

	require.Len(t, h.summaries.rows, 1)
	row := h.summaries.rows[0]
	assert.Equal(t, "task_manager", row.Name)
	assert.Equal(t, "completed", row.Status)
	assert.Equal(t, "gemini-flash", row.Backend)
}

func TestRun_AnalysisFailureHalts(t *testing.T) {
	replies := webReplies()
	replies[shards.IDAnalyst] = "no json here"
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), webObjective)
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, StateHalted, res.Status)
	assert.Contains(t, res.HaltError, "analysis failed")
	assert.Equal(t, []string{StepAnalysis}, stepNames(res.Steps))
	assert.Zero(t, h.inv.count(shards.IDArchitect))
	assert.Equal(t, filepath.Join(h.cfg.Paths.OutputDir, "new_project_unknown_context_snapshot.json"), res.SnapshotPath)
	assert.FileExists(t, res.SnapshotPath)
	require.Len(t, h.summaries.rows, 1)
	assert.Equal(t, "halted", h.summaries.rows[0].Status)
}

func TestRun_NegotiationFailureHaltsBeforeExecution(t *testing.T) {
	replies := webReplies()
	replies[shards.IDArchitect] = `{"architecture": "db only", "proposals": [
		{"category": "database", "technology": "PostgreSQL", "confidence": 0.9}]}`
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), webObjective)
	require.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, council.ErrNegotiationFailed)
	assert.Contains(t, res.HaltError, "web_backend")
	assert.Zero(t, h.inv.count(shards.IDPlanner))
	assert.Contains(t, res.CouncilReport, "REJECTED")
	require.NotNil(t, res.Record.Rationale.Consensus)
	assert.False(t, res.Record.Rationale.Consensus.Achieved)
}

func TestRun_CoderFailureRunsDebuggerOnce(t *testing.T) {
	replies := webReplies()
	replies[shards.IDCoder] = `{"files": []}`
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), webObjective)
	require.ErrorIs(t, err, ErrHalted)
	assert.Contains(t, res.HaltError, "coder failed")
	assert.Equal(t, 1, h.inv.count(shards.IDDebugger))
	assert.Zero(t, h.inv.count(shards.IDTester))
	assert.Equal(t, shards.IDDebugger, res.LastSpecialist)
	assert.Contains(t, res.Warnings, "debugger diagnosis: bad import")
}

func TestRun_CoderFailureHaltsEvenWhenDebuggerFails(t *testing.T) {
	replies := webReplies()
	replies[shards.IDCoder] = `{"files": []}`
	delete(replies, shards.IDDebugger)
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), webObjective)
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, 1, h.inv.count(shards.IDDebugger))
	assert.Equal(t, StateHalted, res.Status)
}

func TestRun_SkipPermittedFailureIsWarning(t *testing.T) {
	replies := webReplies()
	replies[shards.IDFrontend] = `{"nothing": true}`
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), webObjective)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.Status)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "frontend failed (continuing)")
}

func TestRun_TesterFailureHalts(t *testing.T) {
	replies := webReplies()
	replies[shards.IDTester] = `{"report": "no verdict"}`
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), webObjective)
	require.ErrorIs(t, err, ErrHalted)
	assert.Contains(t, res.HaltError, "tester failed")
	assert.Zero(t, h.inv.count(shards.IDDebugger))
}

func TestRun_PanicIsRecoveredAndHalts(t *testing.T) {
	h := newHarness(t, webReplies())
	h.catalogue.Register(panicSpecialist{name: shards.IDPlanner})

	res, err := h.engine.Run(context.Background(), webObjective)
	require.ErrorIs(t, err, ErrHalted)
	assert.Contains(t, res.HaltError, "planner panicked: boom")
	last := res.Steps[len(res.Steps)-1]
	assert.Equal(t, StepPlanner, last.Step)
	assert.Equal(t, StepPanic, last.Status)
}

func TestRun_MobileProjectGathersConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, mobileReplies())
	require.True(t, h.cfg.Workflow.ParallelProposals)

	res, err := h.engine.Run(context.Background(), "Build an Android app for tracking habits")
	require.NoError(t, err)

	assert.Equal(t, TemplateMobile, res.Template)
	assert.Equal(t, "mobile", res.Record.ProjectType)
	assert.Equal(t, []string{
		StepAnalysis, StepArchitecture, StepMobile, StepPlanner, StepAPIDesigner, StepCoder, StepTester,
	}, stepNames(res.Steps))
	assert.Equal(t, StepSkipped, res.Steps[4].Status)
	assert.Zero(t, h.inv.count(shards.IDAPIDesigner))
	assert.Equal(t, "offline first", res.Record.Artifacts.MobileArchitecture)
	assert.Equal(t, "RoomDB", res.Record.ApprovedStack[project.CategoryMobileDatabase])
	assert.True(t, res.Record.ProposalsFrozen)
}

func TestRun_ProgressCallsAreSerialized(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, mobileReplies())
	var inFlight, overlaps atomic.Int32
	engine, err := New(Options{
		Config:    h.cfg,
		Catalogue: h.catalogue,
		Progress: func(Progress) {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		},
	})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), "Build an Android app for tracking habits")
	require.NoError(t, err)
	assert.Zero(t, overlaps.Load())
}

func TestRun_MobileGatheringFailureHalts(t *testing.T) {
	defer goleak.VerifyNone(t)

	replies := map[string]string{
		shards.IDAnalyst:   `{"requires_frontend": false, "platforms": {"ios": true}}`,
		shards.IDArchitect: `{"proposals": [{"category": "database", "technology": "PostgreSQL", "confidence": 0.9}]}`,
		shards.IDMobile:    `not json`,
	}
	h := newHarness(t, replies)

	res, err := h.engine.Run(context.Background(), "Build an iOS journaling app")
	require.ErrorIs(t, err, ErrHalted)
	assert.Contains(t, res.HaltError, "proposal gathering failed")
	assert.Contains(t, res.HaltError, "mobile")
	assert.Equal(t, []string{StepAnalysis, StepArchitecture, StepMobile}, stepNames(res.Steps))
}

func TestRun_PreviousStackDiff(t *testing.T) {
	h := newHarness(t, webReplies())
	prev := project.New("old run")
	prev.ApprovedStack[project.CategoryWebBackend] = "Django"
	require.True(t, project.Save(prev, h.cfg.RecordPath()))

	res, err := h.engine.Run(context.Background(), webObjective)
	require.NoError(t, err)
	assert.Contains(t, res.StackDiff, "-web_backend: Django")
	assert.Contains(t, res.StackDiff, "+web_backend: Go")
}

func TestRun_RecordsPreviousRunOfSameProject(t *testing.T) {
	h := newHarness(t, webReplies())
	h.summaries.rows = []store.RunSummary{{Name: "task_manager", RunID: "run-earlier", Status: "halted"}}

	res, err := h.engine.Run(context.Background(), webObjective)
	require.NoError(t, err)
	assert.Equal(t, "run-earlier", res.PreviousRunID)
	require.Len(t, h.summaries.rows, 2)
	assert.Equal(t, "run-test", h.summaries.rows[1].RunID)
}

func TestTransition_TerminalStateIsFinal(t *testing.T) {
	h := newHarness(t, webReplies())
	r := h.engine.newRun(webObjective)

	r.transition(StateCompleted, "done")
	r.transition(StateExecuting, "late step")
	assert.False(t, r.halt(errors.New("late failure")))

	assert.Equal(t, StateCompleted, r.state)
	assert.NoError(t, r.haltErr)
	assert.Equal(t, []State{StateCompleted}, h.states())
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Config: config.DefaultConfig()})
	assert.Error(t, err)
}
