package shards

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// scriptedInvoker answers each specialist with a fixed reply.
type scriptedInvoker struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	degraded bool
	calls    map[string]int
	tools    map[string]bool
}

func newScripted(replies map[string]string) *scriptedInvoker {
	return &scriptedInvoker{
		replies: replies,
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		tools:   make(map[string]bool),
	}
}

func (s *scriptedInvoker) Invoke(_ context.Context, id, _ string, usesTools bool) (types.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	s.tools[id] = usesTools
	if err := s.errs[id]; err != nil {
		return types.Generation{}, err
	}
	return types.Generation{Text: s.replies[id], Backend: "test", FellBack: s.degraded, Degraded: s.degraded && usesTools}, nil
}

func TestAnalyst_ScenarioA(t *testing.T) {
	inv := newScripted(map[string]string{
		IDAnalyst: "```json\n" + `{"project_name": "Task Manager", "project_type": "web", "requires_frontend": true,
		"platforms": {"web": true, "ios": false, "android": false},
		"key_requirements": ["tasks CRUD", "REST API"], "summary": "tasks",
		"tech_stack_suggestion": {"backend": "Go", "database": "PostgreSQL"}}` + "\n```",
	})
	rec := project.New("Build a task management web app with a REST API")

	res := NewAnalyst(inv).Run(context.Background(), rec)
	require.True(t, res.OK(), res.Errors)

	require.NotNil(t, rec.Platforms)
	assert.Equal(t, project.PlatformRequirements{Web: true}, *rec.Platforms)
	require.NotNil(t, rec.Analysis)
	assert.True(t, rec.Analysis.RequiresFrontend)
	assert.Equal(t, "web", rec.ProjectType)
	assert.Equal(t, "task_manager", rec.Name)
	assert.Equal(t, "PostgreSQL", rec.TechStackSuggestion.Database)
	assert.Equal(t, []string{"tasks CRUD", "REST API"}, rec.Analysis.KeyRequirements)
}

func TestAnalyst_KeywordsOverrideModel(t *testing.T) {
	inv := newScripted(map[string]string{
		IDAnalyst: `{"project_type": "web", "requires_frontend": true, "platforms": {"web": true}}`,
	})
	rec := project.New("Build an Android and iOS recipe app")

	res := NewAnalyst(inv).Run(context.Background(), rec)
	require.True(t, res.OK())
	assert.Equal(t, project.PlatformRequirements{IOS: true, Android: true}, *rec.Platforms)
	assert.Equal(t, "mobile", rec.ProjectType)
	assert.Equal(t, "android_ios_recipe_app", rec.Name)
	assert.NotEmpty(t, res.Warnings)
}

func TestAnalyst_InvalidResponseLeavesFieldsUnset(t *testing.T) {
	inv := newScripted(map[string]string{IDAnalyst: "I cannot help with that."})
	rec := project.New("Build a CLI")

	res := NewAnalyst(inv).Run(context.Background(), rec)
	assert.False(t, res.OK())
	assert.Nil(t, rec.Analysis)
	assert.Nil(t, rec.Platforms)
	assert.Equal(t, project.DefaultName, rec.Name)
	assert.Equal(t, "I cannot help with that.", res.RawResponse)
}

func TestAnalyst_ModelCallError(t *testing.T) {
	inv := newScripted(nil)
	inv.errs[IDAnalyst] = errors.New("quota exceeded")
	rec := project.New("Build a CLI")

	res := NewAnalyst(inv).Run(context.Background(), rec)
	require.False(t, res.OK())
	assert.Contains(t, res.Errors[0], "quota exceeded")
}

func TestProposer_FilesProposals(t *testing.T) {
	inv := newScripted(map[string]string{
		IDArchitect: `Here is my design: {"architecture": "three tier", "proposals": [
			{"category": "database", "technology": "PostgreSQL", "confidence": 0.9, "compatibility_score": 0.8},
			{"category": "web_backend", "technology": "Go", "confidence": "85"},
			{"category": "mobile_database", "technology": "Realm", "confidence": 0.7},
			{"category": "frontend", "technology": "", "confidence": 0.7}
		]}`,
	})
	rec := project.New("Build a web app")

	res := NewArchitect(inv).Run(context.Background(), rec)
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, "three tier", rec.Artifacts.Architecture)
	require.Len(t, rec.Proposals[project.CategoryDatabase], 1)
	db := rec.Proposals[project.CategoryDatabase][0]
	assert.Equal(t, "architect", db.Proponent)
	require.NotNil(t, db.CompatibilityScore)
	assert.InDelta(t, 0.8, *db.CompatibilityScore, 1e-9)
	require.Len(t, rec.Proposals[project.CategoryWebBackend], 1)
	assert.InDelta(t, 0.85, rec.Proposals[project.CategoryWebBackend][0].Confidence, 1e-9)
	assert.Empty(t, rec.Proposals[project.CategoryMobileDatabase])
	assert.Len(t, res.Warnings, 2)
}

func TestProposer_NonFiniteScoresBecomeWarnings(t *testing.T) {
	inv := newScripted(map[string]string{
		IDArchitect: `{"architecture": "two tier", "proposals": [
			{"category": "database", "technology": "PostgreSQL", "confidence": "NaN"},
			{"category": "web_backend", "technology": "Go", "confidence": 0.8, "compatibility_score": "Inf"},
			{"category": "frontend", "technology": "React", "confidence": "-Inf"}
		]}`,
	})
	rec := project.New("Build a web app")

	res := NewArchitect(inv).Run(context.Background(), rec)
	require.True(t, res.OK(), res.Errors)
	assert.Empty(t, rec.Proposals[project.CategoryDatabase])
	assert.Empty(t, rec.Proposals[project.CategoryFrontend])
	require.Len(t, rec.Proposals[project.CategoryWebBackend], 1)
	assert.Nil(t, rec.Proposals[project.CategoryWebBackend][0].CompatibilityScore)
	assert.Len(t, res.Warnings, 3)
	assert.True(t, project.Save(rec, filepath.Join(t.TempDir(), "project_context.json")))
}

func TestProposer_NoValidProposalsIsError(t *testing.T) {
	inv := newScripted(map[string]string{
		IDMobile: `{"mobile_architecture": "offline first", "proposals": [{"category": "database", "technology": "MySQL", "confidence": 0.9}]}`,
	})
	rec := project.New("Build an Android app")

	res := NewMobile(inv).Run(context.Background(), rec)
	assert.False(t, res.OK())
	assert.Empty(t, rec.Artifacts.MobileArchitecture)
}

func TestProposer_FrozenRecordRejects(t *testing.T) {
	inv := newScripted(map[string]string{
		IDMobile: `{"proposals": [{"category": "mobile_database", "technology": "RoomDB", "confidence": 0.6}]}`,
	})
	rec := project.New("Build an Android app")
	rec.FreezeProposals()

	res := NewMobile(inv).Run(context.Background(), rec)
	assert.False(t, res.OK())
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "frozen")
}

func TestWriters(t *testing.T) {
	tests := []struct {
		name   string
		spec   func(types.Invoker) *Writer
		reply  string
		get    func(project.Artifacts) string
		want   string
		wantOK bool
	}{
		{"planner string", NewPlanner, `{"plan": "1. scaffold\n2. build"}`, func(a project.Artifacts) string { return a.Plan }, "1. scaffold\n2. build", true},
		{"planner object", NewPlanner, `{"plan": ["scaffold"]}`, func(a project.Artifacts) string { return a.Plan }, "[\n  \"scaffold\"\n]", true},
		{"api designer", NewAPIDesigner, `{"api_spec": "GET /tasks"}`, func(a project.Artifacts) string { return a.APISpec }, "GET /tasks", true},
		{"frontend missing key", NewFrontend, `{"spec": "pages"}`, func(a project.Artifacts) string { return a.FrontendSpec }, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.spec(nil)
			spec.invoker = newScripted(map[string]string{spec.Name(): tt.reply})
			rec := project.New("Build a web app")
			res := spec.Run(context.Background(), rec)
			assert.Equal(t, tt.wantOK, res.OK())
			assert.Equal(t, tt.want, tt.get(rec.Artifacts))
		})
	}
}

// completingInvoker also offers the retry path.
type completingInvoker struct {
	*scriptedInvoker
	completed map[string]int
}

func (c *completingInvoker) CompleteWithRetry(ctx context.Context, id, prompt string) (types.Generation, error) {
	c.completed[id]++
	return c.Invoke(ctx, id, prompt, false)
}

func TestWriters_PreferRetryPath(t *testing.T) {
	inv := &completingInvoker{
		scriptedInvoker: newScripted(map[string]string{
			IDPlanner: `{"plan": "scaffold"}`,
			IDCoder:   `{"files": [{"path": "main.go", "content": "package main\n"}]}`,
		}),
		completed: make(map[string]int),
	}
	rec := project.New("Build a CLI")

	require.True(t, NewPlanner(inv).Run(context.Background(), rec).OK())
	require.True(t, NewCoder(inv).Run(context.Background(), rec).OK())

	assert.Equal(t, 1, inv.completed[IDPlanner])
	assert.Zero(t, inv.completed[IDCoder], "tool-using specialists stay on Invoke")
	assert.Equal(t, "scaffold", rec.Artifacts.Plan)
}

func TestCoder(t *testing.T) {
	inv := newScripted(map[string]string{
		IDCoder: `{"files": [{"path": "main.go", "content": "package main\n"}, {"path": "", "content": "x"}], "summary": "done"}`,
	})
	rec := project.New("Build a CLI")
	rec.Artifacts.LatestError = "old"

	res := NewCoder(inv).Run(context.Background(), rec)
	require.True(t, res.OK())
	assert.True(t, inv.tools[IDCoder])
	assert.Equal(t, "=== main.go ===\npackage main\n", rec.Artifacts.LatestCode)
	assert.Empty(t, rec.Artifacts.LatestError)
	assert.Len(t, res.Warnings, 1)
}

func TestCoder_FailureRecordsLatestError(t *testing.T) {
	inv := newScripted(map[string]string{IDCoder: `{"files": []}`})
	rec := project.New("Build a CLI")

	res := NewCoder(inv).Run(context.Background(), rec)
	assert.False(t, res.OK())
	assert.Contains(t, rec.Artifacts.LatestError, "no usable files")
}

func TestCoder_DegradedFallbackWarns(t *testing.T) {
	inv := newScripted(map[string]string{IDCoder: `{"files": [{"path": "a.py", "content": "print(1)"}]}`})
	inv.degraded = true
	rec := project.New("Build a CLI")

	res := NewCoder(inv).Run(context.Background(), rec)
	require.True(t, res.OK())
	assert.Contains(t, res.Warnings, "coder ran without tool support")
}

func TestTester(t *testing.T) {
	t.Run("no code", func(t *testing.T) {
		inv := newScripted(nil)
		res := NewTester(inv).Run(context.Background(), project.New("x"))
		assert.False(t, res.OK())
		assert.Zero(t, inv.calls[IDTester])
	})
	t.Run("failing tests warn", func(t *testing.T) {
		inv := newScripted(map[string]string{IDTester: `{"passed": false, "report": "1 failed", "failures": ["TestAdd"]}`})
		rec := project.New("x")
		rec.Artifacts.LatestCode = "code"
		res := NewTester(inv).Run(context.Background(), rec)
		require.True(t, res.OK())
		assert.Equal(t, "1 failed", rec.Artifacts.TestReport)
		assert.Equal(t, "TestAdd", rec.Artifacts.LatestError)
		assert.Equal(t, []string{"test failure: TestAdd"}, res.Warnings)
	})
	t.Run("missing verdict", func(t *testing.T) {
		inv := newScripted(map[string]string{IDTester: `{"report": "?"}`})
		rec := project.New("x")
		rec.Artifacts.LatestCode = "code"
		res := NewTester(inv).Run(context.Background(), rec)
		assert.False(t, res.OK())
		assert.Empty(t, rec.Artifacts.TestReport)
	})
}

func TestDebugger(t *testing.T) {
	inv := newScripted(map[string]string{
		IDDebugger: `{"diagnosis": "missing import", "fixed": true, "files": [{"path": "main.go", "content": "package main"}]}`,
	})
	rec := project.New("x")
	rec.Artifacts.LatestError = "undefined: fmt"

	res := NewDebugger(inv).Run(context.Background(), rec)
	require.True(t, res.OK())
	assert.Empty(t, rec.Artifacts.LatestError)
	assert.Equal(t, "=== main.go ===\npackage main\n", rec.Artifacts.LatestCode)
	assert.Contains(t, res.Warnings, "debugger diagnosis: missing import")
}

func TestCatalogue(t *testing.T) {
	c := DefaultCatalogue(newScripted(nil))
	assert.Equal(t, []string{
		IDAnalyst, IDAPIDesigner, IDArchitect, IDCoder, IDDebugger,
		IDFrontend, IDMobile, IDPlanner, IDTester,
	}, c.Names())

	s, err := c.Get(IDCoder)
	require.NoError(t, err)
	assert.Equal(t, IDCoder, s.Name())

	_, err = c.Get("reviewer")
	assert.Error(t, err)
}
