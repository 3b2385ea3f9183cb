package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/council"
	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/shards"
	"github.com/Qnatz/Qrews-sub000/internal/store"
	"github.com/Qnatz/Qrews-sub000/internal/usage"
)

// SummaryRecorder stores one summary row per run, keyed by project name.
type SummaryRecorder interface {
	Get(ctx context.Context, name string) (store.RunSummary, bool, error)
	Upsert(ctx context.Context, r store.RunSummary) error
}

// Options configures an Engine.
type Options struct {
	Config    *config.Config
	Catalogue *shards.Catalogue
	Council   *council.Council // defaults to council.New(Config)
	Summaries SummaryRecorder  // optional
	Usage     *usage.Tracker   // optional; its run id is reused
	Progress  ProgressFunc     // optional
	Now       func() time.Time // optional; defaults to time.Now
}

// Engine runs the pipeline. One Engine may run several objectives in
// sequence; runs do not share state.
type Engine struct {
	cfg       *config.Config
	catalogue *shards.Catalogue
	council   *council.Council
	summaries SummaryRecorder
	usage     *usage.Tracker
	progress  ProgressFunc
	now       func() time.Time
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("workflow: config is required")
	}
	if opts.Catalogue == nil {
		return nil, fmt.Errorf("workflow: specialist catalogue is required")
	}
	e := &Engine{
		cfg:       opts.Config,
		catalogue: opts.Catalogue,
		council:   opts.Council,
		summaries: opts.Summaries,
		usage:     opts.Usage,
		progress:  opts.Progress,
		now:       opts.Now,
	}
	if e.council == nil {
		e.council = council.New(opts.Config)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// run is the state of one pipeline execution.
type run struct {
	e    *Engine
	rec  *project.Record
	path string

	mu        sync.Mutex
	emitMu    sync.Mutex // serializes progress callbacks
	state     State
	meta      Metadata
	report    string
	haltErr   error
	prevStack map[project.Category]string
}

// Run executes the pipeline for objective. The returned result is always
// non-nil; the error wraps ErrHalted when the run did not complete.
func (e *Engine) Run(ctx context.Context, objective string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryWorkflow, "Run")
	defer timer.Stop()

	r := e.newRun(objective)
	logging.Workflow("=== starting run %s: %q ===", r.meta.RunID, objective)

	r.transition(StateInitialized, "project record created")
	r.execute(ctx)
	return r.finalize(ctx)
}

func (e *Engine) newRun(objective string) *run {
	runID := ""
	if e.usage != nil {
		runID = e.usage.Snapshot().RunID
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	path := e.cfg.RecordPath()
	prev := project.Load(path)

	return &run{
		e:         e,
		rec:       project.New(objective),
		path:      path,
		prevStack: prev.ApprovedStack,
		meta: Metadata{
			RunID:     runID,
			Objective: objective,
			StartedAt: e.now(),
		},
	}
}

// execute drives the state machine until a terminal state.
func (r *run) execute(ctx context.Context) {
	r.transition(StateAnalyzing, "running analysis")
	if !r.analyze(ctx) {
		return
	}

	r.transition(StateProposalGathering, "gathering technology proposals")
	if !r.gatherProposals(ctx) {
		return
	}

	r.transition(StateNegotiating, "tech council negotiating")
	if !r.negotiate(ctx) {
		return
	}

	r.transition(StateExecuting, fmt.Sprintf("executing %s template", r.meta.Template))
	if !r.executeSteps(ctx) {
		return
	}

	r.transition(StateCompleted, "all steps finished")
}

func (r *run) analyze(ctx context.Context) bool {
	res, ok := r.runStep(ctx, StepAnalysis)
	if !ok {
		return r.halt(fmt.Errorf("analysis failed: %s", firstError(res)))
	}
	if r.rec.Analysis == nil || r.rec.Platforms == nil {
		return r.halt(fmt.Errorf("analysis left required fields unset"))
	}
	r.meta.Template = SelectTemplate(*r.rec.Platforms, r.rec.NeedsFrontend())
	logging.Workflow("project %s: type=%s template=%s", r.rec.Name, r.rec.ProjectType, r.meta.Template)
	return true
}

func (r *run) negotiate(ctx context.Context) bool {
	outcome, err := r.e.council.Negotiate(ctx, r.rec)
	if outcome != nil {
		r.report = outcome.FormatReport()
		r.addWarnings(outcome.Warnings()...)
	}
	r.meta.StackDiff = council.StackDiff(r.prevStack, r.rec.ApprovedStack)
	if r.meta.StackDiff != "" {
		logging.Workflow("approved stack changed since the previous run:\n%s", r.meta.StackDiff)
	}
	r.save()
	if err != nil {
		return r.halt(err)
	}
	return true
}

// executeSteps runs the template's remaining steps in order.
func (r *run) executeSteps(ctx context.Context) bool {
	for _, step := range RemainingSteps(r.meta.Template) {
		if err := ctx.Err(); err != nil {
			return r.halt(fmt.Errorf("cancelled before %s: %w", step, err))
		}
		err := r.delegate(ctx, step)
		if err == nil {
			continue
		}
		if step == StepCoder {
			r.debugOnce(ctx)
		}
		return r.halt(err)
	}
	return true
}

// debugOnce runs exactly one debugger pass after a failed coder step.
// Its outcome never changes the halt.
func (r *run) debugOnce(ctx context.Context) {
	logging.Workflow("coder failed, running one debugger pass")
	r.emit(StepDebugger, "debugging failed coder output")
	res, ok := r.runStep(ctx, StepDebugger)
	if !ok {
		r.addWarnings(fmt.Sprintf("debugger pass failed: %s", firstError(res)))
	}
}

// transition moves to state, persists the record and emits progress.
// Terminal states are final; later transitions are ignored.
func (r *run) transition(state State, msg string) {
	r.mu.Lock()
	from := r.state
	if from.Terminal() {
		r.mu.Unlock()
		logging.WorkflowWarn("ignoring transition %s -> %s: run already %s", from, state, from)
		return
	}
	r.state = state
	r.mu.Unlock()

	logging.WorkflowDebug("transition %s -> %s: %s", from, state, msg)
	r.save()
	r.emit("", msg)
}

// halt records the halting error and moves to Halted. Always returns false.
func (r *run) halt(err error) bool {
	r.mu.Lock()
	if r.state.Terminal() {
		state := r.state
		r.mu.Unlock()
		logging.WorkflowWarn("not halting with %v: run already %s", err, state)
		return false
	}
	r.haltErr = err
	r.mu.Unlock()
	logging.WorkflowError("halting: %v", err)
	r.transition(StateHalted, err.Error())
	return false
}

func (r *run) save() {
	if !project.Save(r.rec, r.path) {
		logging.WorkflowWarn("record could not be saved to %s", r.path)
	}
}

func (r *run) emit(step, msg string) {
	if r.e.progress == nil {
		return
	}
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()
	r.e.progress(Progress{State: state, Step: step, Message: msg, Time: r.e.now()})
}

func (r *run) addWarnings(ws ...string) {
	if len(ws) == 0 {
		return
	}
	r.mu.Lock()
	r.meta.Warnings = append(r.meta.Warnings, ws...)
	r.mu.Unlock()
}

func firstError(res project.AgentResult) string {
	if len(res.Errors) > 0 {
		return res.Errors[0]
	}
	return fmt.Sprintf("status %s", res.Status)
}
