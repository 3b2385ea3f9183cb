// Package workflow runs the generation pipeline: analysis, proposal
// gathering, negotiation and the template's remaining steps, persisting the
// project record after every step.
package workflow

import (
	"errors"
	"time"

	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/usage"
)

// ErrHalted wraps the halting error of a run that did not complete.
var ErrHalted = errors.New("workflow halted")

// State is the engine's position in the pipeline.
type State string

const (
	StateInitialized       State = "initialized"
	StateAnalyzing         State = "analyzing"
	StateProposalGathering State = "proposal_gathering"
	StateNegotiating       State = "negotiating"
	StateExecuting         State = "executing"
	StateCompleted         State = "completed"
	StateHalted            State = "halted"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateHalted
}

// Step statuses recorded in the step log.
const (
	StepComplete = "complete"
	StepError    = "error"
	StepSkipped  = "skipped"
	StepPanic    = "panic"
)

// StepRecord is one entry of the step log.
type StepRecord struct {
	Step       string        `json:"step"`
	Specialist string        `json:"specialist"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Errors     []string      `json:"errors,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Reason     string        `json:"reason,omitempty"` // why a step was skipped
}

// Progress is emitted on every transition and step.
type Progress struct {
	State   State
	Step    string
	Message string
	Time    time.Time
}

// ProgressFunc receives progress events. Calls are serialized, including
// during concurrent proposal gathering, so it needs no locking of its own.
type ProgressFunc func(Progress)

// Metadata is the workflow section of the final snapshot.
type Metadata struct {
	RunID          string           `json:"run_id"`
	PreviousRunID  string           `json:"previous_run_id,omitempty"` // earlier run of the same project
	Objective      string           `json:"objective"`
	Template       string           `json:"template,omitempty"`
	Status         State            `json:"status"`
	HaltError      string           `json:"halt_error,omitempty"`
	StartedAt      time.Time        `json:"start_time"`
	EndedAt        time.Time        `json:"end_time"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
	LastSpecialist string           `json:"last_specialist,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Steps          []StepRecord     `json:"steps"`
	StackDiff      string           `json:"stack_diff,omitempty"`
	Usage          *usage.UsageData `json:"token_usage,omitempty"`
}

// Snapshot is the final named artifact of a run.
type Snapshot struct {
	Workflow Metadata        `json:"workflow_metadata"`
	Record   *project.Record `json:"project_context"`
}

// Result is what Run returns to the caller.
type Result struct {
	Metadata
	Record        *project.Record
	RecordPath    string
	SnapshotPath  string // empty when the snapshot could not be written
	CouncilReport string
}

// Elapsed returns the run's wall-clock duration.
func (r *Result) Elapsed() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
