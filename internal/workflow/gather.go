package workflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// proposalSteps returns the gathering steps for the record: architecture
// always, mobile only when iOS or Android is required.
func proposalSteps(rec *project.Record) []string {
	steps := []string{StepArchitecture}
	if rec.RequiresMobile() {
		steps = append(steps, StepMobile)
	}
	return steps
}

// gatherProposals runs the proposal specialists, concurrently when enabled.
// Each specialist appends through Record.AddProposal; results are committed
// in step order after the join so the step log is deterministic.
func (r *run) gatherProposals(ctx context.Context) bool {
	steps := proposalSteps(r.rec)
	entries := make([]StepRecord, len(steps))
	results := make([]project.AgentResult, len(steps))

	if r.e.cfg.Workflow.ParallelProposals && len(steps) > 1 {
		logging.WorkflowDebug("gathering proposals concurrently: %v", steps)
		g, gctx := errgroup.WithContext(ctx)
		for i, step := range steps {
			g.Go(func() error {
				entries[i], results[i] = r.execStep(gctx, step)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, step := range steps {
			entries[i], results[i] = r.execStep(ctx, step)
			if !results[i].OK() {
				steps, entries, results = steps[:i+1], entries[:i+1], results[:i+1]
				break
			}
		}
	}

	var failed []string
	for i := range steps {
		r.commitStep(entries[i], results[i])
		if !results[i].OK() {
			failed = append(failed, fmt.Sprintf("%s: %s", steps[i], firstError(results[i])))
		}
	}
	if len(failed) > 0 {
		return r.halt(fmt.Errorf("proposal gathering failed: %s", strings.Join(failed, "; ")))
	}
	return true
}
