package workflow

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// delegate runs one execution step: skip rules first, then the specialist.
// Warnings are recorded; a non-complete status returns the halting error,
// except for skip-permitted steps where it is downgraded to a warning.
func (r *run) delegate(ctx context.Context, step string) error {
	rule, skippable := skipRules[step]
	if skippable {
		if skip, why := rule(r.rec); skip {
			logging.Workflow("skipping %s: %s", step, why)
			r.appendStep(StepRecord{Step: step, Specialist: stepSpecialist[step], Status: StepSkipped, StartedAt: r.e.now(), Reason: why})
			r.emit(step, "skipped: "+why)
			r.save()
			return nil
		}
	}

	res, ok := r.runStep(ctx, step)
	if ok {
		return nil
	}
	if skippable {
		r.addWarnings(fmt.Sprintf("%s failed (continuing): %s", step, firstError(res)))
		return nil
	}
	return fmt.Errorf("%s failed: %s", step, firstError(res))
}

// runStep runs the step's specialist and commits the outcome.
func (r *run) runStep(ctx context.Context, step string) (project.AgentResult, bool) {
	entry, res := r.execStep(ctx, step)
	r.commitStep(entry, res)
	return res, res.OK()
}

// execStep runs the specialist with panic recovery. It touches no run state
// besides emitting progress, so several may run concurrently.
func (r *run) execStep(ctx context.Context, step string) (StepRecord, project.AgentResult) {
	id := stepSpecialist[step]
	entry := StepRecord{Step: step, Specialist: id, StartedAt: r.e.now()}
	r.emit(step, "running "+id)

	res := r.invoke(ctx, step, id)

	entry.Duration = r.e.now().Sub(entry.StartedAt)
	entry.Errors = res.Errors
	entry.Warnings = res.Warnings
	switch {
	case res.OK():
		entry.Status = StepComplete
	case res.Status == statusPanic:
		entry.Status = StepPanic
	default:
		entry.Status = StepError
	}
	return entry, res
}

// commitStep records the step log entry and warnings, then saves the record.
func (r *run) commitStep(entry StepRecord, res project.AgentResult) {
	r.appendStep(entry)
	r.addWarnings(res.Warnings...)

	r.mu.Lock()
	r.meta.LastSpecialist = entry.Specialist
	r.mu.Unlock()

	r.save()
	if res.OK() {
		r.emit(entry.Step, entry.Specialist+" complete")
	} else {
		r.emit(entry.Step, fmt.Sprintf("%s %s: %s", entry.Specialist, entry.Status, firstError(res)))
	}
}

// statusPanic marks results synthesized from a recovered panic.
const statusPanic project.AgentStatus = "panic"

// invoke calls the specialist. A panic is recovered here, logged with its
// stack, and converted into a failed result.
func (r *run) invoke(ctx context.Context, step, id string) (res project.AgentResult) {
	defer func() {
		if p := recover(); p != nil {
			logging.WorkflowError("PANIC RECOVERED in step %s (%s): %v\n%s", step, id, p, debug.Stack())
			res = project.AgentResult{
				Status: statusPanic,
				Errors: []string{fmt.Sprintf("%s panicked: %v", id, p)},
			}
		}
	}()

	spec, err := r.e.catalogue.Get(id)
	if err != nil {
		return project.Failed("", err.Error())
	}
	return spec.Run(ctx, r.rec)
}

func (r *run) appendStep(s StepRecord) {
	r.mu.Lock()
	r.meta.Steps = append(r.meta.Steps, s)
	r.mu.Unlock()
}
