package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/store"
)

// finalize writes the named snapshot and the summary row and builds the
// result. Failures here are logged; they never change the run's status.
func (r *run) finalize(ctx context.Context) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	previous := r.previousRun(ctx)

	r.mu.Lock()
	r.meta.PreviousRunID = previous
	r.meta.Status = r.state
	r.meta.EndedAt = r.e.now()
	r.meta.ElapsedSeconds = r.meta.EndedAt.Sub(r.meta.StartedAt).Seconds()
	if r.haltErr != nil {
		r.meta.HaltError = r.haltErr.Error()
	}
	if r.e.usage != nil {
		u := r.e.usage.Snapshot()
		r.meta.Usage = &u
	}
	meta := r.meta
	haltErr := r.haltErr
	r.mu.Unlock()

	res := &Result{
		Metadata:      meta,
		Record:        r.rec,
		RecordPath:    r.path,
		CouncilReport: r.report,
	}

	snapPath := r.e.cfg.SnapshotPath(r.rec.Name, r.rec.ProjectType)
	if err := project.WriteJSON(snapPath, Snapshot{Workflow: meta, Record: r.rec}); err != nil {
		logging.WorkflowError("failed to write snapshot %s: %v", snapPath, err)
	} else {
		res.SnapshotPath = snapPath
		logging.Workflow("snapshot written: %s", snapPath)
	}

	if r.e.summaries != nil {
		row := store.RunSummary{
			Name:        r.rec.Name,
			Objective:   r.rec.Objective,
			ProjectType: r.rec.ProjectType,
			StartedAt:   meta.StartedAt,
			EndedAt:     meta.EndedAt,
			Status:      string(meta.Status),
			Backend:     r.backendsUsed(),
			RunID:       meta.RunID,
			HaltError:   meta.HaltError,
			Warnings:    len(meta.Warnings),
		}
		if err := r.e.summaries.Upsert(ctx, row); err != nil {
			logging.WorkflowError("failed to record run summary: %v", err)
		}
	}

	logging.Workflow("=== run %s finished: %s in %.1fs (%d warnings) ===",
		meta.RunID, meta.Status, meta.ElapsedSeconds, len(meta.Warnings))

	if haltErr != nil {
		return res, fmt.Errorf("%w: %w", ErrHalted, haltErr)
	}
	return res, nil
}

// backendsUsed lists the backend identities that answered, or the default
// backend when no call succeeded.
func (r *run) backendsUsed() string {
	if r.e.usage != nil {
		by := r.e.usage.Stats().ByBackend
		names := make([]string, 0, len(by))
		for name := range by {
			names = append(names, name)
		}
		if len(names) > 0 {
			sort.Strings(names)
			return strings.Join(names, ",")
		}
	}
	return r.e.cfg.Specialists.Default
}

// previousRun returns the run id of the summary row this run will replace.
func (r *run) previousRun(ctx context.Context) string {
	if r.e.summaries == nil {
		return ""
	}
	prev, ok, err := r.e.summaries.Get(ctx, r.rec.Name)
	if err != nil {
		logging.WorkflowWarn("failed to look up earlier runs of %s: %v", r.rec.Name, err)
		return ""
	}
	if !ok {
		return ""
	}
	logging.Workflow("replacing summary of earlier run %s of %s (%s, ended %s)",
		prev.RunID, prev.Name, prev.Status, prev.EndedAt.Format(time.RFC3339))
	return prev.RunID
}
