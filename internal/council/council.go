package council

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/config"
	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// ErrNegotiationFailed is returned when consensus is not reached or the
// approved stack has blocking conflicts.
var ErrNegotiationFailed = errors.New("negotiation failed")

// Council runs the negotiation over a record's proposals.
type Council struct {
	thresholds Thresholds
	registry   *Registry
}

// New creates a council using the thresholds from cfg and the default
// validator registry.
func New(cfg *config.Config) *Council {
	th := DefaultThresholds()
	if cfg != nil {
		th = Thresholds{HybridGap: cfg.Council.HybridGap, ReviewThreshold: cfg.Council.ReviewThreshold}
	}
	return NewWithRegistry(th, DefaultRegistry())
}

// NewWithRegistry creates a council with explicit thresholds and validators.
func NewWithRegistry(th Thresholds, reg *Registry) *Council {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Council{thresholds: th, registry: reg}
}

// Thresholds returns the council's thresholds.
func (c *Council) Thresholds() Thresholds { return c.thresholds }

// Outcome is everything a negotiation produced.
type Outcome struct {
	Resolutions []Resolution
	Hybrids     map[project.Category]HybridResult
	Stack       map[project.Category]string
	Rationale   project.DecisionRationale
	Dependency  project.DependencyCheck
	Consensus   project.ConsensusOutcome
}

// Approved reports whether the stack passed both the dependency check and
// consensus.
func (o *Outcome) Approved() bool {
	return o.Consensus.Achieved && len(o.Dependency.Conflicts) == 0
}

// Warnings returns every non-blocking note: review notes then advisories.
func (o *Outcome) Warnings() []string {
	var out []string
	for _, cat := range project.KnownCategories {
		r, ok := o.Rationale.Categories[cat]
		if !ok {
			continue
		}
		out = append(out, r.ReviewNotes...)
	}
	return append(out, o.Dependency.Warnings...)
}

// Negotiate freezes the record's proposals and runs conflict resolution,
// hybrid synthesis, the dependency check and the consensus poll. The record's
// approved stack is replaced wholesale and its rationale recorded even when
// negotiation fails, so the snapshot shows what was rejected.
func (c *Council) Negotiate(ctx context.Context, rec *project.Record) (*Outcome, error) {
	timer := logging.StartTimer(logging.CategoryCouncil, "Negotiate")
	defer timer.Stop()

	proposals := rec.FreezeProposals()
	var platforms project.PlatformRequirements
	if rec.Platforms != nil {
		platforms = *rec.Platforms
	}

	out := &Outcome{
		Hybrids: make(map[project.Category]HybridResult),
		Stack:   make(map[project.Category]string),
		Rationale: project.DecisionRationale{
			Categories: make(map[project.Category]project.CategoryRationale),
		},
	}

	for _, cat := range project.KnownCategories {
		res := ResolveCategory(cat, proposals[cat], c.thresholds)
		out.Resolutions = append(out.Resolutions, res)
		rat := project.CategoryRationale{Decision: res.Decision, Reason: res.Reason, ReviewNotes: res.ReviewNotes}

		switch res.Decision {
		case project.DecisionNoProposal:
			logging.CouncilDebug("%s: no proposal, leaving unset", cat)
		case project.DecisionUseProposal:
			rat.Technology = res.Selected.Technology
			rat.Justification = res.Selected.Justification
			logging.Council("%s: %s (%s, confidence %.2f)", cat, rat.Technology, res.Reason, res.Selected.Confidence)
		case project.DecisionNeedsHybrid:
			h := Synthesize(res, c.thresholds)
			out.Hybrids[cat] = h
			rat.Technology = h.Technology
			rat.Decision = h.Decision
			rat.Reason = fmt.Sprintf("%s; %s", res.Reason, h.Reason)
			rat.Justification = h.IntegrationPoint
			rat.ReviewNotes = h.ReviewNotes
			logging.Council("%s: %s via %s", cat, h.Technology, h.Reason)
		}

		if rat.Technology != "" {
			out.Stack[cat] = rat.Technology
		}
		out.Rationale.Categories[cat] = rat
	}

	out.Dependency = CheckDependencies(out.Stack)
	for _, conflict := range out.Dependency.Conflicts {
		logging.CouncilWarn("dependency conflict: %s", FormatConflict(conflict))
	}

	validators := c.registry.Select(platforms)
	out.Consensus = PollValidators(ctx, validators, out.Stack, platforms)

	dep := out.Dependency
	consensus := out.Consensus
	out.Rationale.DependencyCheck = &dep
	out.Rationale.Consensus = &consensus

	rec.ReplaceApprovedStack(out.Stack)
	rec.Rationale = out.Rationale

	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	if !out.Approved() {
		return out, fmt.Errorf("%w: %s", ErrNegotiationFailed, failureSummary(out))
	}
	logging.Council("negotiation complete: %d categories approved by %d validators", len(out.Stack), len(validators))
	return out, nil
}

func failureSummary(o *Outcome) string {
	var parts []string
	for _, conflict := range o.Dependency.Conflicts {
		parts = append(parts, "conflict: "+FormatConflict(conflict))
	}
	if !o.Consensus.Achieved {
		if len(o.Consensus.Concerns) == 0 {
			parts = append(parts, "consensus not achieved")
		}
		parts = append(parts, o.Consensus.Concerns...)
	}
	return strings.Join(parts, "; ")
}
