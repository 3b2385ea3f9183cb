// Package council implements the tech council: it reconciles competing
// technology proposals into one approved stack, checks the stack for
// cross-technology incompatibilities, and requires validator sign-off.
package council

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// Reasons recorded on resolutions.
const (
	ReasonNoProposal     = "no proposal"
	ReasonSingleProposal = "single proposal"
	ReasonConfidenceGap  = "confidence gap"
	ReasonTooClose       = "confidence too close"
)

// gapEpsilon absorbs float error so a gap of exactly the threshold
// (0.8 - 0.65) counts as "not exceeding" it.
const gapEpsilon = 1e-9

// Thresholds are the negotiation thresholds.
type Thresholds struct {
	HybridGap       float64
	ReviewThreshold float64
}

// DefaultThresholds returns the standard 0.15 gap / 0.8 review thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{HybridGap: 0.15, ReviewThreshold: 0.8}
}

// Resolution is the conflict-resolution result for one category.
type Resolution struct {
	Category    project.Category
	Decision    project.Decision
	Reason      string
	Selected    *project.Proposal
	Ranked      []project.Proposal // confidence desc, ties by technology name
	ReviewNotes []string
}

// RankProposals returns a sorted copy: confidence descending, ties broken by
// technology name then proponent so input order never matters.
func RankProposals(proposals []project.Proposal) []project.Proposal {
	ranked := append([]project.Proposal(nil), proposals...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		an, bn := strings.ToLower(a.Technology), strings.ToLower(b.Technology)
		if an != bn {
			return an < bn
		}
		return a.Proponent < b.Proponent
	})
	return ranked
}

// ResolveCategory resolves one category's proposals:
//   - none: no proposal, category stays unset
//   - one: selected ("single proposal")
//   - two or more: top selected when its lead exceeds the hybrid gap
//     ("confidence gap"), otherwise the category needs a hybrid
//
// Selections below the review threshold get a mandatory-review note.
func ResolveCategory(cat project.Category, proposals []project.Proposal, th Thresholds) Resolution {
	res := Resolution{Category: cat, Ranked: RankProposals(proposals)}

	switch len(res.Ranked) {
	case 0:
		res.Decision = project.DecisionNoProposal
		res.Reason = ReasonNoProposal
		return res
	case 1:
		res.Decision = project.DecisionUseProposal
		res.Reason = ReasonSingleProposal
		res.Selected = &res.Ranked[0]
		res.ReviewNotes = reviewNotes(res.Selected, th)
		return res
	}

	top, second := res.Ranked[0], res.Ranked[1]
	gap := top.Confidence - second.Confidence
	if gap > th.HybridGap+gapEpsilon {
		res.Decision = project.DecisionUseProposal
		res.Reason = ReasonConfidenceGap
		res.Selected = &res.Ranked[0]
		res.ReviewNotes = reviewNotes(res.Selected, th)
		return res
	}

	res.Decision = project.DecisionNeedsHybrid
	res.Reason = fmt.Sprintf("%s (%.2f vs %.2f)", ReasonTooClose, top.Confidence, second.Confidence)
	return res
}

func reviewNotes(p *project.Proposal, th Thresholds) []string {
	if p.Confidence >= th.ReviewThreshold {
		return nil
	}
	return []string{reviewNote(p.Technology, p.Confidence, th.ReviewThreshold)}
}

func reviewNote(tech string, confidence, threshold float64) string {
	return fmt.Sprintf("mandatory review: %s selected with confidence %.2f (below %.2f)", tech, confidence, threshold)
}
