// Package project holds the Project Record: the shared state every specialist
// and the tech council read and mutate during one pipeline run, plus its
// persistence.
package project

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// DefaultName is the project name of a freshly constructed record.
const DefaultName = "new_project"

// ErrProposalsFrozen is returned by AddProposal once negotiation has begun.
var ErrProposalsFrozen = errors.New("proposals are frozen: negotiation has begun")

// Category is a technology category of the approved stack.
type Category string

const (
	CategoryDatabase        Category = "database"
	CategoryWebBackend      Category = "web_backend"
	CategoryFrontend        Category = "frontend"
	CategoryMobileDatabase  Category = "mobile_database"
	CategoryMobileFramework Category = "mobile_framework"
)

// KnownCategories lists every category in canonical order.
var KnownCategories = []Category{
	CategoryDatabase,
	CategoryWebBackend,
	CategoryFrontend,
	CategoryMobileDatabase,
	CategoryMobileFramework,
}

// IsKnown reports whether c is a known category.
func (c Category) IsKnown() bool {
	for _, k := range KnownCategories {
		if c == k {
			return true
		}
	}
	return false
}

// Decision is how a category's technology was chosen.
type Decision string

const (
	DecisionNoProposal  Decision = "no_proposal"
	DecisionUseProposal Decision = "use_proposal"
	DecisionNeedsHybrid Decision = "needs_hybrid"
	DecisionHybrid      Decision = "hybrid"
	DecisionFallbackTop Decision = "fallback_top" // hybrid unavailable, top proposal kept
)

// Record is the Project Record. One per run; mutated in place.
// Fields are written by one step at a time, except Proposals which may be
// appended concurrently through AddProposal.
type Record struct {
	mu sync.Mutex

	Name        string `json:"project_name"`
	Objective   string `json:"objective"`
	ProjectType string `json:"project_type"`

	TechStackSuggestion TechStackSuggestion `json:"tech_stack_suggestion"`

	// nil until analysis succeeds
	Analysis  *AnalysisResult       `json:"analysis"`
	Platforms *PlatformRequirements `json:"platform_requirements"`

	Proposals       map[Category][]Proposal `json:"proposals"`
	ProposalsFrozen bool                    `json:"proposals_frozen"`
	ApprovedStack   map[Category]string     `json:"approved_stack"`
	Rationale       DecisionRationale       `json:"decision_rationale"`

	Artifacts Artifacts `json:"artifacts"`
}

// TechStackSuggestion is the analyst's initial suggestion. Empty = absent.
type TechStackSuggestion struct {
	Frontend string `json:"frontend,omitempty"`
	Backend  string `json:"backend,omitempty"`
	Database string `json:"database,omitempty"`
}

// PlatformRequirements flags the platforms the project must target.
type PlatformRequirements struct {
	Web     bool `json:"web"`
	IOS     bool `json:"ios"`
	Android bool `json:"android"`
}

// Mobile reports whether iOS or Android is required.
func (p *PlatformRequirements) Mobile() bool {
	return p != nil && (p.IOS || p.Android)
}

// AnalysisResult is the confirmed output of the analysis step.
type AnalysisResult struct {
	ProjectType      string               `json:"project_type"`
	RequiresFrontend bool                 `json:"requires_frontend"`
	Platforms        PlatformRequirements `json:"platforms"`
	KeyRequirements  []string             `json:"key_requirements,omitempty"`
	Summary          string               `json:"summary,omitempty"`
}

// Proposal is one specialist's candidate technology for a category.
type Proposal struct {
	Category           Category `json:"category"`
	Proponent          string   `json:"proponent"`
	Technology         string   `json:"technology"`
	Justification      string   `json:"justification"`
	Confidence         float64  `json:"confidence"`
	CompatibilityScore *float64 `json:"compatibility_score,omitempty"`
	EffortEstimate     string   `json:"effort_estimate,omitempty"`
}

// checkScores rejects confidences outside [0,1] and non-finite scores, which
// would break ranking and JSON encoding of the record.
func (p Proposal) checkScores() error {
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%s confidence %v out of [0,1]", p.Technology, p.Confidence)
	}
	if s := p.CompatibilityScore; s != nil && (math.IsNaN(*s) || math.IsInf(*s, 0)) {
		return fmt.Errorf("%s compatibility_score %v is not finite", p.Technology, *s)
	}
	return nil
}

// DecisionRationale records why the approved stack looks the way it does.
type DecisionRationale struct {
	Categories      map[Category]CategoryRationale `json:"categories"`
	DependencyCheck *DependencyCheck               `json:"dependency_check,omitempty"`
	Consensus       *ConsensusOutcome              `json:"consensus,omitempty"`
}

// CategoryRationale is the decision for one category.
type CategoryRationale struct {
	Technology    string   `json:"technology,omitempty"`
	Decision      Decision `json:"decision"`
	Reason        string   `json:"reason"`
	Justification string   `json:"justification,omitempty"`
	ReviewNotes   []string `json:"review_notes,omitempty"`
}

// DependencyCheck is the result of checking the assembled stack.
type DependencyCheck struct {
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Conflict is a blocking incompatibility between two approved technologies.
type Conflict struct {
	TechA     string   `json:"tech_a"`
	CategoryA Category `json:"category_a"`
	TechB     string   `json:"tech_b"`
	CategoryB Category `json:"category_b"`
	Reason    string   `json:"reason"`
}

// ConsensusOutcome is the result of the validator poll.
type ConsensusOutcome struct {
	Achieved bool     `json:"achieved"`
	Concerns []string `json:"concerns,omitempty"`
	Votes    []Vote   `json:"votes,omitempty"`
}

// Vote is one validator's verdict.
type Vote struct {
	Validator string   `json:"validator"`
	Approve   bool     `json:"approve"`
	Concerns  []string `json:"concerns,omitempty"`
}

// Artifacts holds free-form intermediate outputs.
type Artifacts struct {
	Plan               string `json:"plan,omitempty"`
	Architecture       string `json:"architecture,omitempty"`
	MobileArchitecture string `json:"mobile_architecture,omitempty"`
	APISpec            string `json:"api_spec,omitempty"`
	FrontendSpec       string `json:"frontend_spec,omitempty"`
	LatestCode         string `json:"latest_code,omitempty"`
	TestReport         string `json:"test_report,omitempty"`
	LatestError        string `json:"latest_error,omitempty"`
}

// AgentStatus is a specialist's terminal status.
type AgentStatus string

const (
	StatusComplete AgentStatus = "complete"
	StatusError    AgentStatus = "error"
)

// AgentResult is produced by every specialist invocation.
type AgentResult struct {
	Status      AgentStatus            `json:"status"`
	Errors      []string               `json:"errors,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
	RawResponse string                 `json:"raw_response,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// OK reports whether the result is complete.
func (r AgentResult) OK() bool { return r.Status == StatusComplete }

// Failed builds an error result.
func Failed(raw string, errs ...string) AgentResult {
	return AgentResult{Status: StatusError, Errors: errs, RawResponse: raw}
}
