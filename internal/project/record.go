package project

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// New returns a record with defaults for the given objective.
func New(objective string) *Record {
	return &Record{
		Name:          DefaultName,
		Objective:     objective,
		Proposals:     make(map[Category][]Proposal),
		ApprovedStack: make(map[Category]string),
		Rationale: DecisionRationale{
			Categories: make(map[Category]CategoryRationale),
		},
	}
}

// AddProposal appends p to its category. Safe for concurrent use.
// Returns ErrProposalsFrozen after FreezeProposals.
func (r *Record) AddProposal(p Proposal) error {
	if !p.Category.IsKnown() {
		return fmt.Errorf("unknown category %q", p.Category)
	}
	if strings.TrimSpace(p.Technology) == "" {
		return fmt.Errorf("proposal for %s has no technology", p.Category)
	}
	if err := p.checkScores(); err != nil {
		return fmt.Errorf("proposal %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ProposalsFrozen {
		return ErrProposalsFrozen
	}
	if r.Proposals == nil {
		r.Proposals = make(map[Category][]Proposal)
	}
	r.Proposals[p.Category] = append(r.Proposals[p.Category], p)
	return nil
}

// FreezeProposals stops further appends and returns a copy of the proposals.
func (r *Record) FreezeProposals() map[Category][]Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ProposalsFrozen = true
	out := make(map[Category][]Proposal, len(r.Proposals))
	for cat, ps := range r.Proposals {
		out[cat] = append([]Proposal(nil), ps...)
	}
	return out
}

// ReplaceApprovedStack installs a new approved stack wholesale.
func (r *Record) ReplaceApprovedStack(stack map[Category]string) {
	next := make(map[Category]string, len(stack))
	for cat, tech := range stack {
		if tech != "" {
			next[cat] = tech
		}
	}
	r.ApprovedStack = next
}

// NeedsFrontend reports whether analysis says a frontend is required.
func (r *Record) NeedsFrontend() bool {
	return r.Analysis != nil && r.Analysis.RequiresFrontend
}

// RequiresMobile reports whether iOS or Android is required.
func (r *Record) RequiresMobile() bool {
	return r.Platforms.Mobile()
}

// Validate checks the record's schema invariants.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("project_name is empty")
	}
	for cat, ps := range r.Proposals {
		if !cat.IsKnown() {
			return fmt.Errorf("proposals: unknown category %q", cat)
		}
		for _, p := range ps {
			if p.Category != cat {
				return fmt.Errorf("proposals: %s filed under %s", p.Technology, cat)
			}
			if err := p.checkScores(); err != nil {
				return fmt.Errorf("proposals: %w", err)
			}
		}
	}
	for cat, tech := range r.ApprovedStack {
		if !cat.IsKnown() {
			return fmt.Errorf("approved_stack: unknown category %q", cat)
		}
		if tech == "" {
			return fmt.Errorf("approved_stack: %s is empty", cat)
		}
	}
	return nil
}

// SortedStack returns the approved stack as "category: technology" lines in
// canonical category order.
func (r *Record) SortedStack() []string {
	return StackLines(r.ApprovedStack)
}

// StackLines renders a stack as sorted "category: technology" lines.
func StackLines(stack map[Category]string) []string {
	cats := make([]string, 0, len(stack))
	for cat := range stack {
		cats = append(cats, string(cat))
	}
	sort.Strings(cats)
	lines := make([]string, 0, len(cats))
	for _, c := range cats {
		lines = append(lines, fmt.Sprintf("%s: %s", c, stack[Category(c)]))
	}
	return lines
}

// InferProjectType maps platform flags to a project type:
// web+mobile → fullstack, mobile → mobile, web with frontend → web,
// otherwise backend.
func InferProjectType(p PlatformRequirements, requiresFrontend bool) string {
	mobile := p.IOS || p.Android
	switch {
	case p.Web && mobile:
		return "fullstack"
	case mobile:
		return "mobile"
	case p.Web && requiresFrontend:
		return "web"
	}
	return "backend"
}

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a project name from free text: at most four words,
// lowercase, joined by underscores. Returns DefaultName for empty input.
func Slugify(text string) string {
	words := strings.Fields(strings.ToLower(text))
	kept := make([]string, 0, 4)
	for _, w := range words {
		w = strings.Trim(slugJunk.ReplaceAllString(w, "_"), "_")
		if w == "" || stopWords[w] {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 4 {
			break
		}
	}
	if len(kept) == 0 {
		return DefaultName
	}
	return strings.Join(kept, "_")
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "build": true, "create": true,
	"make": true, "with": true, "for": true, "and": true, "of": true, "to": true,
}
