package shards

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// =============================================================================
// PROPOSAL GATHERING
// =============================================================================
// The architect and mobile specialists each file technology proposals for
// the categories they cover. Both may run concurrently; proposals go
// through Record.AddProposal and each writes its own artifact field.

// Proposer is a specialist that files technology proposals.
type Proposer struct {
	base
	role       string
	categories []project.Category
	artifact   string
	store      func(*project.Artifacts, string)
}

// NewArchitect creates the architecture specialist.
func NewArchitect(inv types.Invoker) *Proposer {
	return &Proposer{
		base: base{id: IDArchitect, invoker: inv},
		role: "a principal software architect",
		categories: []project.Category{
			project.CategoryDatabase,
			project.CategoryWebBackend,
			project.CategoryFrontend,
		},
		artifact: "architecture",
		store:    func(a *project.Artifacts, s string) { a.Architecture = s },
	}
}

// NewMobile creates the mobile architecture specialist.
func NewMobile(inv types.Invoker) *Proposer {
	return &Proposer{
		base: base{id: IDMobile, invoker: inv},
		role: "a senior mobile architect",
		categories: []project.Category{
			project.CategoryMobileDatabase,
			project.CategoryMobileFramework,
		},
		artifact: "mobile_architecture",
		store:    func(a *project.Artifacts, s string) { a.MobileArchitecture = s },
	}
}

func (p *Proposer) prompt(rec *project.Record) string {
	cats := make([]string, len(p.categories))
	for i, c := range p.categories {
		cats[i] = string(c)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s. Design the architecture for this project and propose technologies.\n\n", p.role))
	sb.WriteString(contextBlock(rec))
	sb.WriteString(fmt.Sprintf("\nPropose one or more technologies for each of: %s.\n", strings.Join(cats, ", ")))
	sb.WriteString("Confidence is a number between 0 and 1.\n\n")
	sb.WriteString(fmt.Sprintf(`Respond with a single JSON object:
{
  "%s": "architecture description",
  "proposals": [
    {"category": "%s", "technology": "...", "justification": "...", "confidence": 0.8,
     "compatibility_score": 0.9, "effort_estimate": "low | medium | high"}
  ]
}
`, p.artifact, cats[0]))
	return sb.String()
}

// Run files the proposals found in the reply. Invalid proposals become
// warnings; a reply with no valid proposal is an error.
func (p *Proposer) Run(ctx context.Context, rec *project.Record) project.AgentResult {
	r, err := p.ask(ctx, p.prompt(rec))
	if err != nil {
		return p.fail(r, err)
	}

	proposals, warnings := parseProposals(r.payload["proposals"], p.id, p.categories)
	added := 0
	for _, prop := range proposals {
		if err := rec.AddProposal(prop); err != nil {
			warnings = append(warnings, fmt.Sprintf("proposal %s rejected: %v", prop.Technology, err))
			continue
		}
		added++
	}
	if added == 0 {
		r.warnings = append(r.warnings, warnings...)
		return p.fail(r, fmt.Errorf("%s: no valid proposals in response", p.id))
	}

	if text := artifactText(r.payload[p.artifact]); text != "" {
		p.store(&rec.Artifacts, text)
	} else {
		warnings = append(warnings, fmt.Sprintf("%s: no %s description returned", p.id, p.artifact))
	}

	logging.Shards("%s filed %d proposals", p.id, added)
	return done(r, warnings...)
}

// parseProposals converts a decoded "proposals" array. Entries outside the
// allowed categories or without a technology are skipped with a warning.
// Confidences given as percentages are rescaled to [0,1].
func parseProposals(v interface{}, proponent string, allowed []project.Category) ([]project.Proposal, []string) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, []string{"proposals missing or not a list"}
	}

	allow := make(map[project.Category]bool, len(allowed))
	for _, c := range allowed {
		allow[c] = true
	}

	var out []project.Proposal
	var warnings []string
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			warnings = append(warnings, fmt.Sprintf("proposal %d is not an object", i))
			continue
		}
		cat := project.Category(strings.ToLower(types.ExtractString(m["category"])))
		tech := types.ExtractString(m["technology"])
		if !allow[cat] {
			warnings = append(warnings, fmt.Sprintf("proposal %d: category %q not covered by %s", i, cat, proponent))
			continue
		}
		if tech == "" {
			warnings = append(warnings, fmt.Sprintf("proposal %d: no technology", i))
			continue
		}
		conf, ok := types.ExtractFloat64(m["confidence"])
		if !ok {
			warnings = append(warnings, fmt.Sprintf("proposal %s: no confidence", tech))
			continue
		}
		if math.IsNaN(conf) || math.IsInf(conf, 0) {
			warnings = append(warnings, fmt.Sprintf("proposal %s: confidence %v is not a number", tech, conf))
			continue
		}
		if conf > 1 && conf <= 100 {
			conf /= 100
		}

		prop := project.Proposal{
			Category:       cat,
			Proponent:      proponent,
			Technology:     tech,
			Justification:  types.ExtractString(m["justification"]),
			Confidence:     conf,
			EffortEstimate: types.ExtractString(m["effort_estimate"]),
		}
		if score, ok := types.ExtractFloat64(m["compatibility_score"]); ok {
			if math.IsNaN(score) || math.IsInf(score, 0) {
				warnings = append(warnings, fmt.Sprintf("proposal %s: compatibility_score %v dropped", tech, score))
			} else {
				prop.CompatibilityScore = &score
			}
		}
		out = append(out, prop)
	}
	return out, warnings
}
