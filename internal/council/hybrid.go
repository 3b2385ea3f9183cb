package council

import (
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// ReasonCombined marks a generic hybrid with no matching rule.
const ReasonCombined = "combined suggestion"

// hybridRule pairs two families of technologies, matched by lowercase
// substring, into a named hybrid.
type hybridRule struct {
	name        string
	left, right []string
	integration string
}

var (
	localStores  = []string{"sqlite", "room", "realm", "core data", "coredata", "hive", "isar", "objectbox", "indexeddb"}
	cloudSync    = []string{"firestore", "firebase", "supabase", "couchbase", "dynamodb", "appsync", "pouchdb"}
	relational   = []string{"postgres", "mysql", "mariadb", "sql server", "mssql", "cockroach"}
	documentDBs  = []string{"mongo", "couchdb", "dynamodb", "cosmos"}
	caches       = []string{"redis", "memcached", "valkey"}
	reactFamily  = []string{"react"}
	reactMetaFWs = []string{"next", "remix", "gatsby"}
)

var hybridRules = []hybridRule{
	{
		name:        "offline-first sync",
		left:        localStores,
		right:       cloudSync,
		integration: "local store is the source of truth on device; a background sync worker reconciles it with the cloud backend",
	},
	{
		name:        "polyglot persistence",
		left:        relational,
		right:       documentDBs,
		integration: "repository layer routes transactional aggregates to the relational store and flexible documents to the document store",
	},
	{
		name:        "cache-aside",
		left:        caches,
		right:       append(append([]string{}, relational...), documentDBs...),
		integration: "reads go through the cache with write-through invalidation on the primary store",
	},
	{
		name:        "meta-framework",
		left:        reactFamily,
		right:       reactMetaFWs,
		integration: "the meta-framework hosts the React component tree and owns routing and server rendering",
	},
}

// disallowedHybrid is a pair that must never be combined within a category.
type disallowedHybrid struct {
	category    project.Category
	left, right string
	reason      string
}

// The only place disallowed combinations are decided.
var disallowedHybrids = []disallowedHybrid{
	{
		category: project.CategoryMobileDatabase,
		left:     "room",
		right:    "realm",
		reason:   "both own the on-device persistence layer and cannot share a schema",
	},
}

// HybridResult is the outcome of hybrid synthesis for one category.
type HybridResult struct {
	Technology       string
	Decision         project.Decision // DecisionHybrid or DecisionFallbackTop
	Reason           string
	IntegrationPoint string
	ReviewNotes      []string
}

// Synthesize builds a hybrid for a category marked "needs hybrid".
// Order: disallowed-combination carve-out, known incompatible pairs, rule
// table, generic combined suggestion, and finally the highest-confidence
// proposal when nothing usable remains. A hybrid is never built from a pair
// the dependency check would block.
func Synthesize(res Resolution, th Thresholds) HybridResult {
	if len(res.Ranked) == 0 {
		return HybridResult{Decision: project.DecisionNoProposal, Reason: ReasonNoProposal}
	}
	top := res.Ranked[0]
	if len(res.Ranked) == 1 {
		return fallbackTop(top, "only one proposal available", th, false)
	}
	second := res.Ranked[1]

	if d, ok := findDisallowed(res.Category, top.Technology, second.Technology); ok {
		why := fmt.Sprintf("hybrid of %s and %s not allowed for %s: %s", top.Technology, second.Technology, d.category, d.reason)
		return fallbackTop(top, why, th, true)
	}

	if inc, ok := findIncompatible(top.Technology, second.Technology); ok {
		why := fmt.Sprintf("%s and %s cannot be combined: %s", top.Technology, second.Technology, inc.reason)
		return fallbackTop(top, why, th, true)
	}

	for _, rule := range hybridRules {
		first, other, ok := rule.match(top.Technology, second.Technology)
		if !ok {
			continue
		}
		return HybridResult{
			Technology:       fmt.Sprintf("%s + %s", first, other),
			Decision:         project.DecisionHybrid,
			Reason:           fmt.Sprintf("%s hybrid", rule.name),
			IntegrationPoint: rule.integration,
			ReviewNotes:      hybridReview(top, second, th),
		}
	}

	names := usableNames(top, second)
	switch len(names) {
	case 2:
		return HybridResult{
			Technology:  strings.Join(names, " + "),
			Decision:    project.DecisionHybrid,
			Reason:      ReasonCombined,
			ReviewNotes: hybridReview(top, second, th),
		}
	case 1:
		return HybridResult{
			Technology:  names[0],
			Decision:    project.DecisionHybrid,
			Reason:      ReasonCombined + " (single usable name)",
			ReviewNotes: hybridReview(top, second, th),
		}
	}
	return fallbackTop(top, "hybrid synthesis failed: no usable technology names", th, false)
}

func fallbackTop(top project.Proposal, why string, th Thresholds, alwaysReview bool) HybridResult {
	r := HybridResult{
		Technology: top.Technology,
		Decision:   project.DecisionFallbackTop,
		Reason:     why,
	}
	if alwaysReview || top.Confidence < th.ReviewThreshold {
		r.ReviewNotes = []string{fmt.Sprintf("mandatory review: defaulted to %s (confidence %.2f): %s", top.Technology, top.Confidence, why)}
	}
	return r
}

func hybridReview(a, b project.Proposal, th Thresholds) []string {
	best := a.Confidence
	if b.Confidence > best {
		best = b.Confidence
	}
	if best >= th.ReviewThreshold {
		return nil
	}
	return []string{reviewNote(a.Technology+" + "+b.Technology, best, th.ReviewThreshold)}
}

// match reports whether the two names fall on opposite sides of the rule,
// returning them left-side first.
func (r hybridRule) match(a, b string) (string, string, bool) {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	switch {
	case containsAny(la, r.left) && containsAny(lb, r.right):
		return a, b, true
	case containsAny(lb, r.left) && containsAny(la, r.right):
		return b, a, true
	}
	return "", "", false
}

func findDisallowed(cat project.Category, a, b string) (disallowedHybrid, bool) {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, d := range disallowedHybrids {
		if d.category != cat {
			continue
		}
		if (strings.Contains(la, d.left) && strings.Contains(lb, d.right)) ||
			(strings.Contains(la, d.right) && strings.Contains(lb, d.left)) {
			return d, true
		}
	}
	return disallowedHybrid{}, false
}

func usableNames(ps ...project.Proposal) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range ps {
		name := strings.TrimSpace(p.Technology)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
