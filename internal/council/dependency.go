package council

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// incompatibility: technologies matching a and b (lowercase substrings) do
// not integrate natively. Lookup is symmetric.
type incompatibility struct {
	a, b   string
	reason string
}

var incompatibilities = []incompatibility{
	{"sqlite", "firestore", "SQLite does not integrate natively with Firestore; syncing requires a custom bridge"},
	{"realm", "firestore", "Realm and Firestore run competing sync engines over the same data"},
	{"core data", "firestore", "Core Data has no native Firestore sync; a custom bridge is required"},
	{"django", "mongo", "the Django ORM does not support MongoDB natively"},
	{"mysql", "supabase", "Supabase is built on PostgreSQL and cannot host MySQL"},
	{"sql server", "supabase", "Supabase is built on PostgreSQL and cannot host SQL Server"},
	{"room", "realm", "Room and Realm both own the on-device persistence layer"},
}

// advisory: a non-blocking note raised when any approved technology
// matches the substring.
type advisory struct {
	match string
	note  string
}

var advisories = []advisory{
	{"firestore", "requires network connectivity for full synchronization"},
	{"firebase", "requires network connectivity for full synchronization"},
	{"supabase", "realtime features require a persistent network connection"},
	{"realm", "Atlas Device Sync is deprecated; plan a migration path for sync"},
	{"sqlite", "single-writer; avoid sharing one file between server processes"},
	{"mongo", "confirm multi-document transaction needs before relying on them"},
}

// matches reports whether the two lowercased names form this pair, in
// either order.
func (inc incompatibility) matches(la, lb string) bool {
	return (strings.Contains(la, inc.a) && strings.Contains(lb, inc.b)) ||
		(strings.Contains(la, inc.b) && strings.Contains(lb, inc.a))
}

// findIncompatible returns the first table entry pairing a with b.
func findIncompatible(a, b string) (incompatibility, bool) {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, inc := range incompatibilities {
		if inc.matches(la, lb) {
			return inc, true
		}
	}
	return incompatibility{}, false
}

// CheckDependencies scans the stack against the incompatibility and advisory
// tables. Pairs are checked across categories and within a single combined
// entry such as "Realm + Firestore". Categories are visited in canonical
// order so output is deterministic.
func CheckDependencies(stack map[project.Category]string) project.DependencyCheck {
	cats := orderedCategories(stack)
	var check project.DependencyCheck

	for i := 0; i < len(cats); i++ {
		ci := cats[i]
		ti := stack[ci]
		li := strings.ToLower(ti)

		for _, inc := range incompatibilities {
			if strings.Contains(li, inc.a) && strings.Contains(li, inc.b) {
				check.Conflicts = append(check.Conflicts, project.Conflict{
					TechA:     partContaining(ti, inc.a),
					CategoryA: ci,
					TechB:     partContaining(ti, inc.b),
					CategoryB: ci,
					Reason:    inc.reason,
				})
			}
		}

		for j := i + 1; j < len(cats); j++ {
			cj := cats[j]
			tj := stack[cj]
			lj := strings.ToLower(tj)
			for _, inc := range incompatibilities {
				if inc.matches(li, lj) {
					check.Conflicts = append(check.Conflicts, project.Conflict{
						TechA:     ti,
						CategoryA: ci,
						TechB:     tj,
						CategoryB: cj,
						Reason:    inc.reason,
					})
				}
			}
		}
	}

	seen := make(map[string]bool)
	for _, cat := range cats {
		tech := stack[cat]
		lt := strings.ToLower(tech)
		for _, adv := range advisories {
			if !strings.Contains(lt, adv.match) {
				continue
			}
			w := fmt.Sprintf("%s (%s): %s", tech, cat, adv.note)
			if !seen[w] {
				seen[w] = true
				check.Warnings = append(check.Warnings, w)
			}
		}
	}
	return check
}

// orderedCategories returns the stack's non-empty categories: known ones in
// canonical order, then any others sorted by name.
func orderedCategories(stack map[project.Category]string) []project.Category {
	var cats []project.Category
	for _, c := range project.KnownCategories {
		if stack[c] != "" {
			cats = append(cats, c)
		}
	}
	var extra []string
	for c, tech := range stack {
		if !c.IsKnown() && tech != "" {
			extra = append(extra, string(c))
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		cats = append(cats, project.Category(c))
	}
	return cats
}

// partContaining returns the "+"-separated part of a combined entry that
// contains sub, or the whole entry.
func partContaining(tech, sub string) string {
	for _, part := range strings.Split(tech, "+") {
		if strings.Contains(strings.ToLower(part), sub) {
			return strings.TrimSpace(part)
		}
	}
	return tech
}

// FormatConflict renders a conflict for logs and halting errors.
func FormatConflict(c project.Conflict) string {
	return fmt.Sprintf("%s (%s) x %s (%s): %s", c.TechA, c.CategoryA, c.TechB, c.CategoryB, c.Reason)
}
