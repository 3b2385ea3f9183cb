package council

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// StackDiff returns a unified diff between two approved stacks, or "" when
// they are identical.
func StackDiff(prev, next map[project.Category]string) string {
	a := project.StackLines(prev)
	b := project.StackLines(next)
	if strings.Join(a, "\n") == strings.Join(b, "\n") {
		return ""
	}
	diff := difflib.UnifiedDiff{
		A:        withNewlines(a),
		B:        withNewlines(b),
		FromFile: "approved_stack (previous)",
		ToFile:   "approved_stack (negotiated)",
		Context:  len(a) + len(b),
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

// FormatReport renders the outcome as markdown.
func (o *Outcome) FormatReport() string {
	var sb strings.Builder

	verdict := "APPROVED"
	if !o.Approved() {
		verdict = "REJECTED"
	}
	sb.WriteString(fmt.Sprintf("# Tech Council: %s\n\n", verdict))

	sb.WriteString("## Decisions\n\n")
	sb.WriteString("| Category | Technology | Decision | Reason |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, cat := range project.KnownCategories {
		r, ok := o.Rationale.Categories[cat]
		if !ok {
			continue
		}
		tech := r.Technology
		if tech == "" {
			tech = "-"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", cat, tech, r.Decision, escapeCell(r.Reason)))
	}

	var notes []string
	for _, cat := range project.KnownCategories {
		notes = append(notes, o.Rationale.Categories[cat].ReviewNotes...)
	}
	writeList(&sb, "Mandatory Review", notes)

	var conflicts []string
	for _, c := range o.Dependency.Conflicts {
		conflicts = append(conflicts, FormatConflict(c))
	}
	writeList(&sb, "Conflicts", conflicts)
	writeList(&sb, "Warnings", o.Dependency.Warnings)

	if len(o.Consensus.Votes) > 0 {
		sb.WriteString("\n## Votes\n\n")
		for _, v := range o.Consensus.Votes {
			mark := "approve"
			if !v.Approve {
				mark = "deny"
			}
			sb.WriteString(fmt.Sprintf("- **%s**: %s", v.Validator, mark))
			if len(v.Concerns) > 0 {
				sb.WriteString(" (" + strings.Join(v.Concerns, "; ") + ")")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\n## %s\n\n", title))
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
