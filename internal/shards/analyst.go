package shards

import (
	"context"
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// Analyst confirms the project type, names the project and derives the
// platform requirements.
type Analyst struct {
	base
}

// NewAnalyst creates the analysis specialist.
func NewAnalyst(inv types.Invoker) *Analyst {
	return &Analyst{base: base{id: IDAnalyst, invoker: inv}}
}

func (a *Analyst) prompt(rec *project.Record) string {
	var sb strings.Builder
	sb.WriteString("You are a senior requirements analyst. Analyse the objective below.\n\n")
	sb.WriteString(fmt.Sprintf("Objective: %s\n\n", rec.Objective))
	sb.WriteString(`Respond with a single JSON object:
{
  "project_name": "short snake_case name",
  "project_type": "backend | web | mobile | fullstack",
  "requires_frontend": true,
  "platforms": {"web": true, "ios": false, "android": false},
  "key_requirements": ["..."],
  "summary": "one paragraph",
  "tech_stack_suggestion": {"frontend": "", "backend": "", "database": ""}
}
`)
	return sb.String()
}

// Run analyses the objective. On success the record's name, analysis,
// platform requirements, project type and stack suggestion are set.
func (a *Analyst) Run(ctx context.Context, rec *project.Record) project.AgentResult {
	r, err := a.ask(ctx, a.prompt(rec))
	if err != nil {
		return a.fail(r, err)
	}
	p := r.payload
	var warnings []string

	var modelFlags *project.PlatformRequirements
	if m, ok := p["platforms"].(map[string]interface{}); ok {
		var flags project.PlatformRequirements
		flags.Web, _ = types.ExtractBool(m["web"])
		flags.IOS, _ = types.ExtractBool(m["ios"])
		flags.Android, _ = types.ExtractBool(m["android"])
		modelFlags = &flags
	}
	platforms := project.DetectPlatforms(rec.Objective, modelFlags)
	if modelFlags != nil && *modelFlags != platforms {
		warnings = append(warnings, fmt.Sprintf("model platform flags %+v replaced by %+v from objective keywords", *modelFlags, platforms))
	}

	requiresFrontend, ok := types.ExtractBool(p["requires_frontend"])
	if !ok {
		requiresFrontend = platforms.Web
		warnings = append(warnings, fmt.Sprintf("requires_frontend missing, assuming %v", requiresFrontend))
	}

	projectType := project.InferProjectType(platforms, requiresFrontend)
	if suggested := strings.ToLower(types.ExtractString(p["project_type"])); suggested != "" && suggested != projectType {
		warnings = append(warnings, fmt.Sprintf("model suggested project type %q, inferred %q", suggested, projectType))
	}

	keyReqs := types.ExtractStrings(p["key_requirements"])
	if len(keyReqs) == 0 {
		warnings = append(warnings, "no key requirements returned")
	}

	name := project.Slugify(types.ExtractString(p["project_name"]))
	if name == project.DefaultName {
		name = project.Slugify(rec.Objective)
	}

	rec.Name = name
	rec.ProjectType = projectType
	rec.Platforms = &platforms
	rec.Analysis = &project.AnalysisResult{
		ProjectType:      projectType,
		RequiresFrontend: requiresFrontend,
		Platforms:        platforms,
		KeyRequirements:  keyReqs,
		Summary:          types.ExtractString(p["summary"]),
	}
	if s, ok := p["tech_stack_suggestion"].(map[string]interface{}); ok {
		rec.TechStackSuggestion = project.TechStackSuggestion{
			Frontend: types.ExtractString(s["frontend"]),
			Backend:  types.ExtractString(s["backend"]),
			Database: types.ExtractString(s["database"]),
		}
	}

	logging.Shards("analysis: project=%s type=%s platforms=%+v", name, projectType, platforms)
	return done(r, warnings...)
}
