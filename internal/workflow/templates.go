package workflow

import (
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/shards"
)

// Step names as they appear in templates.
const (
	StepAnalysis     = "analysis"
	StepArchitecture = "architecture"
	StepMobile       = "mobile"
	StepPlanner      = "planner"
	StepAPIDesigner  = "api_designer"
	StepFrontend     = "frontend"
	StepCoder        = "coder"
	StepTester       = "tester"
	StepDebugger     = "debugger"
)

// Template names.
const (
	TemplateBackend   = "backend"
	TemplateWeb       = "web"
	TemplateMobile    = "mobile"
	TemplateFullstack = "fullstack"
)

// Templates lists each template's steps in order.
var Templates = map[string][]string{
	TemplateBackend:   {StepAnalysis, StepArchitecture, StepPlanner, StepAPIDesigner, StepCoder, StepTester},
	TemplateWeb:       {StepAnalysis, StepArchitecture, StepPlanner, StepAPIDesigner, StepFrontend, StepCoder, StepTester},
	TemplateMobile:    {StepAnalysis, StepArchitecture, StepMobile, StepPlanner, StepAPIDesigner, StepCoder, StepTester},
	TemplateFullstack: {StepAnalysis, StepArchitecture, StepMobile, StepPlanner, StepAPIDesigner, StepFrontend, StepCoder, StepTester},
}

// stepSpecialist maps a step to the specialist that runs it.
var stepSpecialist = map[string]string{
	StepAnalysis:     shards.IDAnalyst,
	StepArchitecture: shards.IDArchitect,
	StepMobile:       shards.IDMobile,
	StepPlanner:      shards.IDPlanner,
	StepAPIDesigner:  shards.IDAPIDesigner,
	StepFrontend:     shards.IDFrontend,
	StepCoder:        shards.IDCoder,
	StepTester:       shards.IDTester,
	StepDebugger:     shards.IDDebugger,
}

// preExecution steps run before negotiation and are not repeated.
var preExecution = map[string]bool{
	StepAnalysis:     true,
	StepArchitecture: true,
	StepMobile:       true,
}

// SelectTemplate picks the template for the platform flags:
// web+mobile → fullstack, mobile → mobile, web with frontend → web,
// otherwise backend.
func SelectTemplate(p project.PlatformRequirements, requiresFrontend bool) string {
	mobile := p.IOS || p.Android
	switch {
	case p.Web && mobile:
		return TemplateFullstack
	case mobile:
		return TemplateMobile
	case p.Web && requiresFrontend:
		return TemplateWeb
	}
	return TemplateBackend
}

// RemainingSteps returns the template's steps after proposal gathering.
func RemainingSteps(template string) []string {
	var out []string
	for _, s := range Templates[template] {
		if !preExecution[s] {
			out = append(out, s)
		}
	}
	return out
}

// skipRule decides whether a step is skipped for the record, and why.
type skipRule func(*project.Record) (bool, string)

// skipRules holds the skip-permitted steps. A failure in one of these steps
// is downgraded to a warning.
var skipRules = map[string]skipRule{
	StepFrontend: func(rec *project.Record) (bool, string) {
		if !rec.NeedsFrontend() {
			return true, "analysis says no frontend is required"
		}
		return false, ""
	},
	StepAPIDesigner: func(rec *project.Record) (bool, string) {
		if rec.ApprovedStack[project.CategoryWebBackend] == "" {
			return true, "approved stack has no web_backend"
		}
		return false, ""
	},
}
