package shards

import (
	"context"
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// Writer is a specialist whose output is a single artifact: the plan, the
// API spec or the frontend spec.
type Writer struct {
	base
	brief  string
	key    string
	inputs func(*project.Record) string
	store  func(*project.Artifacts, string)
}

// NewPlanner creates the planning specialist.
func NewPlanner(inv types.Invoker) *Writer {
	return &Writer{
		base:  base{id: IDPlanner, invoker: inv, retry: true},
		brief: "You are a technical project planner. Break the project into ordered implementation milestones with concrete tasks.",
		key:   "plan",
		inputs: func(rec *project.Record) string {
			return section("Architecture", rec.Artifacts.Architecture) +
				section("Mobile architecture", rec.Artifacts.MobileArchitecture)
		},
		store: func(a *project.Artifacts, s string) { a.Plan = s },
	}
}

// NewAPIDesigner creates the API design specialist.
func NewAPIDesigner(inv types.Invoker) *Writer {
	return &Writer{
		base:  base{id: IDAPIDesigner, invoker: inv, retry: true},
		brief: "You are an API designer. Design the HTTP API for the approved web backend: resources, endpoints, request and response bodies, error codes and authentication.",
		key:   "api_spec",
		inputs: func(rec *project.Record) string {
			return section("Plan", rec.Artifacts.Plan) +
				section("Architecture", rec.Artifacts.Architecture)
		},
		store: func(a *project.Artifacts, s string) { a.APISpec = s },
	}
}

// NewFrontend creates the frontend specialist.
func NewFrontend(inv types.Invoker) *Writer {
	return &Writer{
		base:  base{id: IDFrontend, invoker: inv, retry: true},
		brief: "You are a frontend lead. Specify the pages, components, state management and API integration for the approved frontend technology.",
		key:   "frontend_spec",
		inputs: func(rec *project.Record) string {
			return section("Plan", rec.Artifacts.Plan) +
				section("API specification", rec.Artifacts.APISpec)
		},
		store: func(a *project.Artifacts, s string) { a.FrontendSpec = s },
	}
}

func (w *Writer) prompt(rec *project.Record) string {
	var sb strings.Builder
	sb.WriteString(w.brief + "\n\n")
	sb.WriteString(contextBlock(rec))
	sb.WriteString(w.inputs(rec))
	sb.WriteString(fmt.Sprintf("\nRespond with a single JSON object: {\"%s\": ...}\n", w.key))
	return sb.String()
}

// Run stores the artifact found under the writer's key.
func (w *Writer) Run(ctx context.Context, rec *project.Record) project.AgentResult {
	r, err := w.ask(ctx, w.prompt(rec))
	if err != nil {
		return w.fail(r, err)
	}
	text := artifactText(r.payload[w.key])
	if text == "" {
		return w.fail(r, fmt.Errorf("%s: response has no %q", w.id, w.key))
	}
	w.store(&rec.Artifacts, text)
	logging.Shards("%s produced %s (%d bytes)", w.id, w.key, len(text))
	return done(r)
}

func section(title, body string) string {
	if body == "" {
		return ""
	}
	return fmt.Sprintf("\n## %s\n%s\n", title, body)
}
