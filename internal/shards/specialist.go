// Package shards implements the specialists of the generation pipeline.
// Each specialist builds a prompt from the project record, invokes the model
// layer, parses the JSON reply and writes its fields back to the record.
// A reply that fails validation leaves the dependent fields unset.
package shards

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// Specialist identities. The coding identities map to the coding backend.
const (
	IDAnalyst     = "analyst"
	IDArchitect   = "architect"
	IDMobile      = "mobile"
	IDPlanner     = "planner"
	IDAPIDesigner = "api_designer"
	IDFrontend    = "frontend"
	IDCoder       = "coder"
	IDTester      = "tester"
	IDDebugger    = "debugger"
)

// Specialist is one pipeline step.
type Specialist interface {
	Name() string
	Run(ctx context.Context, rec *project.Record) project.AgentResult
}

// base carries what every specialist needs to talk to the model layer.
type base struct {
	id        string
	invoker   types.Invoker
	usesTools bool
	retry     bool // prefer types.Completer when the invoker offers it
}

func (b *base) Name() string { return b.id }

// reply is a decoded model response.
type reply struct {
	raw      string
	payload  map[string]interface{}
	warnings []string
}

// ask invokes the model and decodes the first JSON object in the reply.
// On a decode failure the raw text is still returned.
func (b *base) ask(ctx context.Context, prompt string) (reply, error) {
	timer := logging.StartTimer(logging.CategoryShards, b.id)
	defer timer.Stop()

	gen, err := b.generate(ctx, prompt)
	if err != nil {
		return reply{}, fmt.Errorf("%s: model call failed: %w", b.id, err)
	}

	r := reply{raw: gen.Text}
	if gen.FellBack {
		r.warnings = append(r.warnings, fmt.Sprintf("%s answered by fallback backend %s", b.id, gen.Backend))
	}
	if gen.Degraded {
		r.warnings = append(r.warnings, fmt.Sprintf("%s ran without tool support", b.id))
	}

	jsonStr := types.ExtractJSON(gen.Text)
	if jsonStr == "" {
		return r, fmt.Errorf("%s: response contains no JSON object", b.id)
	}
	if err := json.Unmarshal([]byte(jsonStr), &r.payload); err != nil {
		return r, fmt.Errorf("%s: invalid JSON in response: %w", b.id, err)
	}
	logging.ShardsDebug("%s: parsed %d top-level fields", b.id, len(r.payload))
	return r, nil
}

func (b *base) generate(ctx context.Context, prompt string) (types.Generation, error) {
	if c, ok := b.invoker.(types.Completer); ok && b.retry && !b.usesTools {
		return c.CompleteWithRetry(ctx, b.id, prompt)
	}
	return b.invoker.Invoke(ctx, b.id, prompt, b.usesTools)
}

// fail builds an error result and logs it.
func (b *base) fail(r reply, err error) project.AgentResult {
	logging.ShardsWarn("%s failed: %v", b.id, err)
	res := project.Failed(r.raw, err.Error())
	res.Warnings = r.warnings
	return res
}

// done builds a complete result.
func done(r reply, warnings ...string) project.AgentResult {
	return project.AgentResult{
		Status:      project.StatusComplete,
		Warnings:    append(r.warnings, warnings...),
		RawResponse: r.raw,
		Payload:     r.payload,
	}
}

// contextBlock renders the record fields most prompts share.
func contextBlock(rec *project.Record) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Project: %s\n", rec.Name))
	sb.WriteString(fmt.Sprintf("Objective: %s\n", rec.Objective))
	if rec.ProjectType != "" {
		sb.WriteString(fmt.Sprintf("Project type: %s\n", rec.ProjectType))
	}
	if p := rec.Platforms; p != nil {
		sb.WriteString(fmt.Sprintf("Platforms: web=%v ios=%v android=%v\n", p.Web, p.IOS, p.Android))
	}
	if a := rec.Analysis; a != nil && len(a.KeyRequirements) > 0 {
		sb.WriteString("Key requirements:\n")
		for _, req := range a.KeyRequirements {
			sb.WriteString("- " + req + "\n")
		}
	}
	if s := rec.TechStackSuggestion; s != (project.TechStackSuggestion{}) {
		sb.WriteString(fmt.Sprintf("Suggested stack: frontend=%q backend=%q database=%q\n", s.Frontend, s.Backend, s.Database))
	}
	if lines := rec.SortedStack(); len(lines) > 0 {
		sb.WriteString("Approved stack:\n")
		for _, l := range lines {
			sb.WriteString("- " + l + "\n")
		}
	}
	return sb.String()
}

// artifactText renders a payload value as artifact text: strings verbatim,
// anything else as indented JSON.
func artifactText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
