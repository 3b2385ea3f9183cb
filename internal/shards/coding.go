package shards

import (
	"context"
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/logging"
	"github.com/Qnatz/Qrews-sub000/internal/project"
	"github.com/Qnatz/Qrews-sub000/internal/types"
)

// =============================================================================
// CODING SPECIALISTS
// =============================================================================
// coder, tester and debugger run on the coding backend with tool use
// requested. Generated code stays in the record; nothing is written to disk.

// SourceFile is one generated file.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Coder generates the project's source.
type Coder struct {
	base
}

// NewCoder creates the coding specialist.
func NewCoder(inv types.Invoker) *Coder {
	return &Coder{base: base{id: IDCoder, invoker: inv, usesTools: true}}
}

func (c *Coder) prompt(rec *project.Record) string {
	var sb strings.Builder
	sb.WriteString("You are a senior engineer. Implement the project using the approved stack.\n\n")
	sb.WriteString(contextBlock(rec))
	sb.WriteString(section("Plan", rec.Artifacts.Plan))
	sb.WriteString(section("API specification", rec.Artifacts.APISpec))
	sb.WriteString(section("Frontend specification", rec.Artifacts.FrontendSpec))
	sb.WriteString(section("Mobile architecture", rec.Artifacts.MobileArchitecture))
	sb.WriteString(`
Respond with a single JSON object:
{"files": [{"path": "relative/path", "content": "file contents"}], "summary": "what was built"}
`)
	return sb.String()
}

// Run stores the generated files as the latest code. On failure the error
// is recorded as the latest error for the debugger.
func (c *Coder) Run(ctx context.Context, rec *project.Record) project.AgentResult {
	r, err := c.ask(ctx, c.prompt(rec))
	if err != nil {
		rec.Artifacts.LatestError = err.Error()
		return c.fail(r, err)
	}

	files, warnings := parseFiles(r.payload["files"])
	if len(files) == 0 {
		err := fmt.Errorf("%s: response has no usable files", c.id)
		rec.Artifacts.LatestError = err.Error()
		r.warnings = append(r.warnings, warnings...)
		return c.fail(r, err)
	}

	rec.Artifacts.LatestCode = renderFiles(files)
	rec.Artifacts.LatestError = ""
	logging.Shards("coder produced %d files", len(files))
	return done(r, warnings...)
}

// Tester reviews the latest code and reports test results.
type Tester struct {
	base
}

// NewTester creates the testing specialist.
func NewTester(inv types.Invoker) *Tester {
	return &Tester{base: base{id: IDTester, invoker: inv, usesTools: true}}
}

func (t *Tester) prompt(rec *project.Record) string {
	var sb strings.Builder
	sb.WriteString("You are a QA engineer. Write and run tests for the code below and report the results.\n\n")
	sb.WriteString(contextBlock(rec))
	sb.WriteString(section("API specification", rec.Artifacts.APISpec))
	sb.WriteString(section("Code", rec.Artifacts.LatestCode))
	sb.WriteString(`
Respond with a single JSON object:
{"passed": true, "report": "test report", "failures": ["..."]}
`)
	return sb.String()
}

// Run stores the test report. Failing tests are warnings and become the
// latest error; a reply without a verdict is an error.
func (t *Tester) Run(ctx context.Context, rec *project.Record) project.AgentResult {
	if rec.Artifacts.LatestCode == "" {
		return t.fail(reply{}, fmt.Errorf("%s: no code to test", t.id))
	}
	r, err := t.ask(ctx, t.prompt(rec))
	if err != nil {
		return t.fail(r, err)
	}

	passed, ok := types.ExtractBool(r.payload["passed"])
	if !ok {
		return t.fail(r, fmt.Errorf("%s: response has no \"passed\" verdict", t.id))
	}
	report := artifactText(r.payload["report"])
	if report == "" {
		report = fmt.Sprintf("passed: %v", passed)
	}
	rec.Artifacts.TestReport = report

	var warnings []string
	if !passed {
		failures := types.ExtractStrings(r.payload["failures"])
		if len(failures) == 0 {
			failures = []string{"tests failed without details"}
		}
		for _, f := range failures {
			warnings = append(warnings, "test failure: "+f)
		}
		rec.Artifacts.LatestError = strings.Join(failures, "\n")
	}
	logging.Shards("tester: passed=%v", passed)
	return done(r, warnings...)
}

// Debugger diagnoses the latest error and may replace the latest code.
type Debugger struct {
	base
}

// NewDebugger creates the debugging specialist.
func NewDebugger(inv types.Invoker) *Debugger {
	return &Debugger{base: base{id: IDDebugger, invoker: inv, usesTools: true}}
}

func (d *Debugger) prompt(rec *project.Record) string {
	var sb strings.Builder
	sb.WriteString("You are a debugging specialist. Diagnose the error below and provide corrected files if you can.\n\n")
	sb.WriteString(contextBlock(rec))
	sb.WriteString(section("Error", rec.Artifacts.LatestError))
	sb.WriteString(section("Code", rec.Artifacts.LatestCode))
	sb.WriteString(`
Respond with a single JSON object:
{"diagnosis": "root cause", "fixed": true, "files": [{"path": "relative/path", "content": "file contents"}]}
`)
	return sb.String()
}

// Run records the diagnosis. Corrected files replace the latest code; the
// latest error is cleared only when the reply says the problem is fixed.
func (d *Debugger) Run(ctx context.Context, rec *project.Record) project.AgentResult {
	r, err := d.ask(ctx, d.prompt(rec))
	if err != nil {
		return d.fail(r, err)
	}
	diagnosis := types.ExtractString(r.payload["diagnosis"])
	if diagnosis == "" {
		return d.fail(r, fmt.Errorf("%s: response has no diagnosis", d.id))
	}

	warnings := []string{"debugger diagnosis: " + diagnosis}
	files, fileWarnings := parseFiles(r.payload["files"])
	if len(files) > 0 {
		rec.Artifacts.LatestCode = renderFiles(files)
		warnings = append(warnings, fileWarnings...)
	}
	if fixed, _ := types.ExtractBool(r.payload["fixed"]); fixed {
		rec.Artifacts.LatestError = ""
	}
	logging.Shards("debugger: %s", diagnosis)
	return done(r, warnings...)
}

func parseFiles(v interface{}) ([]SourceFile, []string) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, []string{"files missing or not a list"}
	}
	var files []SourceFile
	var warnings []string
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			warnings = append(warnings, fmt.Sprintf("file %d is not an object", i))
			continue
		}
		f := SourceFile{Path: types.ExtractString(m["path"])}
		f.Content, _ = m["content"].(string)
		if f.Path == "" || f.Content == "" {
			warnings = append(warnings, fmt.Sprintf("file %d has no path or content", i))
			continue
		}
		files = append(files, f)
	}
	return files, warnings
}

// renderFiles joins files into one text artifact with a path header each.
func renderFiles(files []SourceFile) string {
	var sb strings.Builder
	for i, f := range files {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("=== %s ===\n%s\n", f.Path, strings.TrimRight(f.Content, "\n")))
	}
	return sb.String()
}
