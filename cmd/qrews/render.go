package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Qnatz/Qrews-sub000/internal/store"
	"github.com/Qnatz/Qrews-sub000/internal/usage"
	"github.com/Qnatz/Qrews-sub000/internal/workflow"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3C9DD0"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
)

// printProgress renders one engine progress event.
func printProgress(p workflow.Progress) {
	ts := dimStyle.Render(p.Time.Format("15:04:05"))
	if p.Step == "" {
		style := stateStyle
		if p.State == workflow.StateHalted {
			style = errorStyle
		}
		fmt.Printf("%s %s %s\n", ts, style.Render(strings.ToUpper(string(p.State))), p.Message)
		return
	}
	fmt.Printf("%s   %s %s\n", ts, stepStyle.Render(p.Step), p.Message)
}

// printReport renders the council's markdown report.
func printReport(markdown string) {
	if markdown == "" {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Println(markdown)
		return
	}
	out, err := r.Render(markdown)
	if err != nil {
		fmt.Println(markdown)
		return
	}
	fmt.Print(out)
}

// printSummary prints the final run table.
func printSummary(res *workflow.Result, stats usage.AggregatedStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Run summary")

	projectType := res.Record.ProjectType
	if projectType == "" {
		projectType = "unknown"
	}
	tw.AppendRow(table.Row{"Project", res.Record.Name})
	tw.AppendRow(table.Row{"Type", projectType})
	tw.AppendRow(table.Row{"Status", string(res.Status)})
	tw.AppendRow(table.Row{"Elapsed", res.Elapsed().Round(time.Millisecond)})
	tw.AppendRow(table.Row{"Tokens", fmt.Sprintf("%d in / %d out (%d calls, %d fallbacks)",
		stats.TotalRun.Input, stats.TotalRun.Output, stats.Calls, stats.Fallbacks)})
	for _, line := range res.Record.SortedStack() {
		tw.AppendRow(table.Row{"Stack", line})
	}
	if res.SnapshotPath != "" {
		tw.AppendRow(table.Row{"Output", res.SnapshotPath})
	}
	if res.HaltError != "" {
		tw.AppendRow(table.Row{"Halted", errorStyle.Render(res.HaltError)})
	}
	tw.Render()

	for _, w := range res.Warnings {
		fmt.Println(warnStyle.Render("warning: ") + w)
	}
}

// printRecent lists the latest runs from the summary store.
func printRecent(runs []store.RunSummary) {
	if len(runs) < 2 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Recent runs")
	tw.AppendHeader(table.Row{"Project", "Type", "Status", "Ended", "Warnings"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.Name, r.ProjectType, r.Status, r.EndedAt.Local().Format("2006-01-02 15:04"), r.Warnings})
	}
	tw.Render()
}
