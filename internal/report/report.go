// Package report renders the end of run summary in the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/stresstest"
)

// Adaptive color definitions for light/dark terminal support
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"}
)

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)

	styleCell = lipgloss.NewStyle()
)

const (
	markPass = "✓"
	markFail = "✗"
)

// Render writes the summary of a run to w
func Render(w io.Writer, summary *stresstest.Summary) error {
	_, err := io.WriteString(w, String(summary))
	return err
}

// String renders the summary of a run
func String(summary *stresstest.Summary) string {
	var b strings.Builder

	run := summary.Run
	b.WriteString(styleTitle.Render(fmt.Sprintf("scenario: %s", run.Scenario)) + "\n")
	b.WriteString(styleSubtle.Render("run:      ") + run.RunID + "\n")
	b.WriteString(styleSubtle.Render("status:   ") + statusStyle(run.Status).Render(run.Status) + "\n")
	b.WriteString(styleSubtle.Render("elapsed:  ") + formatDuration(summary.Elapsed) + "\n")
	b.WriteString(fmt.Sprintf("%s%d vus, %d iterations", styleSubtle.Render("load:     "), run.VUs, run.Iterations))
	if run.IterationErrors > 0 {
		b.WriteString(styleWarning.Render(fmt.Sprintf(" (%d interrupted)", run.IterationErrors)))
	}
	b.WriteString("\n\n")

	if len(summary.Checks) > 0 {
		b.WriteString(renderChecks(summary.Checks))
		b.WriteString("\n")
	}
	if len(summary.Steps) > 0 {
		b.WriteString(renderSteps(summary.Total, summary.Steps))
		b.WriteString("\n")
	}
	if len(summary.Thresholds) > 0 {
		b.WriteString(renderThresholds(summary.Thresholds))
	}
	return b.String()
}

// RenderRuns writes one line per stored run to w
func RenderRuns(w io.Writer, runs []*stresstest.Run) error {
	_, err := io.WriteString(w, Runs(runs))
	return err
}

// Runs renders a table of stored runs, newest first as given
func Runs(runs []*stresstest.Run) string {
	if len(runs) == 0 {
		return styleSubtle.Render("no runs recorded") + "\n"
	}

	headers := []string{"id", "scenario", "status", "started", "elapsed", "vus", "iters", "reqs", "checks", "p95"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		elapsed := "-"
		if run.IsCompleted() && run.CompletedAt != nil {
			elapsed = formatDuration(run.CompletedAt.Sub(run.StartedAt))
		}
		status := run.Status
		if run.IsRunning() {
			// never finalized: the process died or is still going
			status += "?"
		}
		checks := "-"
		if total := run.ChecksPassed + run.ChecksFailed; total > 0 {
			checks = fmt.Sprintf("%d/%d", run.ChecksPassed, total)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", run.ID),
			run.Scenario,
			status,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			elapsed,
			fmt.Sprintf("%d", run.VUs),
			fmt.Sprintf("%d", run.Iterations),
			fmt.Sprintf("%d", run.TotalRequestsCompleted),
			checks,
			formatLatency(time.Duration(run.P95DurationMs * float64(time.Millisecond))),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	b.WriteString(styleSubtle.Render(joinRow(headers, widths)) + "\n")
	for i, row := range rows {
		line := joinRow(row, widths)
		b.WriteString(statusStyle(runs[i].Status).Render(line) + "\n")
	}
	return b.String()
}

// renderChecks lists checks under their group, k6 style
func renderChecks(counts []check.Counts) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Checks") + "\n")

	group := ""
	first := true
	for _, c := range counts {
		if first || c.Group != group {
			group = c.Group
			first = false
			b.WriteString("  █ " + group + "\n")
		}

		if c.Fails == 0 {
			b.WriteString("    " + styleSuccess.Render(markPass+" "+c.Name) + "\n")
			continue
		}
		b.WriteString("    " + styleError.Render(markFail+" "+c.Name) + "\n")
		b.WriteString(styleSubtle.Render(fmt.Sprintf("     ↳ %.0f%% %s %d / %s %d",
			c.Rate()*100, markPass, c.Passes, markFail, c.Fails)) + "\n")
	}
	return b.String()
}

// renderSteps prints one latency row per step plus the run total
func renderSteps(total *stresstest.Stats, steps []stresstest.StepStats) string {
	headers := []string{"step", "reqs", "failed", "avg", "min", "p50", "p95", "p99", "max"}

	rows := make([][]string, 0, len(steps)+1)
	for _, s := range steps {
		rows = append(rows, statsRow(s.Step, s.Stats))
	}
	if total != nil {
		rows = append(rows, statsRow("total", total))
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("Requests") + "\n")
	b.WriteString("  " + styleSubtle.Render(joinRow(headers, widths)) + "\n")
	for _, row := range rows {
		b.WriteString("  " + joinRow(row, widths) + "\n")
	}
	return b.String()
}

func statsRow(name string, s *stresstest.Stats) []string {
	return []string{
		name,
		fmt.Sprintf("%d", s.CompletedRequests),
		fmt.Sprintf("%.2f%%", s.HTTPFailureRate()*100),
		formatLatency(s.Avg()),
		formatLatency(s.Min()),
		formatLatency(s.P50()),
		formatLatency(s.P95()),
		formatLatency(s.P99()),
		formatLatency(s.Max()),
	}
}

func joinRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = styleCell.Width(widths[i] + 2).Render(cell)
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
}

func renderThresholds(results []stresstest.ThresholdResult) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Thresholds") + "\n")
	for _, r := range results {
		if r.Skipped {
			b.WriteString("  " + styleSubtle.Render(fmt.Sprintf("- %s: %s (no samples)", r.Metric, r.Expression)) + "\n")
			continue
		}
		line := fmt.Sprintf("%s: %s (observed %.4f)", r.Metric, r.Expression, r.Observed)
		if r.Passed {
			b.WriteString("  " + styleSuccess.Render(markPass+" "+line) + "\n")
		} else {
			b.WriteString("  " + styleError.Render(markFail+" "+line) + "\n")
		}
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case stresstest.StatusCompleted:
		return styleSuccess
	case stresstest.StatusCancelled, stresstest.StatusRunning:
		return styleWarning
	default:
		return styleError
	}
}

func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
