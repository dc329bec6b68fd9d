package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"storagectl/internal/types"
)

var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#7F8C8D")
)

// printer renders reports for an operator. Terminals get colored
// symbols; pipes and files get plain bracketed markers.
type printer struct {
	w        io.Writer
	terminal bool
	ok       lipgloss.Style
	warn     lipgloss.Style
	fail     lipgloss.Style
	muted    lipgloss.Style
	bold     lipgloss.Style
}

func newPrinter(w io.Writer) printer {
	renderer := lipgloss.NewRenderer(w)
	return printer{
		w:        w,
		terminal: isTerminal(w),
		ok:       renderer.NewStyle().Foreground(colorSuccess),
		warn:     renderer.NewStyle().Foreground(colorWarning),
		fail:     renderer.NewStyle().Foreground(colorError),
		muted:    renderer.NewStyle().Foreground(colorMuted),
		bold:     renderer.NewStyle().Bold(true),
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

func (p printer) marker(status types.StepStatus) string {
	symbol, plain, style := "?", "[??]", p.muted
	switch status {
	case types.StepStatusOK:
		symbol, plain, style = "✓", "[ok]", p.ok
	case types.StepStatusWarning:
		symbol, plain, style = "⚠", "[warn]", p.warn
	case types.StepStatusFailed:
		symbol, plain, style = "✗", "[fail]", p.fail
	case types.StepStatusPlanned:
		symbol, plain, style = "○", "[plan]", p.muted
	case types.StepStatusSkipped:
		symbol, plain, style = "○", "[skip]", p.muted
	}
	if !p.terminal {
		return plain
	}
	return style.Render(symbol)
}

func (p printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p printer) result(result types.OperationResult) {
	title := string(result.Operation)
	if result.DryRun {
		title += " (dry run)"
	}
	p.line("%s", p.bold.Render(title))
	for _, step := range result.Steps {
		detail := step.Message
		if step.Duration >= time.Second {
			detail = strings.TrimSpace(detail + " " + p.muted.Render("("+step.Duration.Round(time.Second).String()+")"))
		}
		p.line("  %s %-22s %s", p.marker(step.Status), step.Name, detail)
	}

	if result.Versions != nil {
		p.line("version: %s -> %s (%s)", orUnknown(result.Versions.Current), orUnknown(result.Versions.Latest), result.Versions.Source)
	}
	if result.Snapshot != nil {
		p.line("snapshot: %s (%s)", result.Snapshot.ID, humanize.Bytes(uint64(result.Snapshot.SizeBytes)))
	}
	if result.Health != nil {
		p.health(*result.Health)
	}

	elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	switch {
	case result.Succeeded():
		summary := fmt.Sprintf("%s %s finished in %s", p.marker(types.StepStatusOK), result.Operation, elapsed)
		if len(result.Warnings) > 0 {
			summary += fmt.Sprintf(" with %d warning(s)", len(result.Warnings))
		}
		if result.Message != "" {
			summary += ": " + result.Message
		}
		p.line("%s", summary)
	case result.State == types.RunStateCancelled:
		p.line("%s %s cancelled; nothing was changed", p.marker(types.StepStatusWarning), result.Operation)
	default:
		where := ""
		if result.AbortedStep != "" {
			where = " at " + result.AbortedStep
		}
		p.line("%s %s aborted%s: %s", p.marker(types.StepStatusFailed), result.Operation, where, result.Message)
	}
	if result.Remedy != "" {
		p.line("next: %s", result.Remedy)
	}
}

func (p printer) health(report types.HealthReport) {
	status := types.StepStatusOK
	if !report.Passed {
		status = types.StepStatusFailed
	}
	p.line("%s health %d/%d (threshold %d)", p.marker(status), report.Score, report.MaxScore, report.Threshold)
	for _, check := range report.Checks {
		if check.Passed {
			continue
		}
		p.line("    %s %s: %s", p.marker(types.StepStatusFailed), check.Name, check.Detail)
	}
}

func (p printer) snapshots(snapshots []types.Snapshot, latestID string, now time.Time) {
	if len(snapshots) == 0 {
		p.line("no snapshots")
		return
	}
	for _, snapshot := range snapshots {
		flags := ""
		if snapshot.ID == latestID {
			flags += " latest"
		}
		if snapshot.Partial {
			flags += " partial"
		}
		p.line("%-20s %-10s %-14s %-12s%s",
			snapshot.ID,
			humanize.Bytes(uint64(snapshot.SizeBytes)),
			humanize.RelTime(snapshot.CreatedAt, now, "ago", "from now"),
			orUnknown(snapshot.Version),
			flags,
		)
	}
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}
