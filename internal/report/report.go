// Package report renders the outcome of a harness run for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/snap-telemetry/snapharness/internal/errors"
	"github.com/snap-telemetry/snapharness/internal/orchestrator"
)

// DefaultWidth is the line width used when none is configured.
const DefaultWidth = 100

// Options controls rendering.
type Options struct {
	Width   int  // maximum line width; 0 uses DefaultWidth
	Verbose bool // print complete error messages including captured output
}

// Write renders r to w.
func Write(w io.Writer, r *orchestrator.Report, opts Options) error {
	_, err := io.WriteString(w, Render(r, opts))
	return err
}

// Render returns the report as styled text.
func Render(r *orchestrator.Report, opts Options) string {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render(summary(r)))
	b.WriteString("\n")
	if r.DaemonVersion != "" {
		b.WriteString(mutedStyle.Render("daemon: "+r.DaemonVersion) + "\n")
	}
	if r.Err != nil {
		b.WriteString(failStyle.Render(failMark+" run aborted: ") + errorText(r.Err, opts) + "\n")
	}

	if len(r.Plugins) > 0 {
		b.WriteString(sectionStyle.Render("Plugins") + "\n")
		width := 0
		for _, p := range r.Plugins {
			width = max(width, len(p.Dependency.String()))
		}
		for _, p := range r.Plugins {
			b.WriteString(pluginLine(p, width, opts) + "\n")
		}
	}

	if len(r.Tasks) > 0 {
		b.WriteString(sectionStyle.Render("Tasks") + "\n")
		width := 0
		for _, t := range r.Tasks {
			width = max(width, len(t.File))
		}
		for _, t := range r.Tasks {
			b.WriteString(taskLines(t, width, opts))
		}
	}

	if len(r.Retries) > 0 {
		b.WriteString(sectionStyle.Render("Polling") + "\n")
		width := 0
		for _, s := range r.Retries {
			width = max(width, len(s.Operation))
		}
		for _, s := range r.Retries {
			line := fmt.Sprintf("  %s  polls %d  attempts %d  retries %d", pad(s.Operation, width), s.Polls, s.Attempts, s.Retries)
			if s.Failures > 0 {
				line += "  " + warnStyle.Render(fmt.Sprintf("exhausted %d", s.Failures))
			}
			b.WriteString(mutedStyle.Render(line) + "\n")
		}
	}
	return b.String()
}

func summary(r *orchestrator.Report) string {
	passed := 0
	for _, t := range r.Tasks {
		if t.Passed() {
			passed++
		}
	}
	return fmt.Sprintf("snapharness: %d/%d tasks passed, %d failures (%s)",
		passed, len(r.Tasks), r.Failed(), r.Duration.Round(time.Millisecond))
}

func pluginLine(p orchestrator.PluginOutcome, width int, opts Options) string {
	mark := passStyle.Render(passMark)
	if p.Err != nil {
		mark = failStyle.Render(failMark)
	}
	where := "local  " + p.Source.Path
	if !p.Source.Local {
		where = "remote " + p.Source.URL
		if p.Source.Rule != "" {
			where += " (" + p.Source.Rule + ")"
		}
	}
	line := "  " + mark + " " + pad(p.Dependency.String(), width) + "  " + mutedStyle.Render(truncate(where, opts.Width-width-6))
	if p.Err != nil {
		line += "\n      " + categoryLabel(p.Err) + errorText(p.Err, opts)
	}
	return line
}

func taskLines(t orchestrator.Outcome, width int, opts Options) string {
	var b strings.Builder
	if t.Passed() {
		b.WriteString("  " + passStyle.Render(passMark) + " " + pad(t.File, width) + "  " + t.TaskID)
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s", t.Duration.Round(time.Millisecond))) + "\n")
		return b.String()
	}

	b.WriteString("  " + failStyle.Render(failMark) + " " + pad(t.File, width))
	if t.TaskID != "" {
		b.WriteString("  " + t.TaskID)
	}
	b.WriteString(mutedStyle.Render("  at "+t.Reached.String()) + "\n")
	b.WriteString("      " + categoryLabel(t.Err) + errorText(t.Err, opts) + "\n")
	if t.Cleanup != nil {
		b.WriteString("      " + warnStyle.Render("cleanup: ") + errorText(t.Cleanup, opts) + "\n")
	}
	return b.String()
}

func categoryLabel(err error) string {
	if err == nil {
		return ""
	}
	return failStyle.Render(errors.Category(err) + ": ")
}

// errorText returns the first line of err, truncated to the line width,
// or the whole message when verbose.
func errorText(err error, opts Options) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if opts.Verbose {
		return strings.ReplaceAll(strings.TrimRight(msg, "\n"), "\n", "\n        ")
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return truncate(msg, opts.Width-8)
}

// truncate shortens s to maxWidth columns, adding "..." if truncated.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
