// Package report renders diff and healing results for terminals and
// Markdown consumers.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/kamilpajak/fring/internal/healing"
	"github.com/kamilpajak/fring/internal/specdiff"
)

// Format selects the rendering style.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// Renderer writes human-readable reports. Colors are only emitted when
// the writer is an interactive terminal and the format is text.
type Renderer struct {
	W      io.Writer
	Format Format

	colors bool
}

// NewRenderer creates a renderer for the given writer.
func NewRenderer(w io.Writer, format Format) *Renderer {
	r := &Renderer{W: w, Format: format}
	if format == FormatText {
		if f, ok := w.(*os.File); ok {
			r.colors = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return r
}

func (r *Renderer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.W)
	if r.Format == FormatText {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func (r *Renderer) render(t table.Writer) {
	if r.Format == FormatMarkdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

func (r *Renderer) severityLabel(s specdiff.Severity) string {
	label := strings.ToUpper(string(s))
	if !r.colors {
		return label
	}
	switch s {
	case specdiff.SeverityBreaking:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case specdiff.SeverityMajor:
		return color.New(color.FgYellow).Sprint(label)
	case specdiff.SeverityMinor:
		return color.New(color.FgCyan).Sprint(label)
	default:
		return color.New(color.FgHiBlack).Sprint(label)
	}
}

// Diff renders a spec diff report: the summary line, a per-severity
// change table, and recommendations.
func (r *Renderer) Diff(rep *specdiff.DiffReport) {
	fmt.Fprintln(r.W, rep.SummaryText)
	fmt.Fprintln(r.W)

	if rep.Summary.TotalChanges > 0 {
		t := r.newTable()
		t.AppendHeader(table.Row{"SEVERITY", "CHANGE"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, WidthMax: 100},
		})
		for _, sev := range []specdiff.Severity{
			specdiff.SeverityBreaking,
			specdiff.SeverityMajor,
			specdiff.SeverityMinor,
			specdiff.SeverityPatch,
		} {
			for _, desc := range rep.Changes[sev] {
				t.AppendRow(table.Row{r.severityLabel(sev), desc})
			}
		}
		r.render(t)
		fmt.Fprintln(r.W)
	}

	if len(rep.MigrationNotes) > 0 {
		r.heading("Migration notes")
		for _, note := range rep.MigrationNotes {
			fmt.Fprintf(r.W, "  - %s\n", note)
		}
		fmt.Fprintln(r.W)
	}

	if len(rep.Recommendations) > 0 {
		r.heading("Recommendations")
		for _, rec := range rep.Recommendations {
			fmt.Fprintf(r.W, "  - %s\n", rec)
		}
	}
}

// Healing renders the outcome of a healing run as a table with per-run
// totals in the footer.
func (r *Renderer) Healing(attempts []healing.Attempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(r.W, "No healing attempts.")
		return
	}

	var healed, tokens int
	var cost float64
	var elapsed time.Duration

	t := r.newTable()
	t.AppendHeader(table.Row{"TEST", "STRATEGY", "STATE", "CACHE", "TOKENS", "COST", "TIME"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: 60},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	for _, a := range attempts {
		if a.Success {
			healed++
		}
		tokens += a.TokensUsed
		cost += a.EstimatedCost
		elapsed += a.Duration()

		cache := ""
		if a.CacheHit {
			cache = "hit"
		}
		t.AppendRow(table.Row{
			a.TestRef,
			string(a.Strategy),
			r.stateLabel(a.State),
			cache,
			a.TokensUsed,
			fmt.Sprintf("$%.4f", a.EstimatedCost),
			a.Duration().Round(time.Millisecond).String(),
		})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d healed", healed, len(attempts)),
		"", "", "",
		tokens,
		fmt.Sprintf("$%.4f", cost),
		elapsed.Round(time.Millisecond).String(),
	})
	r.render(t)
}

func (r *Renderer) stateLabel(s healing.State) string {
	if !r.colors {
		return string(s)
	}
	switch s {
	case healing.StateHealed:
		return color.New(color.FgGreen).Sprint(string(s))
	case healing.StateFailed:
		return color.New(color.FgRed).Sprint(string(s))
	case healing.StateBudgetExceeded:
		return color.New(color.FgYellow).Sprint(string(s))
	default:
		return string(s)
	}
}

func (r *Renderer) heading(s string) {
	if r.Format == FormatMarkdown {
		fmt.Fprintf(r.W, "### %s\n\n", s)
		return
	}
	if r.colors {
		_, _ = color.New(color.Bold).Fprintln(r.W, s)
		return
	}
	fmt.Fprintln(r.W, s)
}
