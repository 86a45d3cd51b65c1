package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zombor/leakscan/internal/leakage"
)

const separator = "----------------------------------------"

// theme holds the styles of the text report. Styles come from a renderer
// bound to the output, so colors are dropped when it is not a terminal.
type theme struct {
	title   lipgloss.Style
	label   lipgloss.Style
	alert   lipgloss.Style
	success lipgloss.Style
	hint    lipgloss.Style
}

func newTheme(w io.Writer) theme {
	r := lipgloss.NewRenderer(w)
	return theme{
		title:   r.NewStyle().Bold(true),
		label:   r.NewStyle().Foreground(lipgloss.Color("#5FAFD7")),
		alert:   r.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true),
		hint:    r.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true),
	}
}

// writeText renders the human readable report with at most limit leaks
func writeText(w io.Writer, r *leakage.Result, limit int) error {
	t := newTheme(w)
	var b strings.Builder

	fmt.Fprintln(&b, t.title.Render("Leakage check "+r.RunID))
	fmt.Fprintf(&b, "  %s %s  %s %s  %s %d\n",
		t.label.Render("hash:"), r.Kind,
		t.label.Render("strategy:"), r.Strategy,
		t.label.Render("threshold:"), r.Threshold,
	)
	writeSummary(&b, t, r.Reference)
	writeSummary(&b, t, r.Query)
	fmt.Fprintln(&b)

	if len(r.Leaks) == 0 {
		fmt.Fprintln(&b, t.success.Render("No leakage found"))
		fmt.Fprintf(&b, "No query image is within distance %d of a reference image.\n", r.Threshold)
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintln(&b, t.alert.Render(fmt.Sprintf("Found %d potential leaks between query and reference", len(r.Leaks))))

	shown := min(limit, len(r.Leaks))
	if shown > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, t.title.Render("Sample leaks:"))
		for _, l := range r.Leaks[:shown] {
			fmt.Fprintf(&b, "  %s %d\n", t.label.Render("Distance: "), l.Distance)
			fmt.Fprintf(&b, "  %s %s\n", t.label.Render("Query:    "), l.Query)
			fmt.Fprintf(&b, "  %s %s\n", t.label.Render("Reference:"), l.Reference)
			fmt.Fprintf(&b, "  %s\n", separator)
		}
	}
	if rest := len(r.Leaks) - shown; rest > 0 {
		fmt.Fprintln(&b, t.hint.Render(fmt.Sprintf("... and %d more (showing %d of %d)", rest, shown, len(r.Leaks))))
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Suggest removing these files from the reference set and retraining.")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeSummary(b *strings.Builder, t theme, s leakage.ScanSummary) {
	fmt.Fprintf(b, "  %s %s: %d images fingerprinted (%d distinct, %d skipped",
		t.label.Render(s.Label+":"), s.Root, s.Fingerprinted, s.Distinct, len(s.Skipped))
	if s.CacheHits > 0 {
		fmt.Fprintf(b, ", %d cached", s.CacheHits)
	}
	fmt.Fprintln(b, ")")
}
