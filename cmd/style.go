package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/models"
	"github.com/grovetools/kw/pkg/selection"
)

var (
	colorMuted   = lipgloss.Color("#565f89")
	colorPrimary = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	pathStyle    = lipgloss.NewStyle().Foreground(colorPrimary)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSelection(w io.Writer, label string, sel selection.Selection) {
	if sel.IsEmpty() {
		fmt.Fprintln(w, mutedStyle.Render(label+": (empty)"))
		return
	}
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("%s (%d):", label, len(sel))))
	for _, p := range sel {
		fmt.Fprintf(w, "  %s\n", pathStyle.Render(p))
	}
}

func printReport(w io.Writer, r *action.Report) {
	status := successStyle.Render("✓")
	if r.Partial() {
		status = warningStyle.Render("!")
	}
	fmt.Fprintf(w, "%s %s %s\n", status, r.Summary(), mutedStyle.Render("in "+r.Duration().Round(time.Millisecond).String()))
	for _, out := range r.Outputs {
		fmt.Fprintf(w, "  %s %s\n", pathStyle.Render(out.Path), mutedStyle.Render(out.DisplayTitle()))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s %s\n", errorStyle.Render("✗"), f.String())
	}
}

func itemLine(item *models.Item) string {
	return fmt.Sprintf("%s  %s", pathStyle.Render(item.Path), item.DisplayTitle())
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
