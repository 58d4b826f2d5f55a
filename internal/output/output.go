// Package output formats CLI messages and search results.
package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/memesearch/internal/search"
)

// scoreBarWidth is the width of the bar drawn next to each result score.
const scoreBarWidth = 10

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	dim      lipgloss.Style
	accent   lipgloss.Style
}

// New creates a Writer without color.
func New(out io.Writer) *Writer {
	return NewWithColor(out, false)
}

// NewWithColor creates a Writer, styling paths and scores when useColor is set.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	w := &Writer{out: out, useColor: useColor}
	if useColor {
		w.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8A8A8"))
		w.accent = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6AC1"))
	}
	return w
}

// Status prints a message with an icon; an empty icon indents the message.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Folders lists the configured root folders.
func (w *Writer) Folders(folders []string) {
	if len(folders) == 0 {
		w.Status("📂", "No folders configured. Add one with: memesearch folders add <dir>")
		return
	}
	w.Statusf("📂", "%d folder(s):", len(folders))
	for _, f := range folders {
		w.Status("", f)
	}
}

// Results prints ranked search results. With explain set, the semantic and
// lexical components are shown under each score.
func (w *Writer) Results(query string, results []search.Result, explain bool) {
	if len(results) == 0 {
		w.Statusf("🔍", "No images found for %q", query)
		return
	}
	w.Statusf("🔍", "%d image(s) for %q", len(results), query)
	w.Newline()

	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%3d. %s %s  %s\n",
			i+1,
			w.style(w.accent, fmt.Sprintf("%.3f", r.Score)),
			renderScoreBar(r.Score, scoreBarWidth),
			filepath.Base(r.Path))
		_, _ = fmt.Fprintf(w.out, "     %s\n", w.style(w.dim, r.Path))
		if explain {
			_, _ = fmt.Fprintf(w.out, "     semantic %.3f  lexical %.3f\n", r.Semantic, r.Lexical)
		}
		if preview := strings.Join(strings.Fields(r.OCRPreview), " "); preview != "" {
			_, _ = fmt.Fprintf(w.out, "     %s\n", w.style(w.dim, "“"+preview+"”"))
		}
	}
}

func (w *Writer) style(s lipgloss.Style, text string) string {
	if !w.useColor {
		return text
	}
	return s.Render(text)
}

// renderScoreBar draws score, clamped to [0,1], as a bar of width cells.
func renderScoreBar(score float64, width int) string {
	filled := int(score * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
