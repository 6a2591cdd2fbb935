// Package display renders responses, diffs, and status lines for the
// terminal. Markdown goes through glamour; diffs are unified diffs with
// per-line color; everything degrades to plain text when rendering fails.
package display

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/coda/internal/token"
	"github.com/sokinpui/coda/internal/ui"
)

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	delStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	statusCrit  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// Renderer renders model output and apply previews.
type Renderer struct {
	markdown *glamour.TermRenderer
	// Plain disables markdown and color, for piped output.
	Plain bool
}

// New builds a renderer. Glamour failures leave markdown rendering off
// rather than failing the run.
func New(plain bool) *Renderer {
	r := &Renderer{Plain: plain}
	if !plain {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// Markdown renders markdown to the terminal, falling back to the raw text.
func (r *Renderer) Markdown(text string) string {
	if r.Plain || r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return out
}

// Response prints a complete model response.
func (r *Renderer) Response(text string) {
	fmt.Fprintln(os.Stdout, strings.TrimRight(r.Markdown(text), "\n"))
}

// Diff prints a colored unified diff of one pending change.
func (r *Renderer) Diff(path, oldContent, newContent string) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil || text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(os.Stdout, r.colorDiffLine(line))
	}
}

func (r *Renderer) colorDiffLine(line string) string {
	if r.Plain {
		return line
	}
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return headerStyle.Render(line)
	case strings.HasPrefix(line, "@@"):
		return hunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return addStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return delStyle.Render(line)
	}
	return line
}

// TokenStatus formats a one-line usage summary, colored by threshold.
func (r *Renderer) TokenStatus(u token.Usage, status token.Status) string {
	line := fmt.Sprintf("tokens: %d / %d (%.0f%%) model: %s",
		u.Consumed, u.ContextWindow, u.Ratio()*100, u.ModelName)
	if r.Plain {
		return line
	}
	switch status {
	case token.StatusCritical:
		return statusCrit.Render(line)
	case token.StatusWarning:
		return statusWarn.Render(line)
	}
	return line
}

// Confirm asks a yes/no question on the terminal. Empty input means yes.
func Confirm(prompt string) bool {
	ui.Prompt("%s [Y/n] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true
	}
	return false
}
