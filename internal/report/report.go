// Package report renders health summaries for terminals and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nholik/backend-sentinel/internal/health"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

const (
	ruleWidth    = 50
	subruleWidth = 30
)

// Options controls the text rendering.
type Options struct {
	// Details adds the endpoint of every connected service.
	Details bool
	// Required, when set, appends a readiness verdict for these categories.
	Required []registry.Category
}

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	}
}

func (s styles) status(status probe.Status) lipgloss.Style {
	switch status {
	case probe.StatusConnected:
		return s.ok
	case probe.StatusUnavailable, probe.StatusDisconnected:
		return s.warn
	default:
		return s.fail
	}
}

var statusIcons = map[probe.Status]string{
	probe.StatusConnected:    "✔",
	probe.StatusError:        "✘",
	probe.StatusUnavailable:  "!",
	probe.StatusTimeout:      "⏱",
	probe.StatusDisconnected: "-",
}

func icon(status probe.Status) string {
	if i, ok := statusIcons[status]; ok {
		return i
	}
	return "?"
}

// Text writes a human readable report grouped by category.
func Text(w io.Writer, summary health.Summary, opts Options) error {
	st := newStyles(w)
	var b strings.Builder

	if summary.Total == 0 {
		b.WriteString("No connection checks have been run yet.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString(st.title.Render("Backend Connection Results") + "\n")
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")

	for _, category := range orderedCategories(summary) {
		fmt.Fprintf(&b, "\n%s\n", st.section.Render(title(category)+" Services:"))
		b.WriteString(strings.Repeat("-", subruleWidth) + "\n")

		for _, detail := range summary.Details {
			if detail.Category != category {
				continue
			}
			line := fmt.Sprintf("%s %s: %s", icon(detail.Status), detail.Name, detail.Message)
			if detail.Elapsed > 0 {
				line += fmt.Sprintf(" (%.2fs)", detail.Elapsed.Seconds())
			}
			b.WriteString(st.status(detail.Status).Render(line) + "\n")
			if detail.Substituted {
				b.WriteString(st.muted.Render("   via fallback "+detail.Service) + "\n")
			}
			if opts.Details && detail.Status == probe.StatusConnected && detail.Endpoint != "" {
				b.WriteString(st.muted.Render("   @ "+detail.Endpoint) + "\n")
			}
		}
	}

	fmt.Fprintf(&b, "\nSummary: %d/%d services connected\n", summary.Connected, summary.Total)
	if summary.Failed > 0 {
		b.WriteString(st.fail.Render(fmt.Sprintf("%d connections failed", summary.Failed)) + "\n")
	}
	if summary.Timeout > 0 {
		b.WriteString(st.fail.Render(fmt.Sprintf("%d connections timed out", summary.Timeout)) + "\n")
	}
	if summary.Unavailable > 0 {
		b.WriteString(st.warn.Render(fmt.Sprintf("%d clients unavailable", summary.Unavailable)) + "\n")
	}

	if opts.Required != nil {
		missing := summary.Missing(opts.Required)
		if len(missing) == 0 {
			b.WriteString("\n" + st.ok.Render("Backend connection checks passed.") + "\n")
			b.WriteString("All required categories are available.\n")
		} else {
			names := make([]string, 0, len(missing))
			for _, category := range missing {
				names = append(names, string(category))
			}
			b.WriteString("\n" + st.fail.Render("Backend connection checks failed.") + "\n")
			fmt.Fprintf(&b, "Missing required categories: %s\n", strings.Join(names, ", "))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes the summary as indented JSON.
func JSON(w io.Writer, summary health.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// orderedCategories lists the known categories present in summary first,
// then any other category in detail order.
func orderedCategories(summary health.Summary) []registry.Category {
	present := make(map[registry.Category]bool)
	var extra []registry.Category
	for _, detail := range summary.Details {
		if !present[detail.Category] {
			present[detail.Category] = true
			if !isKnownCategory(detail.Category) {
				extra = append(extra, detail.Category)
			}
		}
	}

	var ordered []registry.Category
	for _, category := range registry.Categories {
		if present[category] {
			ordered = append(ordered, category)
		}
	}
	return append(ordered, extra...)
}

func isKnownCategory(category registry.Category) bool {
	for _, known := range registry.Categories {
		if known == category {
			return true
		}
	}
	return false
}

func title(category registry.Category) string {
	s := string(category)
	if s == "" {
		return "Uncategorized"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
