package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// OutcomeNotRun is the outcome label of targets that never started.
// Headless summaries omit these rows.
const OutcomeNotRun = "NotRun"

// Row is one target line of the summary table.
type Row struct {
	Target   string
	Outcome  string
	Duration time.Duration
	// Detail is the failure message, if any.
	Detail string
}

// Summary is the per-target outcome of a run.
type Summary struct {
	RunID    string
	Rows     []Row
	Headless bool
}

// VisibleRows returns the rows to render, dropping NotRun rows when headless.
func (s Summary) VisibleRows() []Row {
	if !s.Headless {
		return s.Rows
	}
	rows := make([]Row, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.Outcome != OutcomeNotRun {
			rows = append(rows, r)
		}
	}
	return rows
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	outcomeStyle = map[string]lipgloss.Style{
		"Succeeded":   cellStyle.Foreground(lipgloss.Color("10")),
		"Failed":      cellStyle.Foreground(lipgloss.Color("9")),
		"Skipped":     cellStyle.Foreground(lipgloss.Color("11")),
		"Interrupted": cellStyle.Foreground(lipgloss.Color("13")),
		"NotRun":      cellStyle.Foreground(lipgloss.Color("8")),
	}
)

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// RenderConsole writes the summary table, the accumulated report data and the
// warnings/errors section to w.
func (s *Service) RenderConsole(w io.Writer, sum Summary) error {
	var sb strings.Builder

	title := "Build summary"
	if sum.RunID != "" {
		title += " (" + sum.RunID + ")"
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")

	rows := sum.VisibleRows()
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{s.mask(r.Target), r.Outcome, formatDuration(r.Duration)})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Target", "Outcome", "Duration").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(cells) {
				if st, ok := outcomeStyle[cells[row][1]]; ok {
					return st
				}
			}
			return cellStyle
		})
	sb.WriteString(t.String())
	sb.WriteString("\n")

	for _, r := range rows {
		if r.Detail != "" {
			fmt.Fprintf(&sb, "%s: %s\n", r.Target, s.mask(r.Detail))
		}
	}

	for _, d := range s.Data() {
		sb.WriteString("\n")
		s.renderConsoleData(&sb, d)
	}

	if logs := s.Logs(); len(logs) > 0 {
		sb.WriteString("\n")
		sb.WriteString(titleStyle.Render("Warnings and errors"))
		sb.WriteString("\n")
		for _, e := range logs {
			fmt.Fprintf(&sb, "  [%s] %s\n", e.Level, s.mask(e.Text()))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (s *Service) renderConsoleData(sb *strings.Builder, d Data) {
	if h := d.Heading(); h != "" {
		sb.WriteString(titleStyle.Render(s.mask(h)))
		sb.WriteString("\n")
	}
	switch v := d.(type) {
	case TextData:
		sb.WriteString(s.mask(v.Text))
		sb.WriteString("\n")
	case ListData:
		for _, item := range v.Items {
			sb.WriteString("  • " + s.mask(item) + "\n")
		}
	case TableData:
		rows := make([][]string, len(v.Rows))
		for i, r := range v.Rows {
			rows[i] = s.maskAll(r)
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(borderStyle).
			Headers(s.maskAll(v.Header)...).
			Rows(rows...)
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
}

// WriteMarkdown writes the report as GitHub-flavoured markdown, suitable for a
// CI job summary.
func (s *Service) WriteMarkdown(w io.Writer, sum Summary) error {
	var sb strings.Builder

	sb.WriteString("# Build summary\n\n")
	if sum.RunID != "" {
		fmt.Fprintf(&sb, "Run `%s`\n\n", sum.RunID)
	}

	sb.WriteString("| Target | Outcome | Duration |\n")
	sb.WriteString("| --- | --- | --- |\n")
	for _, r := range sum.VisibleRows() {
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", s.mdCell(r.Target), r.Outcome, formatDuration(r.Duration))
	}

	var failures []Row
	for _, r := range sum.VisibleRows() {
		if r.Detail != "" {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		sb.WriteString("\n## Failures\n\n")
		for _, r := range failures {
			fmt.Fprintf(&sb, "- **%s**: %s\n", s.mask(r.Target), s.mask(r.Detail))
		}
	}

	for _, d := range s.Data() {
		sb.WriteString("\n")
		if h := d.Heading(); h != "" {
			fmt.Fprintf(&sb, "## %s\n\n", s.mask(h))
		}
		switch v := d.(type) {
		case TextData:
			sb.WriteString(s.mask(v.Text))
			sb.WriteString("\n")
		case ListData:
			for _, item := range v.Items {
				fmt.Fprintf(&sb, "- %s\n", s.mask(item))
			}
		case TableData:
			header := make([]string, len(v.Header))
			sep := make([]string, len(v.Header))
			for i, h := range v.Header {
				header[i] = s.mdCell(h)
				sep[i] = "---"
			}
			fmt.Fprintf(&sb, "| %s |\n| %s |\n", strings.Join(header, " | "), strings.Join(sep, " | "))
			for _, r := range v.Rows {
				cells := make([]string, len(r))
				for i, c := range r {
					cells[i] = s.mdCell(c)
				}
				fmt.Fprintf(&sb, "| %s |\n", strings.Join(cells, " | "))
			}
		}
	}

	if logs := s.Logs(); len(logs) > 0 {
		sb.WriteString("\n## Warnings and errors\n\n")
		for _, e := range logs {
			fmt.Fprintf(&sb, "- `%s` %s\n", e.Level, s.mask(e.Text()))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (s *Service) maskAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = s.mask(v)
	}
	return out
}

func (s *Service) mdCell(v string) string {
	v = s.mask(v)
	v = strings.ReplaceAll(v, "|", `\|`)
	return strings.ReplaceAll(v, "\n", " ")
}
