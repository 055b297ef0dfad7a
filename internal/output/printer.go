// Package output provides styled terminal output for the atom CLI.
//
// Key types:
//   - [Printer] writes progress lines, target listings and generation results
//
// Styles use lipgloss and degrade to plain text when the writer is not a
// terminal, so tests can assert on the raw strings.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TargetInfo is one row of a target listing.
type TargetInfo struct {
	Name         string
	Description  string
	Dependencies []string
	Params       []string
}

// FileChange reports the outcome of writing one generated file.
type FileChange struct {
	Path    string
	Changed bool
}

// Printer writes styled CLI output.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a Printer writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Header prints a bold section title.
func (p *Printer) Header(title string) {
	fmt.Fprintln(p.out, headerStyle.Render(title))
}

// TargetStarted prints a progress line before a target runs.
func (p *Printer) TargetStarted(index, total int, name string) {
	fmt.Fprintf(p.out, "%s %s\n", mutedStyle.Render(fmt.Sprintf("[%d/%d]", index, total)), stepStyle.Render(name))
}

// Targets prints a listing of targets.
func (p *Printer) Targets(targets []TargetInfo) {
	p.Header("Targets")
	if len(targets) == 0 {
		fmt.Fprintln(p.out, mutedStyle.Render("  (none)"))
		return
	}

	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, []string{
			t.Name,
			t.Description,
			strings.Join(t.Dependencies, ", "),
			strings.Join(t.Params, ", "),
		})
	}
	tbl := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("Name", "Description", "Depends on", "Params").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(p.out, tbl.String())
}

// Generated prints the result of workflow generation.
func (p *Printer) Generated(changes []FileChange) {
	p.Header("Workflows")
	for _, c := range changes {
		if c.Changed {
			fmt.Fprintf(p.out, "  %s %s\n", successStyle.Render("written"), c.Path)
		} else {
			fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("unchanged"), c.Path)
		}
	}
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.out, warnStyle.Render("warning: "+fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, errorStyle.Render("error: "+err.Error()))
}
