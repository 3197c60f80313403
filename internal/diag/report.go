package diag

import (
	"bytes"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

var (
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Report writes the diagnostics as a table ordered by source location,
// followed by a one-line summary.
func Report(w io.Writer, ds []Diagnostic) error {
	sorted := make([]Diagnostic, len(ds))
	copy(sorted, ds)
	Sort(sorted)

	var buf bytes.Buffer
	if len(sorted) > 0 {
		table := tablewriter.NewWriter(&buf)
		table.SetHeader([]string{"Location", "Severity", "Kind", "Subject", "Message"})
		table.SetBorder(false)
		table.SetCenterSeparator("")
		table.SetAutoWrapText(false)
		table.SetColumnAlignment([]int{
			tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
			tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		})
		for _, d := range sorted {
			table.Append([]string{d.Location.String(), d.Severity.String(), d.Kind.String(), d.Subject, d.Message})
		}
		table.Render()
	}

	buf.WriteString(summary(sorted))
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func summary(ds []Diagnostic) string {
	var errs, warns int
	for _, d := range ds {
		switch d.Severity {
		case Error:
			errs++
		case Warning:
			warns++
		}
	}
	switch {
	case errs > 0:
		return errorStyle.Render(fmt.Sprintf("%d error(s), %d warning(s)", errs, warns))
	case warns > 0:
		return warningStyle.Render(fmt.Sprintf("%d warning(s)", warns))
	}
	return okStyle.Render("no diagnostics")
}
