package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/weldtrack/internal/app"
	"golang.org/x/term"
)

const markdownWrapWidth = 100

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableAlertStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("203"))
)

// renderTable writes rows as a rounded lipgloss table. alert marks rows drawn in the warning color.
func renderTable(w io.Writer, header []string, rows [][]string, alert func(row []string) bool) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(header...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case alert != nil && row >= 0 && row < len(rows) && alert(rows[row]):
				return tableAlertStyle
			default:
				return tableCellStyle
			}
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// renderMarkdown renders through glamour, falling back to plain styling off a terminal.
func renderMarkdown(w io.Writer, markdown string) error {
	style := styles.NoTTYStyle
	if isTerminal(w) {
		style = styles.DarkStyle
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(markdownWrapWidth),
	)
	if err != nil {
		return fmt.Errorf("build markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// efficiencyMarkdown renders efficiency lines as a markdown table.
func efficiencyMarkdown(lines []app.EfficiencyLine) string {
	var b strings.Builder
	b.WriteString("# Efficiency by material\n\n")
	if len(lines) == 0 {
		b.WriteString("No production in the selected window.\n")
		return b.String()
	}
	b.WriteString("| Material | Person hours | Diameter | Ratio | Baseline | Classification |\n")
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, line := range lines {
		baseline := "-"
		if line.HasBaseline {
			baseline = formatNumber(line.Baseline)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			line.Material.Label(),
			formatNumber(line.PersonHours),
			formatNumber(line.DiameterSum),
			formatNumber(line.Ratio),
			baseline,
			line.Classification,
		)
	}
	b.WriteString("\nRatio is person-hours per diameter unit; at or below baseline counts as efficient.\n")
	return b.String()
}
