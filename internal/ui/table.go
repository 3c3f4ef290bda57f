package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCellWidth bounds a single column.
const maxCellWidth = 40

// Table renders aligned columns. Widths are measured in terminal cells so
// Chinese course names line up.
type Table struct {
	Headers []string
	Rows    [][]string
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render lays out the table with two spaces between columns.
func (t *Table) Render(s *Styles) string {
	cols := len(t.Headers)
	for _, r := range t.Rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], min(runewidth.StringWidth(c), maxCellWidth))
		}
	}
	measure(t.Headers)
	for _, r := range t.Rows {
		measure(r)
	}

	var b strings.Builder
	line := func(cells []string, style func(string) string) {
		parts := make([]string, cols)
		for i := range cols {
			var c string
			if i < len(cells) {
				c = runewidth.Truncate(cells[i], maxCellWidth, "…")
			}
			if i < cols-1 {
				c = runewidth.FillRight(c, widths[i])
			}
			parts[i] = style(c)
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteByte('\n')
	}

	plain := func(c string) string { return c }
	if len(t.Headers) > 0 {
		header := plain
		if s != nil {
			header = func(c string) string { return s.TableHeader.Render(c) }
		}
		line(t.Headers, header)
	}
	for _, r := range t.Rows {
		line(r, plain)
	}
	return b.String()
}
