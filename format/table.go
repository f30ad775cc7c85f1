package format

import (
	"fmt"
	"strings"
)

// TableKind names the styling variant of a table. It is derived from the header text only.
type TableKind string

const (
	TableOperational        TableKind = "operational"
	TableAdditionalFeatures TableKind = "additional-features"
	TableTotalInvestment    TableKind = "total-investment"
	TableTimeline           TableKind = "implementation-timeline"
	TableGeneric            TableKind = "generic"
)

type Table struct {
	Kind   TableKind  `json:"kind"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// ClassifyTable picks the table variant from its header cells.
func ClassifyTable(header []string) TableKind {
	cells := make([]string, 0, len(header))
	for _, h := range header {
		cells = append(cells, normalizeHeaderCell(h))
	}
	has := func(word string) bool {
		for _, c := range cells {
			if strings.Contains(c, word) {
				return true
			}
		}
		return false
	}
	switch {
	case has("phase") && has("duration") && has("activit"):
		return TableTimeline
	case has("feature"):
		return TableAdditionalFeatures
	case has("monthly") || has("operational") || has("recurring"):
		return TableOperational
	case has("total") || has("investment"):
		return TableTotalInvestment
	default:
		return TableGeneric
	}
}

func normalizeHeaderCell(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.ToLower(strings.TrimSpace(s))
}

// IsTotalRow reports whether a data row is the summary row of a cost table.
func IsTotalRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	return strings.HasPrefix(normalizeHeaderCell(row[0]), "total")
}

// ParseTables returns every markdown table found in text.
func ParseTables(text string) []Table {
	return Parse(text).Tables()
}

// splitRow splits a table row on pipes, trimming cells and dropping empty boundary cells.
func splitRow(line string) []string {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparatorRow(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" || !strings.Contains(t, "-") {
		return false
	}
	for _, r := range t {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

func isTableLine(line string) bool {
	return strings.Contains(line, "|")
}

// scanTable recognises a table starting at lines[i]: a header row with pipes, a separator
// row, then zero or more rows containing pipes. It returns the index after the table.
func scanTable(lines []string, i int) (Table, int, bool) {
	if i+1 >= len(lines) || !isTableLine(lines[i]) || !isSeparatorRow(lines[i+1]) {
		return Table{}, i, false
	}
	header := splitRow(lines[i])
	if len(header) == 0 {
		return Table{}, i, false
	}
	t := Table{Header: header, Kind: ClassifyTable(header)}
	j := i + 2
	for ; j < len(lines); j++ {
		if !isTableLine(lines[j]) || strings.TrimSpace(lines[j]) == "" {
			break
		}
		t.Rows = append(t.Rows, splitRow(lines[j]))
	}
	return t, j, true
}

// ConvertTables replaces markdown tables in text with HTML tables and leaves every other
// line untouched. HTML output contains no pipe-delimited rows, so a second pass is a no-op.
func ConvertTables(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		t, next, ok := scanTable(lines, i)
		if !ok {
			out = append(out, lines[i])
			continue
		}
		out = append(out, TableHTML(t))
		i = next - 1
	}
	return strings.Join(out, "\n")
}

// TableHTML renders a table on a single line with variant classes for styling.
func TableHTML(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<table class="proposal-table proposal-table--%s">`, t.Kind)
	b.WriteString("<thead><tr>")
	for _, h := range t.Header {
		b.WriteString("<th>")
		b.WriteString(InlineHTML(h))
		b.WriteString("</th>")
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range t.Rows {
		if t.Kind == TableTotalInvestment && IsTotalRow(row) {
			b.WriteString(`<tr class="total-row">`)
		} else {
			b.WriteString("<tr>")
		}
		for i := range t.Header {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString("<td>")
			b.WriteString(InlineHTML(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}
