package format

import (
	"regexp"
	"strings"
)

const timelineSeparator = "| --- | --- | --- |"

var (
	lineBreakTagRe = regexp.MustCompile(`(?i)<br\s*/?>`)
	boldMarkerRe   = regexp.MustCompile(`\*\*+|__+`)
)

func isTimelineHeader(line string) bool {
	if !isTableLine(line) {
		return false
	}
	cells := splitRow(line)
	if len(cells) != 3 {
		return false
	}
	return normalizeHeaderCell(cells[0]) == "phase" &&
		normalizeHeaderCell(cells[1]) == "duration" &&
		normalizeHeaderCell(cells[2]) == "activities"
}

// NormalizeTimeline rewrites every Phase | Duration | Activities table so that each row sits
// on one line. Activities that wrap onto continuation lines, or onto follow-up rows with empty
// Phase and Duration cells, are folded into the row they belong to.
func NormalizeTimeline(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if !isTimelineHeader(lines[i]) || i+1 >= len(lines) || !isSeparatorRow(lines[i+1]) {
			out = append(out, lines[i])
			continue
		}
		rows, next := collectTimelineRows(lines, i+2)
		out = append(out, joinRow(splitRow(lines[i])), timelineSeparator)
		for _, r := range rows {
			out = append(out, joinRow(r))
		}
		i = next - 1
	}
	return strings.Join(out, "\n")
}

func collectTimelineRows(lines []string, start int) ([][]string, int) {
	var (
		rows    [][]string
		pending []string
	)
	flush := func() {
		if len(pending) > 0 {
			rows = appendTimelineRow(rows, splitRow(strings.Join(pending, "\n")))
			pending = nil
		}
	}
	j := start
	for ; j < len(lines); j++ {
		t := strings.TrimSpace(lines[j])
		if len(pending) == 0 && (t == "" || !strings.HasPrefix(t, "|")) {
			break
		}
		if t == "" {
			// A wrapped cell may span blank lines only when a table line follows.
			if next := nextNonBlank(lines, j+1); strings.HasPrefix(next, "|") || strings.HasSuffix(next, "|") {
				continue
			}
			flush()
			break
		}
		// Rows may omit the trailing pipe: a new leading pipe after three cells starts a new row.
		if strings.HasPrefix(t, "|") && len(splitRow(strings.Join(pending, "\n"))) >= 3 {
			flush()
		}
		pending = append(pending, t)
		joined := strings.Join(pending, "\n")
		if strings.HasSuffix(joined, "|") && len(splitRow(joined)) >= 3 {
			rows = appendTimelineRow(rows, splitRow(joined))
			pending = nil
		}
	}
	flush()
	return rows, j
}

func nextNonBlank(lines []string, from int) string {
	for ; from < len(lines); from++ {
		if t := strings.TrimSpace(lines[from]); t != "" {
			return t
		}
	}
	return ""
}

func appendTimelineRow(rows [][]string, cells []string) [][]string {
	for len(cells) < 3 {
		cells = append(cells, "")
	}
	if len(cells) > 3 {
		cells = []string{cells[0], cells[1], strings.Join(cells[2:], " ")}
	}
	phase := collapseSpace(cells[0])
	duration := collapseSpace(cells[1])
	activities := FlattenCell(cells[2])

	if phase == "" && duration == "" && len(rows) > 0 {
		if activities != "" {
			prev := rows[len(rows)-1]
			prev[2] = FlattenCell(prev[2] + " " + activities)
		}
		return rows
	}
	return append(rows, []string{phase, duration, activities})
}

// FlattenCell strips manual line breaks, bold markers and repeated whitespace from a cell.
func FlattenCell(s string) string {
	s = lineBreakTagRe.ReplaceAllString(s, " ")
	s = boldMarkerRe.ReplaceAllString(s, "")
	return collapseSpace(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}
