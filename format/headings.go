package format

import "strings"

// FormatCategorized separates the known category headings of a section with one blank line.
// A heading is recognised only when a trimmed line equals one of headings exactly. The first
// recognised heading gets no separator; every other line passes through unchanged.
func FormatCategorized(content string, headings []string) string {
	known := make(map[string]bool, len(headings))
	for _, h := range headings {
		known[strings.TrimSpace(h)] = true
	}

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines)+len(headings))
	seen := false
	for _, l := range lines {
		if !known[strings.TrimSpace(l)] {
			out = append(out, l)
			continue
		}
		if seen {
			for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
				out = out[:len(out)-1]
			}
			out = append(out, "")
		}
		seen = true
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// MissingHeadings returns the headings of the list that do not appear as a line of content.
func MissingHeadings(content string, headings []string) []string {
	present := make(map[string]bool)
	for _, l := range strings.Split(content, "\n") {
		present[strings.TrimSpace(l)] = true
	}
	var missing []string
	for _, h := range headings {
		if !present[strings.TrimSpace(h)] {
			missing = append(missing, h)
		}
	}
	return missing
}
