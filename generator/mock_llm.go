package generator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MockLLM is an offline stand-in for local runs. It reads the format contract of the prompt
// and answers with placeholder content of exactly that shape.
type MockLLM struct{}

var (
	mockTitleRe     = regexp.MustCompile(`Write the "([^"]+)" section`)
	mockSentencesRe = regexp.MustCompile(`Write exactly (\d+) sentences`)
	mockBulletsRe   = regexp.MustCompile(`Write exactly (\d+) bullet points`)
	mockPerHeadRe   = regexp.MustCompile(`Under each heading write exactly (\d+) bullet points`)
	mockHeadingsRe  = regexp.MustCompile(`Use exactly these headings, each on its own line, in this order: (.+)`)
	mockTableRe     = regexp.MustCompile(`(?m)^(?:Include|Write) a markdown table with exactly these columns: (\|.+\|)$`)
	mockHeadingRe   = regexp.MustCompile(`[^:]+:`)
)

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	user := prompt.User
	title := "Section"
	if mt := mockTitleRe.FindStringSubmatch(user); mt != nil {
		title = mt[1]
	}

	var sb strings.Builder
	switch {
	case mockSentencesRe.MatchString(user):
		n := atoi(mockSentencesRe.FindStringSubmatch(user)[1])
		for i := 1; i <= n; i++ {
			if i > 1 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "Placeholder sentence %d for the %s.", i, strings.ToLower(title))
		}
	case mockHeadingsRe.MatchString(user):
		per := 1
		if mp := mockPerHeadRe.FindStringSubmatch(user); mp != nil {
			per = atoi(mp[1])
		}
		for _, h := range mockHeadingRe.FindAllString(mockHeadingsRe.FindStringSubmatch(user)[1], -1) {
			sb.WriteString(strings.TrimSpace(h))
			sb.WriteString("\n")
			for i := 1; i <= per; i++ {
				fmt.Fprintf(&sb, "* Placeholder point %d\n", i)
			}
		}
	case mockBulletsRe.MatchString(user):
		n := atoi(mockBulletsRe.FindStringSubmatch(user)[1])
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&sb, "* Placeholder %s point %d\n", strings.ToLower(title), i)
		}
	case mockTableRe.MatchString(user):
		for _, mt := range mockTableRe.FindAllStringSubmatch(user, -1) {
			cols := strings.Split(strings.Trim(mt[1], "| "), " | ")
			sb.WriteString(mt[1])
			sb.WriteString("\n|" + strings.Repeat(" --- |", len(cols)) + "\n")
			row := make([]string, len(cols))
			for i, c := range cols {
				row[i] = "Sample " + strings.ToLower(c)
			}
			sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
			if strings.Contains(mt[1], "Investment") {
				row[0] = "**Total**"
				sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
			}
			sb.WriteString("\n")
		}
	case strings.Contains(user, "```mermaid"):
		sb.WriteString("Copy this code to the Mermaid Live Editor to render the diagram.\n\n")
		sb.WriteString("```mermaid\nflowchart TD\n    A[Start] --> B[Process]\n    B --> C[Done]\n```\n")
	default:
		fmt.Fprintf(&sb, "Placeholder content for the %s.", strings.ToLower(title))
	}
	return strings.TrimSpace(sb.String()), nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
