package generator

import (
	"fmt"
	"strings"
)

// Prompt is the message set sent to the LLM for one section.
type Prompt struct {
	System      string
	User        string
	History     []Message
	MaxTokens   int
	Temperature float64
}

// Message carries an earlier turn (optional).
type Message struct {
	Role    string
	Content string
}

const systemPrompt = "You are an experienced business consultant writing client proposals. " +
	"Output only the requested section content in plain markdown, with no preamble, section title or closing remarks."

// detailLines renders populated requirement fields as "Label: value" lines. Empty fields are
// left out entirely.
func detailLines(req Requirements) []string {
	fields := []struct {
		label string
		value string
	}{
		{"Company Name", req.CompanyName},
		{"Project Title", req.ProjectTitle},
		{"Client Name", req.ClientName},
		{"Project Description", req.ProjectDescription},
		{"Industry", req.IndustryType},
		{"Country", req.Country},
		{"Currency", req.Currency},
		{"Budget Range", req.BudgetRange},
		{"Timeline", req.Timeline},
	}
	var lines []string
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.label, v))
	}
	return lines
}

func objectives(req Requirements) []string {
	var out []string
	for _, o := range req.Objectives {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// FormatContract returns the output-shape instructions for a schema. The formatter parses
// generated text assuming exactly this shape.
func FormatContract(s Schema) []string {
	switch s.Kind {
	case KindSentences:
		return []string{
			fmt.Sprintf("Write exactly %d sentences as a single paragraph.", s.Sentences),
			"Do not use bullet points, headings or markdown formatting.",
		}
	case KindBullets:
		return []string{
			fmt.Sprintf("Write exactly %d bullet points.", s.Bullets),
			`Start every bullet point with "* " on its own line.`,
			"Do not add headings, introductions or closing remarks.",
		}
	case KindCategorized:
		return []string{
			"Use exactly these headings, each on its own line, in this order: " + strings.Join(s.Headings, " "),
			"Write each heading as plain text ending with a colon, without markdown or bold markers.",
			fmt.Sprintf(`Under each heading write exactly %d bullet points, each starting with "* ".`, max(s.Bullets, 1)),
		}
	case KindTables:
		lines := make([]string, 0, len(s.Tables)+1)
		for _, t := range s.Tables {
			lines = append(lines, "Include a markdown table with exactly these columns: "+headerRow(t.Columns))
		}
		return append(lines, "Do not add any other tables.")
	case KindTimeline:
		return []string{
			"Write a markdown table with exactly these columns: " + headerRow(TimelineColumns),
			"Put every phase on a single table row. Do not use line breaks inside cells.",
		}
	case KindDiagram:
		return []string{
			"Write the diagram in Mermaid flowchart syntax inside a ```mermaid code block.",
			"Do not add explanations after the code block.",
		}
	}
	return nil
}

func headerRow(cols []string) string {
	return "| " + strings.Join(cols, " | ") + " |"
}

// BuildSectionPrompt builds the prompt for one section. It is pure: the same requirements and
// definition always produce the same prompt.
func BuildSectionPrompt(req Requirements, def SectionDef) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the %q section of a business proposal.\n", def.Title)

	if details := detailLines(req); len(details) > 0 {
		sb.WriteString("\nProject details:\n")
		for _, l := range details {
			sb.WriteString(l)
			sb.WriteString("\n")
		}
	}
	var objs []string
	if def.UsesObjectives {
		objs = objectives(req)
	}
	if len(objs) > 0 {
		sb.WriteString("\nClient objectives:\n")
		for _, o := range objs {
			fmt.Fprintf(&sb, "* %s\n", o)
		}
	}

	sb.WriteString("\nInstructions:\n")
	sb.WriteString(def.Instructions)
	sb.WriteString("\n")
	if def.UsesCurrency && strings.TrimSpace(req.Currency) != "" {
		fmt.Fprintf(&sb, "Express every monetary amount in %s.\n", strings.TrimSpace(req.Currency))
	}
	if len(objs) > 0 {
		sb.WriteString("Connect the content to the client objectives listed above.\n")
	}

	if contract := FormatContract(def.Schema); len(contract) > 0 {
		sb.WriteString("\nFormat:\n")
		for _, l := range contract {
			sb.WriteString(l)
			sb.WriteString("\n")
		}
	}

	return Prompt{
		System:      systemPrompt,
		User:        strings.TrimRight(sb.String(), "\n"),
		MaxTokens:   def.MaxTokens,
		Temperature: def.Temperature,
	}
}

// BuildRevisionPrompt asks for a new version of a section, taking the reviewer's feedback
// into account. Without feedback it is the plain section prompt.
func BuildRevisionPrompt(req Requirements, def SectionDef, previous, feedback string) Prompt {
	p := BuildSectionPrompt(req, def)
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return p
	}
	p.User += "\n\nPrevious version:\n" + strings.TrimSpace(previous) +
		"\n\nReviewer feedback on the previous version:\n" + feedback +
		"\nRewrite the section applying this feedback while keeping the format above."
	return p
}
