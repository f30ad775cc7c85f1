package generator

import (
	"errors"
	"regexp"
	"strings"

	"proposal_wizard/format"
)

// Result is generated section text after formatting, with whether it matched the schema.
type Result struct {
	Content  string
	Conforms bool
}

// PostProcess normalises raw model output for a section and checks it against the schema
// the prompt asked for.
func PostProcess(raw string, def SectionDef) (Result, error) {
	md := strings.TrimSpace(raw)
	if md == "" {
		return Result{}, errors.New("model returned empty content")
	}
	md = stripLeadingTitle(md, def.Title)

	s := def.Schema
	switch s.Kind {
	case KindSentences:
		return Result{Content: md, Conforms: sentencesConform(md, s.Sentences)}, nil
	case KindBullets:
		content := format.NormalizeBullets(md)
		return Result{Content: content, Conforms: len(format.BulletItems(content)) == s.Bullets}, nil
	case KindCategorized:
		content := format.FormatCategorized(format.NormalizeBullets(md), s.Headings)
		return Result{Content: content, Conforms: len(format.MissingHeadings(content, s.Headings)) == 0}, nil
	case KindTables:
		return Result{Content: md, Conforms: tablesConform(md, s.Tables)}, nil
	case KindTimeline:
		content := format.NormalizeTimeline(md)
		conforms := false
		for _, t := range format.ParseTables(content) {
			if t.Kind == format.TableTimeline && len(t.Rows) > 0 {
				conforms = true
			}
		}
		return Result{Content: content, Conforms: conforms}, nil
	case KindDiagram:
		return Result{Content: md, Conforms: format.Parse(md).HasDiagram()}, nil
	}
	return Result{Content: md}, nil
}

// sentencesConform wants one plain paragraph holding exactly n sentences.
func sentencesConform(md string, n int) bool {
	doc := format.Parse(md)
	if len(doc.Blocks) != 1 || doc.Blocks[0].Kind != format.BlockParagraph {
		return false
	}
	return format.CountSentences(md) == n
}

func tablesConform(md string, want []TableSchema) bool {
	found := make(map[format.TableKind]bool)
	for _, t := range format.ParseTables(md) {
		found[t.Kind] = true
	}
	for _, w := range want {
		if !found[format.TableKind(w.Variant)] {
			return false
		}
	}
	return true
}

var leadingTitleRe = regexp.MustCompile(`^(?:#{1,6}\s+|\*\*)?([^\n*#]+?)(?:\*\*)?:?\s*(?:\n|$)`)

// stripLeadingTitle drops a first line that only repeats the section title.
func stripLeadingTitle(md, title string) string {
	m := leadingTitleRe.FindStringSubmatch(md)
	if m == nil || !strings.EqualFold(strings.TrimSpace(m[1]), strings.TrimSpace(title)) {
		return md
	}
	return strings.TrimSpace(md[len(m[0]):])
}
