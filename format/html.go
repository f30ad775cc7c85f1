package format

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML renders a parsed document as an HTML fragment.
func RenderHTML(doc Document) string {
	var b strings.Builder
	for _, blk := range doc.Blocks {
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", blk.Level, InlineHTML(blk.Text), blk.Level)
		case BlockParagraph:
			fmt.Fprintf(&b, "<p>%s</p>\n", InlineHTML(blk.Text))
		case BlockBulletList:
			writeList(&b, "ul", blk.Items)
		case BlockNumberedList:
			writeList(&b, "ol", blk.Items)
		case BlockTable:
			if blk.Table != nil {
				b.WriteString(TableHTML(*blk.Table))
				b.WriteString("\n")
			}
		case BlockImage:
			b.WriteString(FigureHTML(blk.Alt, blk.URL))
			b.WriteString("\n")
		case BlockCodeFence:
			class := ""
			if blk.Lang != "" {
				class = fmt.Sprintf(` class="language-%s"`, html.EscapeString(blk.Lang))
			}
			fmt.Fprintf(&b, "<pre><code%s>%s</code></pre>\n", class, html.EscapeString(blk.Code))
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, tag string, items []string) {
	fmt.Fprintf(b, "<%s>", tag)
	for _, it := range items {
		b.WriteString("<li>")
		b.WriteString(InlineHTML(it))
		b.WriteString("</li>")
	}
	fmt.Fprintf(b, "</%s>\n", tag)
}

// MarkdownToHTML is the generic markdown pass used for section previews: diagram code is
// removed and everything else is rendered.
func MarkdownToHTML(content string) string {
	return RenderHTML(Parse(content).WithoutDiagrams())
}
