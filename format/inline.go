package format

import (
	"html"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Run is a span of inline text sharing one style.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

// Block structure is decided by Parse, so the inline parser only knows paragraphs.
// A line like "2024. A good year" therefore never turns into a list here.
var inlineParser = parser.NewParser(
	parser.WithBlockParsers(util.Prioritized(parser.NewParagraphParser(), 1000)),
	parser.WithInlineParsers(parser.DefaultInlineParsers()...),
)

// Inline splits markdown inline text into styled runs.
func Inline(s string) []Run {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	src := []byte(s)
	root := inlineParser.Parse(text.NewReader(src))

	var (
		runs               []Run
		bold, italic, code int
	)
	emit := func(t string) {
		if t == "" {
			return
		}
		r := Run{Text: t, Bold: bold > 0, Italic: italic > 0, Code: code > 0}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			if last.Bold == r.Bold && last.Italic == r.Italic && last.Code == r.Code {
				last.Text += t
				return
			}
		}
		runs = append(runs, r)
	}
	step := func(entering bool) int {
		if entering {
			return 1
		}
		return -1
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Emphasis:
			if node.Level >= 2 {
				bold += step(entering)
			} else {
				italic += step(entering)
			}
		case *ast.CodeSpan:
			code += step(entering)
		case *ast.Text:
			if entering {
				emit(string(util.UnescapePunctuations(node.Segment.Value(src))))
				if node.SoftLineBreak() || node.HardLineBreak() {
					emit(" ")
				}
			}
		case *ast.String:
			if entering {
				emit(string(node.Value))
			}
		case *ast.AutoLink:
			if entering {
				emit(string(node.Label(src)))
			}
		case *ast.RawHTML:
			if entering {
				for i := 0; i < node.Segments.Len(); i++ {
					seg := node.Segments.At(i)
					emit(string(seg.Value(src)))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return runs
}

// PlainText drops inline markup and returns only the text.
func PlainText(s string) string {
	var b strings.Builder
	for _, r := range Inline(s) {
		b.WriteString(r.Text)
	}
	return strings.TrimSpace(b.String())
}

// InlineHTML renders inline markdown as escaped HTML with strong/em/code tags.
func InlineHTML(s string) string {
	var b strings.Builder
	for _, r := range Inline(s) {
		t := html.EscapeString(r.Text)
		if r.Code {
			t = "<code>" + t + "</code>"
		}
		if r.Italic {
			t = "<em>" + t + "</em>"
		}
		if r.Bold {
			t = "<strong>" + t + "</strong>"
		}
		b.WriteString(t)
	}
	return b.String()
}
