// Package format turns generated proposal text into display and export ready structure.
//
// Every pass in this package is pure and idempotent: running a pass over its own
// output returns the output unchanged.
package format

import (
	"regexp"
	"strings"
)

type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockBulletList
	BlockNumberedList
	BlockTable
	BlockImage
	BlockCodeFence
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "heading"
	case BlockParagraph:
		return "paragraph"
	case BlockBulletList:
		return "bullet_list"
	case BlockNumberedList:
		return "numbered_list"
	case BlockTable:
		return "table"
	case BlockImage:
		return "image"
	case BlockCodeFence:
		return "code_fence"
	default:
		return "unknown"
	}
}

// Block is one typed unit of parsed content. Only the fields relevant to Kind are set.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string
	Items []string
	Table *Table
	Alt   string
	URL   string
	Lang  string
	Code  string
}

// Document is the intermediate representation shared by the HTML and DOCX renderers.
type Document struct {
	Blocks []Block
}

type parseState int

const (
	stateNone parseState = iota
	stateList
	stateCodeFence
)

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	numberedRe = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
	imageRe    = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)\s]+)\)$`)
)

type lineParser struct {
	state   parseState
	blocks  []Block
	para    []string
	list    *Block
	fence   *Block
	fenceLn []string
}

// Parse classifies text line by line into blocks. Tables are recognised by a header row
// followed by a separator row; code fences swallow everything up to the closing fence.
func Parse(text string) Document {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	p := &lineParser{}
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if p.state == stateCodeFence {
			if strings.HasPrefix(trimmed, "```") {
				p.closeFence()
				continue
			}
			p.fenceLn = append(p.fenceLn, line)
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			p.flush()
			p.state = stateCodeFence
			p.fence = &Block{Kind: BlockCodeFence, Lang: strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))}
			continue
		}

		if t, next, ok := scanTable(lines, i); ok {
			p.flush()
			p.blocks = append(p.blocks, Block{Kind: BlockTable, Table: &t})
			i = next - 1
			continue
		}

		if trimmed == "" {
			// Blank lines end paragraphs but keep a list open so loose lists stay together.
			p.flushParagraph()
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			p.flush()
			level := len(m[1])
			if level > 3 {
				level = 3
			}
			p.blocks = append(p.blocks, Block{Kind: BlockHeading, Level: level, Text: m[2]})
			continue
		}

		if m := imageRe.FindStringSubmatch(trimmed); m != nil {
			p.flush()
			p.blocks = append(p.blocks, Block{Kind: BlockImage, Alt: m[1], URL: m[2]})
			continue
		}

		if item, ok := bulletItem(trimmed); ok {
			p.addItem(BlockBulletList, item)
			continue
		}
		if m := numberedRe.FindStringSubmatch(trimmed); m != nil {
			p.addItem(BlockNumberedList, strings.TrimSpace(m[1]))
			continue
		}

		p.flushList()
		p.para = append(p.para, trimmed)
	}
	if p.state == stateCodeFence {
		p.closeFence()
	}
	p.flush()
	return Document{Blocks: p.blocks}
}

func (p *lineParser) addItem(kind BlockKind, item string) {
	p.flushParagraph()
	if p.list != nil && p.list.Kind != kind {
		p.flushList()
	}
	if p.list == nil {
		p.list = &Block{Kind: kind}
		p.state = stateList
	}
	p.list.Items = append(p.list.Items, item)
}

func (p *lineParser) closeFence() {
	p.fence.Code = strings.Join(p.fenceLn, "\n")
	p.blocks = append(p.blocks, *p.fence)
	p.fence = nil
	p.fenceLn = nil
	p.state = stateNone
}

func (p *lineParser) flushParagraph() {
	if len(p.para) == 0 {
		return
	}
	p.blocks = append(p.blocks, Block{Kind: BlockParagraph, Text: strings.Join(p.para, "\n")})
	p.para = nil
}

func (p *lineParser) flushList() {
	if p.list == nil {
		return
	}
	p.blocks = append(p.blocks, *p.list)
	p.list = nil
	p.state = stateNone
}

func (p *lineParser) flush() {
	p.flushParagraph()
	p.flushList()
}

var diagramLangs = map[string]bool{
	"mermaid":   true,
	"diagram":   true,
	"flowchart": true,
	"plantuml":  true,
}

var diagramBodyRe = regexp.MustCompile(`^\s*(graph|flowchart|sequenceDiagram|classDiagram|stateDiagram|erDiagram)\b`)

var diagramIntroRe = regexp.MustCompile(`(?i)(\bcopy\b.*\b(code|diagram|snippet)\b|mermaid\s*live|mermaid\.live|paste (this|the) code)`)

func isDiagramFence(b Block) bool {
	if b.Kind != BlockCodeFence {
		return false
	}
	return diagramLangs[b.Lang] || diagramBodyRe.MatchString(b.Code)
}

// HasDiagram reports whether the document carries a diagram code fence.
func (d Document) HasDiagram() bool {
	for _, b := range d.Blocks {
		if isDiagramFence(b) {
			return true
		}
	}
	return false
}

// WithoutDiagrams drops diagram code fences and the instruction lines that introduce them.
// Rendered diagrams are expected to arrive as uploaded images instead.
func (d Document) WithoutDiagrams() Document {
	out := make([]Block, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		if isDiagramFence(b) {
			if n := len(out); n > 0 && out[n-1].Kind == BlockParagraph {
				if rest, changed := stripIntroLines(out[n-1].Text); changed {
					if rest == "" {
						out = out[:n-1]
					} else {
						out[n-1].Text = rest
					}
				}
			}
			continue
		}
		out = append(out, b)
	}
	return Document{Blocks: out}
}

func stripIntroLines(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	changed := false
	for _, l := range lines {
		if diagramIntroRe.MatchString(l) {
			changed = true
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n"), changed
}

// ShiftHeadings pushes every heading down by n levels, capped at h6.
func (d Document) ShiftHeadings(n int) Document {
	out := make([]Block, len(d.Blocks))
	copy(out, d.Blocks)
	for i := range out {
		if out[i].Kind != BlockHeading {
			continue
		}
		out[i].Level += n
		if out[i].Level > 6 {
			out[i].Level = 6
		}
		if out[i].Level < 1 {
			out[i].Level = 1
		}
	}
	return Document{Blocks: out}
}

// Tables returns the tables of the document in order.
func (d Document) Tables() []Table {
	var tables []Table
	for _, b := range d.Blocks {
		if b.Kind == BlockTable && b.Table != nil {
			tables = append(tables, *b.Table)
		}
	}
	return tables
}
