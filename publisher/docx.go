package publisher

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"

	"proposal_wizard/format"
)

const (
	imageDPI      = 96
	maxImageWidth = units.Inch(6)
	codeFont      = "Courier New"
)

type docxWriter struct {
	rd     *docx.RootDoc
	tmpDir string
	images int
	log    *slog.Logger
}

type runStyle struct {
	bold, italic, code bool
}

// RenderDOCX writes the document as a Word package. Images in formats Word cannot embed
// directly are left out.
func RenderDOCX(doc Document) ([]byte, error) {
	rd, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("creating docx: %w", err)
	}
	// godocx embeds pictures from files.
	tmpDir, err := os.MkdirTemp("", "proposal-docx-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	w := &docxWriter{rd: rd, tmpDir: tmpDir, log: slog.Default().With("component", "publisher.docx")}

	if _, err := rd.AddHeading(doc.Title, 0); err != nil {
		return nil, fmt.Errorf("adding title: %w", err)
	}
	if doc.Subtitle != "" {
		rd.AddParagraph(doc.Subtitle).Style("Subtitle")
	}
	rd.AddParagraph(doc.GeneratedAt.Format("January 2, 2006")).Style("Subtitle")

	w.chapter("Table of Contents")
	for i, title := range doc.TOC {
		rd.AddParagraph(fmt.Sprintf("%d. %s", i+1, title))
	}

	for _, s := range doc.Sections {
		w.chapter(s.Title)
		for _, b := range s.Body.Blocks {
			w.block(b)
		}
		for _, fig := range s.Figures {
			if fig.Embedded != nil {
				w.image(*fig.Embedded, fig.Alt)
			}
		}
	}

	var buf bytes.Buffer
	if err := rd.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing docx: %w", err)
	}
	return buf.Bytes(), nil
}

// chapter starts a top-level heading on a new page.
func (w *docxWriter) chapter(title string) {
	p := w.rd.AddEmptyParagraph()
	p.Style("Heading1")
	p.GetCT().Property.PageBreakBefore = ctypes.OnOffFromBool(true)
	p.AddText(title)
}

func (w *docxWriter) block(b format.Block) {
	switch b.Kind {
	case format.BlockHeading:
		p := w.rd.AddEmptyParagraph()
		p.Style(fmt.Sprintf("Heading%d", min(b.Level+1, 3)))
		addInline(p, b.Text, runStyle{})
	case format.BlockParagraph:
		addInline(w.rd.AddEmptyParagraph(), b.Text, runStyle{})
	case format.BlockBulletList:
		for _, it := range b.Items {
			p := w.rd.AddEmptyParagraph()
			p.Style("ListBullet")
			addInline(p, it, runStyle{})
		}
	case format.BlockNumberedList:
		// Explicit markers keep each list numbered from 1.
		for i, it := range b.Items {
			p := w.rd.AddEmptyParagraph()
			p.Style("List")
			p.AddText(fmt.Sprintf("%d. ", i+1))
			addInline(p, it, runStyle{})
		}
	case format.BlockTable:
		if b.Table != nil {
			w.table(*b.Table)
		}
	case format.BlockImage:
		em, err := decodeDataURI(b.URL)
		if err != nil {
			w.log.Warn("skipping image without embedded data", "alt", b.Alt, "err", err)
			return
		}
		w.image(em, b.Alt)
	case format.BlockCodeFence:
		for _, line := range strings.Split(b.Code, "\n") {
			p := w.rd.AddEmptyParagraph()
			p.Style("MacroText")
			addRun(p, line, runStyle{code: true})
		}
	}
}

func (w *docxWriter) table(t format.Table) {
	cols := len(t.Header)
	if cols == 0 {
		return
	}
	tbl := w.rd.AddTable()
	tbl.Style("TableGrid")

	header := tbl.AddRow()
	for _, h := range t.Header {
		p := header.AddCell().AddEmptyPara()
		shade(p, shading(t.Kind))
		addInline(p, h, runStyle{bold: true})
	}

	for _, row := range t.Rows {
		fill, style := "", runStyle{}
		if t.Kind == format.TableTotalInvestment && format.IsTotalRow(row) {
			fill, style = totalRowShading, runStyle{bold: true}
		}
		r := tbl.AddRow()
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			p := r.AddCell().AddEmptyPara()
			if fill != "" {
				shade(p, fill)
			}
			addInline(p, cell, style)
		}
	}
	w.rd.AddEmptyParagraph()
}

func (w *docxWriter) image(em Embedded, alt string) {
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(em.Data))
	if err != nil {
		w.log.Warn("skipping image Word cannot embed", "content_type", em.ContentType, "err", err)
		return
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return
	}

	w.images++
	path := filepath.Join(w.tmpDir, fmt.Sprintf("image%d.%s", w.images, kind))
	if err := os.WriteFile(path, em.Data, 0o600); err != nil {
		w.log.Warn("skipping image", "alt", alt, "err", err)
		return
	}

	width := units.Inch(float64(cfg.Width) / imageDPI)
	height := units.Inch(float64(cfg.Height) / imageDPI)
	if width > maxImageWidth {
		height = height * maxImageWidth / width
		width = maxImageWidth
	}

	p := w.rd.AddEmptyParagraph()
	p.Justification(stypes.JustificationCenter)
	pic, err := p.AddPicture(path, width, height)
	if err != nil {
		w.log.Warn("skipping image", "alt", alt, "err", err)
		return
	}
	pic.Inline.DocProp.Description = alt
	if alt != "" {
		w.rd.AddParagraph(alt).Style("Caption")
	}
}

func shade(p *docx.Paragraph, fill string) {
	ct := p.GetCT()
	if ct.Property == nil {
		ct.Property = ctypes.DefaultParaProperty()
	}
	ct.Property.Shading = ctypes.NewShading().SetFill(fill)
}

// addInline turns markdown emphasis into runs. base applies to every run.
func addInline(p *docx.Paragraph, text string, base runStyle) {
	for _, r := range format.Inline(text) {
		addRun(p, r.Text, runStyle{
			bold:   base.bold || r.Bold,
			italic: base.italic || r.Italic,
			code:   base.code || r.Code,
		})
	}
}

func addRun(p *docx.Paragraph, text string, s runStyle) {
	if text == "" {
		return
	}
	run := p.AddText(text)
	if s.bold {
		run.Bold(true)
	}
	if s.italic {
		run.Italic(true)
	}
	if s.code {
		children := p.GetCT().Children
		ct := children[len(children)-1].Run
		if ct.Property == nil {
			ct.Property = &ctypes.RunProperty{}
		}
		ct.Property.Fonts = &ctypes.RunFonts{Ascii: codeFont, HAnsi: codeFont, CS: codeFont}
	}
}
