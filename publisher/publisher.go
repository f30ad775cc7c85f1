// Package publisher assembles approved proposals into downloadable documents: a printable
// HTML page and a Word file.
package publisher

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"proposal_wizard/format"
	"proposal_wizard/generator"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatDOCX Format = "docx"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatHTML, "print", "pdf":
		return FormatHTML, nil
	case FormatDOCX, "word":
		return FormatDOCX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Artifact is a rendered export ready to be downloaded.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Embedded is image data ready to be placed inside an exported document.
type Embedded struct {
	ContentType string
	Data        []byte
}

func (e Embedded) DataURI() string {
	return "data:" + e.ContentType + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// Figure is an uploaded image placed after a section body.
type Figure struct {
	Alt      string
	URL      string
	Embedded *Embedded
}

type DocSection struct {
	Key     string
	Title   string
	Body    format.Document
	Figures []Figure
}

// Document is the consolidated proposal: title, table of contents, then every section.
type Document struct {
	Title       string
	Subtitle    string
	TOC         []string
	Sections    []DocSection
	GeneratedAt time.Time
}

// Assemble lays out an export-ready proposal. ok is false, and nothing is assembled, while
// any section or image still awaits approval.
func Assemble(p generator.Proposal, reg *generator.Registry, images map[string][]generator.Image) (Document, bool) {
	var all []generator.Image
	for _, imgs := range images {
		all = append(all, imgs...)
	}
	if !generator.ExportReady(p, all) {
		return Document{}, false
	}

	doc := Document{
		Title:       documentTitle(p.Requirements),
		Subtitle:    subtitle(p.Requirements),
		GeneratedAt: time.Now(),
	}
	for _, s := range p.OrderedSections(reg) {
		ds := DocSection{
			Key:   s.Key,
			Title: s.Title,
			Body:  format.Parse(s.Content).WithoutDiagrams(),
		}
		for _, img := range images[s.Key] {
			ds.Figures = append(ds.Figures, Figure{Alt: figureAlt(img), URL: img.URL})
		}
		doc.TOC = append(doc.TOC, s.Title)
		doc.Sections = append(doc.Sections, ds)
	}
	return doc, true
}

func documentTitle(req generator.Requirements) string {
	if t := strings.TrimSpace(req.ProjectTitle); t != "" {
		return t
	}
	return "Business Proposal"
}

func subtitle(req generator.Requirements) string {
	client := strings.TrimSpace(req.ClientName)
	company := strings.TrimSpace(req.CompanyName)
	switch {
	case client != "" && company != "":
		return fmt.Sprintf("Prepared for %s by %s", client, company)
	case client != "":
		return "Prepared for " + client
	case company != "":
		return "Prepared by " + company
	}
	return ""
}

var extRe = regexp.MustCompile(`\.[A-Za-z0-9]+$`)

func figureAlt(img generator.Image) string {
	return strings.TrimSpace(extRe.ReplaceAllString(img.Name, ""))
}

// Fetcher resolves an image URL into embeddable bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Embedded, error)
}

type Exporter struct {
	registry *generator.Registry
	fetcher  Fetcher
	log      *slog.Logger
}

func NewExporter(reg *generator.Registry, fetcher Fetcher) *Exporter {
	return &Exporter{
		registry: reg,
		fetcher:  fetcher,
		log:      slog.Default().With("component", "publisher.exporter"),
	}
}

// Export renders the proposal in the requested format. It returns a nil artifact and no
// error when the proposal is not ready for export. Images that cannot be fetched are
// logged and left out.
func (e *Exporter) Export(ctx context.Context, p generator.Proposal, images map[string][]generator.Image, f Format) (*Artifact, error) {
	doc, ok := Assemble(p, e.registry, images)
	if !ok {
		e.log.Info("export skipped, proposal not approved", "proposal", p.ID)
		return nil, nil
	}
	doc = e.embed(ctx, doc)

	name := filename(doc.Title)
	switch f {
	case FormatHTML:
		data, err := RenderHTML(doc)
		if err != nil {
			return nil, fmt.Errorf("rendering html export: %w", err)
		}
		return &Artifact{Filename: name + ".html", ContentType: "text/html; charset=utf-8", Data: data}, nil
	case FormatDOCX:
		data, err := RenderDOCX(doc)
		if err != nil {
			return nil, fmt.Errorf("rendering docx export: %w", err)
		}
		return &Artifact{
			Filename:    name + ".docx",
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Data:        data,
		}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

// embed fetches every figure and inline image. Body images are rewritten to data URIs so
// the document no longer depends on the network.
func (e *Exporter) embed(ctx context.Context, doc Document) Document {
	cache := make(map[string]*Embedded)
	resolve := func(url string) *Embedded {
		if em, ok := cache[url]; ok {
			return em
		}
		var em *Embedded
		if e.fetcher != nil {
			got, err := e.fetcher.Fetch(ctx, url)
			if err != nil {
				e.log.Warn("skipping image that could not be fetched", "url", truncate(url, 80), "err", err)
			} else {
				em = &got
			}
		}
		cache[url] = em
		return em
	}

	for i := range doc.Sections {
		s := &doc.Sections[i]
		figures := s.Figures[:0:0]
		for _, fig := range s.Figures {
			if fig.Embedded = resolve(fig.URL); fig.Embedded != nil {
				figures = append(figures, fig)
			}
		}
		s.Figures = figures

		blocks := make([]format.Block, 0, len(s.Body.Blocks))
		for _, b := range s.Body.Blocks {
			if b.Kind == format.BlockImage {
				em := resolve(b.URL)
				if em == nil {
					continue
				}
				b.URL = em.DataURI()
			}
			blocks = append(blocks, b)
		}
		s.Body = format.Document{Blocks: blocks}
	}
	return doc
}

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

func filename(title string) string {
	name := strings.Trim(unsafeFilenameRe.ReplaceAllString(title, "-"), "-")
	if name == "" {
		return "proposal"
	}
	return strings.ToLower(name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
