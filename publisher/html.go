package publisher

import (
	"bytes"
	"html/template"
	"strings"

	"proposal_wizard/format"
)

// Header shading per table variant, shared by the HTML and DOCX renderers.
var variantShading = map[format.TableKind]string{
	format.TableOperational:        "D9E2F3",
	format.TableAdditionalFeatures: "E2EFDA",
	format.TableTotalInvestment:    "FCE4D6",
	format.TableTimeline:           "EDEDED",
	format.TableGeneric:            "F2F2F2",
}

const totalRowShading = "FFF2CC"

func shading(kind format.TableKind) string {
	if s, ok := variantShading[kind]; ok {
		return s
	}
	return variantShading[format.TableGeneric]
}

const printCSS = `
body { font-family: "Segoe UI", Helvetica, Arial, sans-serif; color: #222; margin: 2.5cm; line-height: 1.5; }
.cover { text-align: center; margin-bottom: 3em; }
.cover h1 { font-size: 28pt; margin-bottom: 0.2em; }
.subtitle { font-size: 14pt; color: #555; }
.date { color: #777; }
.toc ol { padding-left: 1.2em; }
.toc a { color: inherit; text-decoration: none; }
section { page-break-before: always; }
h2 { border-bottom: 2px solid #2F5496; padding-bottom: 0.2em; color: #2F5496; }
.proposal-table { border-collapse: collapse; width: 100%; margin: 1em 0; }
.proposal-table th, .proposal-table td { border: 1px solid #999; padding: 6px 8px; text-align: left; vertical-align: top; }
.proposal-table--operational th { background: #D9E2F3; }
.proposal-table--additional-features th { background: #E2EFDA; }
.proposal-table--total-investment th { background: #FCE4D6; }
.proposal-table--implementation-timeline th { background: #EDEDED; }
.proposal-table--generic th { background: #F2F2F2; }
.proposal-table .total-row td { background: #FFF2CC; font-weight: bold; }
.proposal-figure { margin: 1.5em 0; text-align: center; page-break-inside: avoid; }
.proposal-figure img { max-width: 100%; }
.proposal-figure figcaption { font-style: italic; color: #555; margin-top: 0.4em; }
pre { background: #f6f6f6; padding: 0.8em; overflow-x: auto; }
@media print { body { margin: 0; } }
`

var printTemplate = template.Must(template.New("proposal").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>` + printCSS + `</style>
</head>
<body>
<header class="cover">
<h1>{{.Title}}</h1>
{{if .Subtitle}}<p class="subtitle">{{.Subtitle}}</p>{{end}}
<p class="date">{{.Date}}</p>
</header>
<nav class="toc">
<h2>Table of Contents</h2>
<ol>{{range .Sections}}<li><a href="#{{.Anchor}}">{{.Title}}</a></li>{{end}}</ol>
</nav>
{{range .Sections}}<section id="{{.Anchor}}">
<h2>{{.Title}}</h2>
{{.Body}}</section>
{{end}}<script>window.addEventListener("load", function () { window.print(); });</script>
</body>
</html>
`))

type printSection struct {
	Anchor string
	Title  string
	Body   template.HTML
}

// RenderHTML renders the document as a standalone page that opens the print dialog on load.
// Every image is expected to be embedded already.
func RenderHTML(doc Document) ([]byte, error) {
	data := struct {
		Title    string
		Subtitle string
		Date     string
		Sections []printSection
	}{
		Title:    doc.Title,
		Subtitle: doc.Subtitle,
		Date:     doc.GeneratedAt.Format("January 2, 2006"),
	}
	for _, s := range doc.Sections {
		var body strings.Builder
		body.WriteString(format.RenderHTML(s.Body.ShiftHeadings(2)))
		for _, fig := range s.Figures {
			if fig.Embedded == nil {
				continue
			}
			body.WriteString(format.FigureHTML(fig.Alt, fig.Embedded.DataURI()))
			body.WriteString("\n")
		}
		data.Sections = append(data.Sections, printSection{
			Anchor: "section-" + s.Key,
			Title:  s.Title,
			Body:   template.HTML(body.String()),
		})
	}

	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
