package format

import (
	"fmt"
	"html"
	"regexp"
)

var markdownImageRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)

// ConvertImages replaces ![alt](url) with a captioned figure block.
func ConvertImages(content string) string {
	return markdownImageRe.ReplaceAllStringFunc(content, func(m string) string {
		parts := markdownImageRe.FindStringSubmatch(m)
		return FigureHTML(parts[1], parts[2])
	})
}

// FigureHTML renders an image with its alt text as caption.
func FigureHTML(alt, src string) string {
	a := html.EscapeString(alt)
	if alt == "" {
		return fmt.Sprintf(`<figure class="proposal-figure"><img src="%s" alt=""></figure>`, html.EscapeString(src))
	}
	return fmt.Sprintf(`<figure class="proposal-figure"><img src="%s" alt="%s"><figcaption>%s</figcaption></figure>`,
		html.EscapeString(src), a, a)
}

// ImageRefs lists the image URLs referenced by markdown image syntax in content.
func ImageRefs(content string) []string {
	var urls []string
	for _, m := range markdownImageRe.FindAllStringSubmatch(content, -1) {
		urls = append(urls, m[2])
	}
	return urls
}
