package render

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// newMarkdown builds the shared goldmark instance: GFM extensions plus
// raw HTML passthrough, matching what content authors expect.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
}

// renderMarkdown converts a Markdown body to HTML. This happens before
// template execution so templates receive fully resolved content.
func renderMarkdown(md goldmark.Markdown, body []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
