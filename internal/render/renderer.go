package render

import (
	"context"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// SiteContext is the site-wide layer exposed to templates as .Site.
type SiteContext struct {
	Title       string
	BaseURL     string
	Description string
	Author      string
	Language    string
	Data        map[string]any
}

// PageView is the template-facing projection of a content node.
type PageView struct {
	Title     string
	URL       string
	Permalink string
	Date      time.Time
	Weight    int
	Tags      []string
	Category  string
	Section   string
}

// TermView is one taxonomy term (tag or category) with its page count.
type TermView struct {
	Name  string
	Slug  string
	Count int
}

// Input carries the fully resolved inputs for rendering one node. No
// further I/O happens once an Input is constructed.
type Input struct {
	Page     *content.Page // node being rendered; nil for taxonomy list pages
	Template string        // resolved template name
	Site     SiteContext
	Params   Chain      // page > section > site resolution chain
	Pages    []PageView // member pages for section/index/taxonomy templates
	Term     string     // taxonomy term for per-term pages
	Terms    []TermView // terms for taxonomy index pages
}

// Context is the dot value every template executes with.
type Context struct {
	Site    SiteContext
	Page    *PageView
	Pages   []PageView
	Params  map[string]any
	Content template.HTML
	Term    string
	Terms   []TermView
}

// Renderer applies templates to resolved inputs.
type Renderer struct {
	set *Set
	md  goldmark.Markdown
}

// New creates a renderer over an immutable template set.
func New(set *Set) *Renderer {
	return &Renderer{set: set, md: newMarkdown()}
}

// Set exposes the underlying template set (read-only usage).
func (r *Renderer) Set() *Set { return r.set }

// Render produces the output document for one node. Errors are
// per-node: a missing template or failed execution degrades only this
// node and never its siblings. The ctx deadline is honored even
// mid-execution: a node that overruns it returns a timeout error while
// the abandoned execution finishes in the background.
func (r *Renderer) Render(ctx context.Context, in Input) ([]byte, error) {
	nodePath := in.Template
	if in.Page != nil {
		nodePath = in.Page.SourcePath
	}

	if !r.set.Has(in.Template) {
		return nil, siteerr.New(siteerr.KindTemplate, nodePath, "template "+in.Template+" not found")
	}
	if err := ctx.Err(); err != nil {
		return nil, siteerr.Wrap(err, siteerr.KindTimeout, nodePath, "render canceled")
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := r.executeInput(in, nodePath)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, siteerr.Wrap(ctx.Err(), siteerr.KindTimeout, nodePath, "render canceled")
	case res := <-done:
		return res.out, res.err
	}
}

func (r *Renderer) executeInput(in Input, nodePath string) ([]byte, error) {
	tc := Context{
		Site:   in.Site,
		Pages:  in.Pages,
		Params: in.Params.Flatten(),
		Term:   in.Term,
		Terms:  in.Terms,
	}
	if in.Page != nil {
		view := NewPageView(in.Page, in.Site.BaseURL)
		tc.Page = &view
		html, err := renderMarkdown(r.md, in.Page.Body)
		if err != nil {
			return nil, siteerr.Wrap(err, siteerr.KindRender, nodePath, "render markdown body")
		}
		tc.Content = html
	}

	var b strings.Builder
	if err := r.set.execute(&b, in.Template, tc); err != nil {
		return nil, siteerr.Wrap(err, siteerr.KindRender, nodePath, "execute template "+in.Template)
	}
	return []byte(b.String()), nil
}

// NewPageView projects a page for template consumption.
func NewPageView(p *content.Page, baseURL string) PageView {
	return PageView{
		Title:     p.Meta.Title,
		URL:       p.URL,
		Permalink: p.Permalink(baseURL),
		Date:      p.Meta.Date,
		Weight:    p.Meta.Weight,
		Tags:      p.Meta.Tags,
		Category:  p.Meta.Category,
		Section:   p.Section,
	}
}
