package build

import (
	"context"
	"encoding/xml"
	"path"
	"sort"
	"time"

	"github.com/gorilla/feeds"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// feedItemLimit caps the RSS feed at the most recent dated pages.
const feedItemLimit = 15

// taxonomy describes one term grouping (tags or categories).
type taxonomy struct {
	name          string // URL root, e.g. "tags"
	indexTemplate string
	termTemplate  string
	termsOf       func(*content.Page) []string
}

// renderDerived produces the outputs that are functions of the whole
// page set: the synthesized home page, taxonomy pages, the RSS feed,
// and the sitemap. Derived outputs are cheap and regenerated whenever
// anything in the page set moved.
func (b *Builder) renderDerived(ctx context.Context, st *state) {
	pages := st.publishablePages()
	regular := make([]*content.Page, 0, len(pages))
	for _, p := range pages {
		if !p.IsSection {
			regular = append(regular, p)
		}
	}

	site := b.siteContext(st)
	var taxonomyURLs []string

	// A content root without _index.md still gets a home page listing
	// every regular page.
	if _, ok := st.snap.Pages[content.SectionIndexFile]; !ok {
		b.renderListing(ctx, st, "index.html", "index", render.Input{
			Template: render.TemplateIndex,
			Site:     site,
			Params:   render.NewChain(st.snap.Data),
			Pages:    pageViews(regular, b.cfg.Site.BaseURL),
		})
	}

	if b.cfg.Site.GenerateTags {
		urls := b.renderTaxonomy(ctx, st, taxonomy{
			name:          "tags",
			indexTemplate: render.TemplateTags,
			termTemplate:  render.TemplateTag,
			termsOf:       func(p *content.Page) []string { return p.Meta.Tags },
		}, regular, site)
		taxonomyURLs = append(taxonomyURLs, urls...)
	}
	if b.cfg.Site.GenerateCategories {
		urls := b.renderTaxonomy(ctx, st, taxonomy{
			name:          "categories",
			indexTemplate: render.TemplateCategories,
			termTemplate:  render.TemplateCategory,
			termsOf: func(p *content.Page) []string {
				if p.Meta.Category == "" {
					return nil
				}
				return []string{p.Meta.Category}
			},
		}, regular, site)
		taxonomyURLs = append(taxonomyURLs, urls...)
	}

	if b.cfg.Site.GenerateRSS {
		b.renderFeed(st, regular)
	}
	b.renderSitemap(st, pages, taxonomyURLs)
}

// renderListing renders one non-content output (home page, taxonomy
// index or term page) with the per-node timeout and failure isolation
// page rendering gets.
func (b *Builder) renderListing(ctx context.Context, st *state, outputPath, nodeName string, in render.Input) {
	rctx, cancel := context.WithTimeout(ctx, b.cfg.Build.RenderTimeout)
	defer cancel()

	out, err := st.renderer.Render(rctx, in)
	if err != nil {
		if rctx.Err() != nil && ctx.Err() == nil {
			err = siteerr.Wrap(err, siteerr.KindTimeout, nodeName, "render timed out")
		}
		st.fail(nodeName, err)
		b.rec.IncNodeFailure(string(siteerr.KindOf(err)))
		return
	}
	st.addOutput(outputPath, b.finalize(outputPath, out))
}

// renderTaxonomy renders the taxonomy index plus one page per term and
// returns the site-relative URLs it produced (for the sitemap).
func (b *Builder) renderTaxonomy(ctx context.Context, st *state, tax taxonomy, pages []*content.Page, site render.SiteContext) []string {
	byTerm := map[string][]*content.Page{}
	for _, p := range pages {
		for _, term := range tax.termsOf(p) {
			byTerm[term] = append(byTerm[term], p)
		}
	}

	terms := make([]render.TermView, 0, len(byTerm))
	for term, members := range byTerm {
		terms = append(terms, render.TermView{
			Name:  term,
			Slug:  content.Slugify(term),
			Count: len(members),
		})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Name < terms[j].Name
	})

	urls := []string{tax.name}
	b.renderListing(ctx, st, path.Join(tax.name, "index.html"), tax.name, render.Input{
		Template: tax.indexTemplate,
		Site:     site,
		Params:   render.NewChain(st.snap.Data),
		Terms:    terms,
	})

	for _, tv := range terms {
		members := byTerm[tv.Name]
		sortPages(members)
		termURL := path.Join(tax.name, tv.Slug)
		urls = append(urls, termURL)
		b.renderListing(ctx, st, path.Join(termURL, "index.html"), termURL, render.Input{
			Template: tax.termTemplate,
			Site:     site,
			Params:   render.NewChain(st.snap.Data),
			Term:     tv.Name,
			Pages:    pageViews(members, b.cfg.Site.BaseURL),
		})
	}
	return urls
}

// renderFeed writes rss.xml with the most recent dated pages. The feed
// timestamp is the newest page date so identical inputs produce
// identical bytes.
func (b *Builder) renderFeed(st *state, pages []*content.Page) {
	dated := make([]*content.Page, 0, len(pages))
	for _, p := range pages {
		if !p.Meta.Date.IsZero() {
			dated = append(dated, p)
		}
	}
	sort.Slice(dated, func(i, j int) bool {
		if !dated[i].Meta.Date.Equal(dated[j].Meta.Date) {
			return dated[i].Meta.Date.After(dated[j].Meta.Date)
		}
		return dated[i].SourcePath < dated[j].SourcePath
	})
	if len(dated) > feedItemLimit {
		dated = dated[:feedItemLimit]
	}

	var newest time.Time
	if len(dated) > 0 {
		newest = dated[0].Meta.Date
	}
	feed := &feeds.Feed{
		Title:       b.cfg.Site.Title,
		Link:        &feeds.Link{Href: b.cfg.Site.BaseURL},
		Description: b.cfg.Site.Description,
		Created:     newest,
	}
	if b.cfg.Site.Author != "" {
		feed.Author = &feeds.Author{Name: b.cfg.Site.Author}
	}
	for _, p := range dated {
		link := p.Permalink(b.cfg.Site.BaseURL)
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      link,
			Title:   p.Meta.Title,
			Link:    &feeds.Link{Href: link},
			Created: p.Meta.Date,
		})
	}

	doc, err := feed.ToRss()
	if err != nil {
		st.fail("rss.xml", siteerr.Wrap(err, siteerr.KindRender, "rss.xml", "encode rss feed"))
		return
	}
	st.addOutput("rss.xml", []byte(doc))
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapDoc struct {
	XMLName   xml.Name       `xml:"urlset"`
	Namespace string         `xml:"xmlns,attr"`
	URLs      []sitemapEntry `xml:"url"`
}

// renderSitemap writes sitemap.xml over every page, section, and
// taxonomy permalink.
func (b *Builder) renderSitemap(st *state, pages []*content.Page, taxonomyURLs []string) {
	doc := sitemapDoc{Namespace: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range pages {
		entry := sitemapEntry{Loc: p.Permalink(b.cfg.Site.BaseURL)}
		if !p.Meta.Date.IsZero() {
			entry.LastMod = p.Meta.Date.Format("2006-01-02")
		}
		doc.URLs = append(doc.URLs, entry)
	}
	for _, u := range taxonomyURLs {
		fake := &content.Page{URL: u}
		doc.URLs = append(doc.URLs, sitemapEntry{Loc: fake.Permalink(b.cfg.Site.BaseURL)})
	}
	sort.Slice(doc.URLs, func(i, j int) bool { return doc.URLs[i].Loc < doc.URLs[j].Loc })

	raw, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		st.fail("sitemap.xml", siteerr.Wrap(err, siteerr.KindRender, "sitemap.xml", "encode sitemap"))
		return
	}
	st.addOutput("sitemap.xml", append([]byte(xml.Header), raw...))
}

// sortPages orders pages for listings: explicit weight first, then
// newest date, then source path for stability.
func sortPages(pages []*content.Page) {
	sort.Slice(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		if a.Meta.Weight != b.Meta.Weight {
			return a.Meta.Weight < b.Meta.Weight
		}
		if !a.Meta.Date.Equal(b.Meta.Date) {
			return a.Meta.Date.After(b.Meta.Date)
		}
		return a.SourcePath < b.SourcePath
	})
}

func pageViews(pages []*content.Page, baseURL string) []render.PageView {
	views := make([]render.PageView, 0, len(pages))
	for _, p := range pages {
		views = append(views, render.NewPageView(p, baseURL))
	}
	return views
}
