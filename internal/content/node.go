// Package content walks a source tree and parses Markdown files with
// YAML front matter into in-memory page nodes.
package content

import (
	"path"
	"time"
)

// Status tracks where a page is in the render lifecycle.
type Status string

const (
	StatusUnrendered Status = "unrendered"
	StatusRendered   Status = "rendered"
	StatusStale      Status = "stale"
	StatusError      Status = "error"
)

// SectionIndexFile is the file name that turns a directory into a section.
const SectionIndexFile = "_index.md"

// Meta holds the typed front matter fields of a page.
type Meta struct {
	Title    string
	Slug     string
	Date     time.Time
	Weight   int
	Template string
	Tags     []string
	Category string
	Draft    bool
	Extra    map[string]any // everything not covered by a typed field
}

// Page is one content node: a page or a section index.
//
// Identity is the canonical source path (slash-separated, relative to
// the content root). A page is owned by the loader until registration;
// afterwards it is shared read-only.
type Page struct {
	SourcePath string // canonical path, e.g. "blog/first-post.md"
	Section    string // section path, "" for the content root
	IsSection  bool   // true for _index.md nodes

	Meta    Meta
	Body    []byte // raw Markdown body, front matter stripped
	RawHash string // sha256 of the raw file bytes

	Slug string // final slug segment
	URL  string // site-relative URL path, e.g. "blog/first-post"

	Status Status
	Err    error // parse error when Status == StatusError
}

// OutputPath returns the output file the page owns, relative to the
// output root. Pages render to pretty URLs (dir/index.html).
func (p *Page) OutputPath() string {
	if p.URL == "" {
		return "index.html"
	}
	return path.Join(p.URL, "index.html")
}

// Permalink joins the site base URL with the page URL.
func (p *Page) Permalink(baseURL string) string {
	base := baseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if p.URL == "" {
		return base + "/"
	}
	return base + "/" + p.URL + "/"
}
