package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// Loader walks a content root and parses Markdown files into Pages.
type Loader struct {
	root    string
	workers int
}

// NewLoader creates a loader for the given content root. workers
// bounds parallel parsing; values < 1 mean sequential.
func NewLoader(root string, workers int) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{root: filepath.Clean(root), workers: workers}
}

// Load parses the whole content tree. Per-file failures are attached to
// the offending page (Status == StatusError) without aborting the load;
// an unreadable root is a structural error.
func (l *Loader) Load(ctx context.Context) (map[string]*Page, error) {
	paths, err := l.collect()
	if err != nil {
		return nil, siteerr.WrapStructural(err, siteerr.KindIO, l.root, "walk content root")
	}

	pages := make(map[string]*Page, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, l.workers)

	for _, rel := range paths {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, siteerr.WrapStructural(ctx.Err(), siteerr.KindIO, l.root, "load canceled")
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(rel string) {
			defer wg.Done()
			defer func() { <-sem }()
			page := l.ParseFile(rel)
			mu.Lock()
			pages[page.SourcePath] = page
			mu.Unlock()
		}(rel)
	}
	wg.Wait()

	slog.Debug("content tree loaded", logfields.Path(l.root), slog.Int("pages", len(pages)))
	return pages, nil
}

// ParseFile parses a single file identified by its canonical path
// (slash-separated, relative to the content root). Parsing is
// idempotent: identical bytes yield an identical Page.
func (l *Loader) ParseFile(rel string) *Page {
	page := &Page{
		SourcePath: rel,
		Section:    sectionOf(rel),
		IsSection:  path.Base(rel) == SectionIndexFile,
		Status:     StatusUnrendered,
	}

	raw, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		return page.fail(siteerr.Wrap(err, siteerr.KindIO, rel, "read content file"))
	}
	sum := sha256.Sum256(raw)
	page.RawHash = hex.EncodeToString(sum[:])

	if !utf8.Valid(raw) {
		return page.fail(siteerr.New(siteerr.KindEncoding, rel, "content is not valid UTF-8"))
	}

	fm, body, _, err := frontmatter.Split(raw)
	if err != nil {
		return page.fail(siteerr.Wrap(err, siteerr.KindParse, rel, "malformed front matter"))
	}
	fields, err := frontmatter.Parse(fm)
	if err != nil {
		return page.fail(siteerr.Wrap(err, siteerr.KindParse, rel, "malformed front matter"))
	}
	meta, err := decodeMeta(fields)
	if err != nil {
		return page.fail(siteerr.Wrap(err, siteerr.KindParse, rel, "invalid front matter field"))
	}

	page.Meta = meta
	page.Body = body
	page.Slug = slugFor(rel, meta, page.IsSection)
	page.URL = urlFor(page)
	if page.Meta.Title == "" {
		page.Meta.Title = titleFromSlug(page.Slug)
	}
	return page
}

func (p *Page) fail(err *siteerr.Error) *Page {
	p.Status = StatusError
	p.Err = err
	slog.Warn("content parse failed", logfields.Path(p.SourcePath), logfields.Error(err))
	return p
}

// collect gathers canonical paths of all Markdown files under the root
// in deterministic order. Hidden files and directories are skipped.
func (l *Loader) collect() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && p != l.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(name), ".md") {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// sectionOf returns the section path for a canonical content path.
func sectionOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// slugFor picks the slug segment: explicit front matter slug wins, then
// the slugified file stem. Section indexes use the directory name.
func slugFor(rel string, meta Meta, isSection bool) string {
	if meta.Slug != "" {
		return Slugify(meta.Slug)
	}
	if isSection {
		dir := path.Dir(rel)
		if dir == "." {
			return ""
		}
		return Slugify(path.Base(dir))
	}
	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	return Slugify(stem)
}

// urlFor joins slugified section components with the page slug.
func urlFor(p *Page) string {
	var parts []string
	if p.Section != "" {
		for _, comp := range strings.Split(p.Section, "/") {
			parts = append(parts, Slugify(comp))
		}
	}
	if p.IsSection {
		// The section index lives at the section URL itself.
		return path.Join(parts...)
	}
	parts = append(parts, p.Slug)
	return path.Join(parts...)
}

func titleFromSlug(slug string) string {
	if slug == "" {
		return ""
	}
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
