// Package render applies site templates to content nodes. All inputs
// are resolved before template execution, so rendering a node is
// reproducible given its inputs and never touches the filesystem.
package render

import (
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// Default template names used when front matter does not pick one.
const (
	TemplatePage       = "page.html"
	TemplateSection    = "section.html"
	TemplateIndex      = "index.html"
	TemplateTags       = "tags.html"
	TemplateTag        = "tag.html"
	TemplateCategories = "categories.html"
	TemplateCategory   = "category.html"
)

var (
	// {{template "name" .}} includes create template -> template deps.
	includeRe = regexp.MustCompile(`\{\{[-\s]*template\s+"([^"]+)"`)
	// References like .Site.Data.nav create template -> data deps.
	dataRefRe = regexp.MustCompile(`\.Site\.Data\.([A-Za-z0-9_]+)`)
)

// Set holds the compiled template set for one build. Immutable after
// Load; shared read-only by all render workers.
type Set struct {
	root  *template.Template
	names map[string]struct{}
	// includes and dataRefs record scanned source dependencies.
	includes map[string][]string
	dataRefs map[string][]string
}

// LoadSet parses every *.html file under dir into one template set.
// Template identity is the file name relative to dir (slashes).
func LoadSet(dir string) (*Set, error) {
	root := template.New("").Option("missingkey=error").Funcs(template.FuncMap{
		"slugify": content.Slugify,
	})
	s := &Set{
		root:     root,
		names:    map[string]struct{}{},
		includes: map[string][]string{},
		dataRefs: map[string][]string{},
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		src, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if _, err := s.root.New(name).Parse(string(src)); err != nil {
			return siteerr.Wrap(err, siteerr.KindTemplate, name, "parse template")
		}
		s.names[name] = struct{}{}
		s.includes[name] = scanUnique(includeRe, src)
		s.dataRefs[name] = scanUnique(dataRefRe, src)
		return nil
	})
	if err != nil {
		if _, ok := err.(*siteerr.Error); ok {
			return nil, err
		}
		return nil, siteerr.WrapStructural(err, siteerr.KindIO, dir, "walk template dir")
	}
	return s, nil
}

// Has reports whether a template with the given name was loaded.
func (s *Set) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Names returns all loaded template names, sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Includes returns the templates directly included by name.
func (s *Set) Includes(name string) []string { return s.includes[name] }

// DataRefs returns the site data keys referenced by name's source.
func (s *Set) DataRefs(name string) []string { return s.dataRefs[name] }

// execute renders the named template. Callers guarantee name exists.
func (s *Set) execute(w *strings.Builder, name string, data any) error {
	return s.root.ExecuteTemplate(w, name, data)
}

// TemplateFor picks the template a page renders with: an explicit front
// matter choice wins, then the structural default.
func TemplateFor(p *content.Page) string {
	if p.Meta.Template != "" {
		return p.Meta.Template
	}
	if p.IsSection {
		if p.URL == "" {
			return TemplateIndex
		}
		return TemplateSection
	}
	return TemplatePage
}

func scanUnique(re *regexp.Regexp, src []byte) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range re.FindAllSubmatch(src, -1) {
		v := string(m[1])
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
