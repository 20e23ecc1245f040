package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

const starterConfig = `site:
  title: My Site
  base_url: http://localhost:1111
  generate_rss: false
  generate_tags: false
  generate_categories: false

paths:
  content: content
  templates: templates
  data: data
  static: static

build:
  workers: 0
  render_timeout: 30s
  drafts: false
  minify: false

serve:
  port: 1111
  debounce: 300ms

output:
  directory: public
`

const starterIndexTemplate = `<!DOCTYPE html>
<html lang="{{.Site.Language}}">
<head><meta charset="utf-8"><title>{{.Site.Title}}</title></head>
<body>
  <h1>{{.Site.Title}}</h1>
  <ul>
  {{range .Pages}}<li><a href="/{{.URL}}/">{{.Title}}</a></li>{{end}}
  </ul>
</body>
</html>
`

const starterPageTemplate = `<!DOCTYPE html>
<html lang="{{.Site.Language}}">
<head><meta charset="utf-8"><title>{{.Page.Title}} - {{.Site.Title}}</title></head>
<body>
  <h1>{{.Page.Title}}</h1>
  {{.Content}}
</body>
</html>
`

const starterSectionTemplate = `<!DOCTYPE html>
<html lang="{{.Site.Language}}">
<head><meta charset="utf-8"><title>{{.Page.Title}} - {{.Site.Title}}</title></head>
<body>
  <h1>{{.Page.Title}}</h1>
  {{.Content}}
  <ul>
  {{range .Pages}}<li><a href="/{{.URL}}/">{{.Title}}</a></li>{{end}}
  </ul>
</body>
</html>
`

const starterPage = `---
title: Welcome
---

This page was scaffolded by sitegen. Edit it and the dev server will
rebuild and reload automatically.
`

// runInit scaffolds a working site: configuration, source directories,
// starter templates, and one content page.
func runInit(configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
	}

	root := filepath.Dir(configPath)
	files := map[string]string{
		configPath: starterConfig,
		filepath.Join(root, "templates", "index.html"):   starterIndexTemplate,
		filepath.Join(root, "templates", "page.html"):    starterPageTemplate,
		filepath.Join(root, "templates", "section.html"): starterSectionTemplate,
		filepath.Join(root, "content", "welcome.md"):     starterPage,
	}
	for _, dir := range []string{"content", "templates", "data", "static"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return err
		}
	}
	for path, body := range files {
		if !force {
			if _, err := os.Stat(path); err == nil {
				slog.Info("keeping existing file", logfields.Path(path))
				continue
			}
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
		slog.Info("wrote", logfields.Path(path))
	}
	return nil
}
