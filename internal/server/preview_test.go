package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
)

func testSite(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"content", "templates", "data", "static"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	cfg := config.Default(root)
	cfg.Site.Title = "Preview Site"
	cfg.Site.BaseURL = "http://localhost"
	writeSiteFile(t, filepath.Join(cfg.Paths.Templates, "index.html"),
		`<html><body>{{range .Pages}}{{.Title}}{{end}}</body></html>`)
	writeSiteFile(t, filepath.Join(cfg.Paths.Templates, "page.html"),
		`<html><body><h1>{{.Page.Title}}</h1>{{.Content}}</body></html>`)
	writeSiteFile(t, filepath.Join(cfg.Paths.Templates, "section.html"),
		`<html><body>{{range .Pages}}{{.Title}}{{end}}</body></html>`)
	return cfg
}

func writeSiteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readSiteOutput(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.Directory, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestFailedRebuildBatchRetriedOnNextChange(t *testing.T) {
	cfg := testSite(t)
	aPath := filepath.Join(cfg.Paths.Content, "a.md")
	bPath := filepath.Join(cfg.Paths.Content, "b.md")
	writeSiteFile(t, aPath, "---\ntitle: A\n---\n\nFirst.\n")
	writeSiteFile(t, bPath, "---\ntitle: B\n---\n\nOther.\n")

	b := build.New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	hub := NewHub(nil)
	defer hub.Shutdown()

	// An unparseable template aborts the cycle; the batch must survive.
	broken := filepath.Join(cfg.Paths.Templates, "broken.html")
	writeSiteFile(t, broken, `{{define "x"}{{end}}`)
	writeSiteFile(t, aPath, "---\ntitle: A\n---\n\nEdited.\n")

	pending := rebuild(context.Background(), cfg, b, hub, []build.Change{
		{Path: broken, Op: build.OpCreated},
		{Path: aPath, Op: build.OpModified},
	})
	require.Len(t, pending, 2, "failed batch must be retained for retry")
	require.NotContains(t, readSiteOutput(t, cfg, "a/index.html"), "Edited")

	// Fixing the templates and touching another file retries the
	// retained edit together with the new one.
	require.NoError(t, os.Remove(broken))
	writeSiteFile(t, bPath, "---\ntitle: B\n---\n\nAlso edited.\n")

	pending = rebuild(context.Background(), cfg, b, hub, mergeChanges(pending, []build.Change{
		{Path: broken, Op: build.OpRemoved},
		{Path: bPath, Op: build.OpModified},
	}))
	require.Nil(t, pending)
	require.Contains(t, readSiteOutput(t, cfg, "a/index.html"), "Edited")
	require.Contains(t, readSiteOutput(t, cfg, "b/index.html"), "Also edited")
}

func TestMergeChanges(t *testing.T) {
	prev := []build.Change{
		{Path: "/src/a.md", Op: build.OpCreated},
		{Path: "/src/b.md", Op: build.OpModified},
	}
	next := []build.Change{
		{Path: "/src/a.md", Op: build.OpModified},
		{Path: "/src/b.md", Op: build.OpRemoved},
		{Path: "/src/c.md", Op: build.OpCreated},
	}

	merged := mergeChanges(prev, next)
	require.Equal(t, []build.Change{
		{Path: "/src/a.md", Op: build.OpCreated}, // creation survives a later modification
		{Path: "/src/b.md", Op: build.OpRemoved},
		{Path: "/src/c.md", Op: build.OpCreated},
	}, merged)

	require.Equal(t, next, mergeChanges(nil, next))
	require.Nil(t, rebuild(context.Background(), config.Default(t.TempDir()), nil, nil, nil))
}
