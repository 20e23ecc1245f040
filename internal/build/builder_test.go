package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/graph"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"content", "templates", "data", "static"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	cfg := config.Default(root)
	cfg.Site.Title = "Test Site"
	cfg.Site.BaseURL = "http://example.com"
	cfg.Build.Workers = 4
	cfg.Build.RenderTimeout = 5 * time.Second
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeBaseTemplates(t *testing.T, cfg *config.Config) {
	t.Helper()
	writeFile(t, filepath.Join(cfg.Paths.Templates, "index.html"),
		`<html><body><h1>{{.Site.Title}}</h1>{{range .Pages}}<a href="/{{.URL}}/">{{.Title}}</a>{{end}}</body></html>`)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "page.html"),
		`<html><body><h1>{{.Page.Title}}</h1>{{.Content}}</body></html>`)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "section.html"),
		`<html><body><h1>{{.Page.Title}}</h1>{{range .Pages}}<a href="/{{.URL}}/">{{.Title}}</a>{{end}}</body></html>`)
}

func readOutput(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.Directory, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestFullBuildPublishesAllPages(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Content, "hello.md"),
		"---\ntitle: Hello\n---\n\nSome **bold** text.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "blog", "first.md"),
		"---\ntitle: First Post\n---\n\nBody.\n")

	b := New(cfg)
	report, err := b.Full(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	require.Equal(t, PhasePublished, b.Phase())
	require.Zero(t, report.Failed)

	require.Contains(t, readOutput(t, cfg, "hello/index.html"), "<strong>bold</strong>")
	require.Contains(t, readOutput(t, cfg, "blog/first/index.html"), "First Post")
	// No root _index.md: the home page is synthesized from index.html.
	require.Contains(t, readOutput(t, cfg, "index.html"), "Test Site")
	require.Contains(t, readOutput(t, cfg, "sitemap.xml"), "http://example.com/hello/")
}

func TestFullBuildIsDeterministic(t *testing.T) {
	build := func() map[string][]byte {
		cfg := testConfig(t)
		writeBaseTemplates(t, cfg)
		writeFile(t, filepath.Join(cfg.Paths.Content, "a.md"), "---\ntitle: A\ndate: 2024-03-01\n---\n\nA body.\n")
		writeFile(t, filepath.Join(cfg.Paths.Content, "b.md"), "---\ntitle: B\ndate: 2024-02-01\n---\n\nB body.\n")
		b := New(cfg)
		_, err := b.Full(context.Background())
		require.NoError(t, err)
		return b.Snapshot().Outputs
	}

	first := build()
	second := build()
	require.Equal(t, len(first), len(second))
	for path, data := range first {
		require.Equal(t, string(data), string(second[path]), path)
	}
}

func TestBrokenPageDoesNotPoisonSiblings(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Content, "good.md"), "---\ntitle: Good\n---\n\nFine.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "bad.md"), "---\ntitle: Broken\n") // no closing delimiter

	b := New(cfg)
	report, err := b.Full(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, report.Outcome)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "bad.md", report.Failures[0].Path)
	require.Contains(t, readOutput(t, cfg, "good/index.html"), "Good")
}

func TestIncrementalRebuildTouchesOnlyChangedOutputs(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	aPath := filepath.Join(cfg.Paths.Content, "a.md")
	writeFile(t, aPath, "---\ntitle: A\n---\n\nOriginal.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "b.md"), "---\ntitle: B\n---\n\nUntouched.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	bOut := filepath.Join(cfg.Output.Directory, "b", "index.html")
	before, err := os.Stat(bOut)
	require.NoError(t, err)

	writeFile(t, aPath, "---\ntitle: A\n---\n\nRewritten.\n")
	report, err := b.Rebuild(context.Background(), []Change{{Path: aPath, Op: OpModified}})
	require.NoError(t, err)
	require.Equal(t, KindIncremental, report.Kind)
	require.Equal(t, 1, report.Updated)
	require.Zero(t, report.Created)

	require.Contains(t, readOutput(t, cfg, "a/index.html"), "Rewritten")

	after, err := os.Stat(bOut)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime(), "unchanged output must keep its mtime")
}

func TestDataChangeInvalidatesOnlyDependentPages(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "nav.html"),
		`<html><body><nav>{{.Site.Data.nav}}</nav>{{.Content}}</body></html>`)
	navPath := filepath.Join(cfg.Paths.Data, "nav.yaml")
	writeFile(t, navPath, "home\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "uses-nav.md"),
		"---\ntitle: Uses Nav\ntemplate: nav.html\n---\n\nX.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "plain.md"),
		"---\ntitle: Plain\n---\n\nY.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)
	require.Contains(t, readOutput(t, cfg, "uses-nav/index.html"), "home")

	writeFile(t, navPath, "about\n")
	report, err := b.Rebuild(context.Background(), []Change{{Path: navPath, Op: OpModified}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Updated)

	require.Contains(t, readOutput(t, cfg, "uses-nav/index.html"), "about")
	require.Contains(t, readOutput(t, cfg, "plain/index.html"), "Y.")
}

func TestRemovedDataFileInvalidatesDependents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data = map[string]any{"nav": "fallback"}
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "nav.html"),
		`<html><body><nav>{{.Site.Data.nav}}</nav>{{.Content}}</body></html>`)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "extra.html"),
		`<html><body>{{.Site.Data.extra}}{{.Content}}</body></html>`)
	navPath := filepath.Join(cfg.Paths.Data, "nav.yaml")
	extraPath := filepath.Join(cfg.Paths.Data, "extra.yaml")
	writeFile(t, navPath, "from-file\n")
	writeFile(t, extraPath, "stuff\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "uses-nav.md"),
		"---\ntitle: Uses Nav\ntemplate: nav.html\n---\n\nX.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "uses-extra.md"),
		"---\ntitle: Uses Extra\ntemplate: extra.html\n---\n\nY.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)
	require.Contains(t, readOutput(t, cfg, "uses-nav/index.html"), "from-file")
	require.Contains(t, readOutput(t, cfg, "uses-extra/index.html"), "stuff")

	require.NoError(t, os.Remove(navPath))
	require.NoError(t, os.Remove(extraPath))
	report, err := b.Rebuild(context.Background(), []Change{
		{Path: navPath, Op: OpRemoved},
		{Path: extraPath, Op: OpRemoved},
	})
	require.NoError(t, err)

	// nav falls back to the inline config value and rerenders.
	require.Contains(t, readOutput(t, cfg, "uses-nav/index.html"), "fallback")
	// extra has no fallback: the dependent rerenders, fails, and keeps
	// its last good output instead of silently serving deleted data.
	require.Equal(t, OutcomePartial, report.Outcome)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "uses-extra.md", report.Failures[0].Path)
	require.Contains(t, readOutput(t, cfg, "uses-extra/index.html"), "stuff")
}

func TestFailedPromoteRollsBackEarlierPromotes(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	aPath := filepath.Join(cfg.Paths.Content, "a.md")
	bPath := filepath.Join(cfg.Paths.Content, "b.md")
	writeFile(t, aPath, "---\ntitle: A\n---\n\nAlpha one.\n")
	writeFile(t, bPath, "---\ntitle: B\n---\n\nBeta one.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	// A regular file where a's output directory should be makes its
	// promotion fail partway through the loop.
	aDir := filepath.Join(cfg.Output.Directory, "a")
	require.NoError(t, os.RemoveAll(aDir))
	writeFile(t, aDir, "obstruction")

	writeFile(t, aPath, "---\ntitle: A\n---\n\nAlpha two.\n")
	writeFile(t, bPath, "---\ntitle: B\n---\n\nBeta two.\n")
	_, err = b.Rebuild(context.Background(), []Change{
		{Path: aPath, Op: OpModified},
		{Path: bPath, Op: OpModified},
	})
	require.Error(t, err)
	require.Equal(t, PhaseError, b.Phase())

	// No half-published tree: b's output is its pre-cycle content even
	// when it promoted before a failed.
	require.Contains(t, readOutput(t, cfg, "b/index.html"), "Beta one")
}

func TestFailedRebuildLeavesGraphIntact(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	aPath := filepath.Join(cfg.Paths.Content, "a.md")
	bPath := filepath.Join(cfg.Paths.Content, "b.md")
	writeFile(t, aPath, "---\ntitle: A\n---\n\nAlpha.\n")
	writeFile(t, bPath, "---\ntitle: B\n---\n\nBeta.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	// Cycle 1 removes a from its working set but aborts in the write
	// stage; the node removal must not leak into the published graph.
	bDir := filepath.Join(cfg.Output.Directory, "b")
	require.NoError(t, os.RemoveAll(bDir))
	writeFile(t, bDir, "obstruction")
	writeFile(t, bPath, "---\ntitle: B\n---\n\nBeta edited.\n")
	_, err = b.Rebuild(context.Background(), []Change{
		{Path: aPath, Op: OpRemoved},
		{Path: bPath, Op: OpModified},
	})
	require.Error(t, err)

	// Cycle 2: a template edit must still reach page a through the graph.
	require.NoError(t, os.Remove(bDir))
	tpl := filepath.Join(cfg.Paths.Templates, "page.html")
	writeFile(t, tpl, `<html><body data-rev="v2"><h1>{{.Page.Title}}</h1>{{.Content}}</body></html>`)
	_, err = b.Rebuild(context.Background(), []Change{{Path: tpl, Op: OpModified}})
	require.NoError(t, err)
	require.Contains(t, readOutput(t, cfg, "a/index.html"), `data-rev="v2"`)
}

func TestDuplicateOutputPathIsPerNodeFailure(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Content, "a.md"),
		"---\ntitle: First\nslug: shared\n---\n\nAAA.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "b.md"),
		"---\ntitle: Second\nslug: shared\n---\n\nBBB.\n")

	b := New(cfg)
	report, err := b.Full(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, report.Outcome)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "b.md", report.Failures[0].Path)

	out := readOutput(t, cfg, "shared/index.html")
	require.Contains(t, out, "AAA")
	require.NotContains(t, out, "BBB")
}

func TestRemovedTemplateFailsDependentsAndRelinksOnReturn(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	special := filepath.Join(cfg.Paths.Templates, "special.html")
	writeFile(t, special, `<html><body>rev-one {{.Page.Title}}</body></html>`)
	writeFile(t, filepath.Join(cfg.Paths.Content, "c.md"),
		"---\ntitle: C\ntemplate: special.html\n---\n\nX.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)
	require.Contains(t, readOutput(t, cfg, "c/index.html"), "rev-one")

	require.NoError(t, os.Remove(special))
	report, err := b.Rebuild(context.Background(), []Change{{Path: special, Op: OpRemoved}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "c.md", report.Failures[0].Path)
	require.Contains(t, readOutput(t, cfg, "c/index.html"), "rev-one")

	// The template coming back relinks and rerenders its pages.
	writeFile(t, special, `<html><body>rev-two {{.Page.Title}}</body></html>`)
	report, err = b.Rebuild(context.Background(), []Change{{Path: special, Op: OpCreated}})
	require.NoError(t, err)
	require.Zero(t, report.Failed)
	require.Contains(t, readOutput(t, cfg, "c/index.html"), "rev-two")
}

func TestFailedBuildKeepsPreviousOutput(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Content, "a.md"), "---\ntitle: A\n---\n\nStable.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)
	snap := b.Snapshot()

	// An unparseable template makes the set unloadable: structural abort.
	badTpl := filepath.Join(cfg.Paths.Templates, "broken.html")
	writeFile(t, badTpl, `{{define "x"}{{end}}`)
	_, err = b.Rebuild(context.Background(), []Change{{Path: badTpl, Op: OpCreated}})
	require.Error(t, err)
	require.Equal(t, PhaseError, b.Phase())
	require.Error(t, b.LastError())

	require.Same(t, snap, b.Snapshot(), "failed build must not replace the snapshot")
	require.Contains(t, readOutput(t, cfg, "a/index.html"), "Stable")
}

func TestRemovedPageDropsItsOutput(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	gone := filepath.Join(cfg.Paths.Content, "blog", "gone.md")
	writeFile(t, gone, "---\ntitle: Gone\n---\n\nBye.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "keep.md"), "---\ntitle: Keep\n---\n\nHi.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(gone))
	_, err = b.Rebuild(context.Background(), []Change{{Path: gone, Op: OpRemoved}})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(cfg.Output.Directory, "blog", "gone", "index.html"))
	require.True(t, os.IsNotExist(statErr))
	require.NotContains(t, readOutput(t, cfg, "sitemap.xml"), "/blog/gone/")
}

func TestSectionIndexListsMembers(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Content, "blog", "_index.md"), "---\ntitle: Blog\n---\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "blog", "one.md"), "---\ntitle: One\n---\n\n1.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "blog", "two.md"), "---\ntitle: Two\n---\n\n2.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	idx := readOutput(t, cfg, "blog/index.html")
	require.Contains(t, idx, "One")
	require.Contains(t, idx, "Two")

	// A new member invalidates the section listing.
	three := filepath.Join(cfg.Paths.Content, "blog", "three.md")
	writeFile(t, three, "---\ntitle: Three\n---\n\n3.\n")
	_, err = b.Rebuild(context.Background(), []Change{{Path: three, Op: OpCreated}})
	require.NoError(t, err)
	require.Contains(t, readOutput(t, cfg, "blog/index.html"), "Three")
}

func TestTemplateIncludeCycleAbortsBuild(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "a.html"), `{{template "b.html" .}}`)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "b.html"), `{{template "a.html" .}}`)
	writeFile(t, filepath.Join(cfg.Paths.Content, "p.md"), "---\ntitle: P\n---\n\nX.\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.Error(t, err)
	var cycle *graph.CycleError
	require.ErrorAs(t, err, &cycle)
	require.Equal(t, PhaseError, b.Phase())
}

func TestTaxonomiesFeedAndStatic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Site.GenerateTags = true
	cfg.Site.GenerateRSS = true
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "tags.html"),
		`<html><body>{{range .Terms}}<a href="/tags/{{.Slug}}/">{{.Name}} ({{.Count}})</a>{{end}}</body></html>`)
	writeFile(t, filepath.Join(cfg.Paths.Templates, "tag.html"),
		`<html><body><h1>{{.Term}}</h1>{{range .Pages}}{{.Title}}{{end}}</body></html>`)
	writeFile(t, filepath.Join(cfg.Paths.Content, "p1.md"),
		"---\ntitle: P1\ndate: 2024-05-01\ntags: [go, web]\n---\n\n1.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "p2.md"),
		"---\ntitle: P2\ndate: 2024-06-01\ntags: [go]\n---\n\n2.\n")
	writeFile(t, filepath.Join(cfg.Paths.Static, "css", "site.css"), "body { color: red; }\n")

	b := New(cfg)
	_, err := b.Full(context.Background())
	require.NoError(t, err)

	require.Contains(t, readOutput(t, cfg, "tags/index.html"), "go (2)")
	require.Contains(t, readOutput(t, cfg, "tags/go/index.html"), "P1")
	require.Contains(t, readOutput(t, cfg, "tags/web/index.html"), "P1")
	require.Contains(t, readOutput(t, cfg, "rss.xml"), "P2")
	require.Contains(t, readOutput(t, cfg, "css/site.css"), "color")
}

func TestDraftsExcludedUnlessEnabled(t *testing.T) {
	cfg := testConfig(t)
	writeBaseTemplates(t, cfg)
	writeFile(t, filepath.Join(cfg.Paths.Content, "draft.md"), "---\ntitle: Draft\ndraft: true\n---\n\nWip.\n")
	writeFile(t, filepath.Join(cfg.Paths.Content, "live.md"), "---\ntitle: Live\n---\n\nShipped.\n")

	b := New(cfg)
	report, err := b.Full(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, report.Skipped, 1)
	_, statErr := os.Stat(filepath.Join(cfg.Output.Directory, "draft", "index.html"))
	require.True(t, os.IsNotExist(statErr))

	cfg.Build.Drafts = true
	b2 := New(cfg)
	_, err = b2.Full(context.Background())
	require.NoError(t, err)
	require.Contains(t, readOutput(t, cfg, "draft/index.html"), "Wip")
}

func TestInjectLiveReload(t *testing.T) {
	doc := []byte("<html><body><p>hi</p></body></html>")
	out := string(injectLiveReload(doc))
	require.Contains(t, out, liveReloadTag+"</body>")

	noBody := []byte("<p>fragment</p>")
	require.Contains(t, string(injectLiveReload(noBody)), liveReloadTag)
}
