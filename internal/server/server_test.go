package server

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
)

func testServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"content", "templates"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	cfg := config.Default(root)
	b := build.New(cfg)
	return New(cfg, b, NewHub(nil)), cfg
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, build.PhaseIdle, status.Phase)
	require.Empty(t, status.LastError)
}

func TestServesPublishedOutput(t *testing.T) {
	s, cfg := testServer(t)
	writeOut := filepath.Join(cfg.Output.Directory, "hello", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(writeOut), 0o755))
	require.NoError(t, os.WriteFile(writeOut, []byte("<html>hi</html>"), 0o644))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/hello/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestBuildsEndpointWithoutHistory(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/builds")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestReloadScriptServed(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/livereload.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
}

func TestAssetsOnly(t *testing.T) {
	cfg := config.Default(t.TempDir())
	css := build.Change{Path: filepath.Join(cfg.Paths.Static, "site.css"), Op: build.OpModified}
	js := build.Change{Path: filepath.Join(cfg.Paths.Static, "app.js"), Op: build.OpModified}
	md := build.Change{Path: filepath.Join(cfg.Paths.Content, "a.md"), Op: build.OpModified}

	require.True(t, assetsOnly(cfg, []build.Change{css}))
	require.False(t, assetsOnly(cfg, []build.Change{css, js}))
	require.False(t, assetsOnly(cfg, []build.Change{css, md}))
	require.False(t, assetsOnly(cfg, nil))
}

func TestAssetURLIsSiteRelative(t *testing.T) {
	cfg := config.Default(t.TempDir())
	abs := filepath.Join(cfg.Paths.Static, "css", "site.css")
	require.Equal(t, "/css/site.css", assetURL(cfg, abs))
}
