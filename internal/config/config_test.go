package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "site:\n  title: Test Site\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Test Site", cfg.Site.Title)
	require.Equal(t, 1111, cfg.Serve.Port)
	require.Equal(t, 300*time.Millisecond, cfg.Serve.Debounce)
	require.Equal(t, 30*time.Second, cfg.Build.RenderTimeout)
	require.True(t, filepath.IsAbs(cfg.Paths.Content))
	require.Equal(t, "content", filepath.Base(cfg.Paths.Content))
	require.Equal(t, "public", filepath.Base(cfg.Output.Directory))
}

func TestLoad_RelativePathsResolvedAgainstConfigDir(t *testing.T) {
	path := writeConfig(t, "site:\n  title: T\npaths:\n  content: src/pages\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(filepath.Dir(path), "src/pages"), cfg.Paths.Content)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SITE_TITLE", "From Env")
	path := writeConfig(t, "site:\n  title: ${SITE_TITLE}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "From Env", cfg.Site.Title)
}

func TestLoad_InvalidPortRejected(t *testing.T) {
	path := writeConfig(t, "site:\n  title: T\nserve:\n  port: 99999\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "serve")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_NegativeWorkersRejected(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Build.Workers = -1
	require.Error(t, cfg.Validate())
}
