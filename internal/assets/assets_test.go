package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyStaticMirrorsTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(src, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "robots.txt"), []byte("User-agent: *\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "img", "logo.svg"), []byte("<svg/>"), 0o644))

	n, err := CopyStatic(context.Background(), src, dst, NewMinifier(false))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := os.ReadFile(filepath.Join(dst, "robots.txt"))
	require.NoError(t, err)
	require.Equal(t, "User-agent: *\n", string(got))

	_, err = os.Stat(filepath.Join(dst, "img", "logo.svg"))
	require.NoError(t, err)
}

func TestCopyStaticMissingSourceIsNoop(t *testing.T) {
	dst := t.TempDir()
	n, err := CopyStatic(context.Background(), filepath.Join(dst, "does-not-exist"), dst, NewMinifier(false))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMinifierShrinksCSS(t *testing.T) {
	min := NewMinifier(true)
	in := []byte("body {\n  color: red;\n}\n")
	out := min.Bytes("text/css", in)
	require.Less(t, len(out), len(in))
	require.Contains(t, string(out), "color:red")
}

func TestMinifierDisabledPassesThrough(t *testing.T) {
	min := NewMinifier(false)
	in := []byte("body {  color: red; }")
	require.Equal(t, in, min.Bytes("text/css", in))
}

func TestMediaTypeFor(t *testing.T) {
	require.Equal(t, "text/html", MediaTypeFor("a/b/index.html"))
	require.Equal(t, "text/css", MediaTypeFor("style.CSS"))
	require.Equal(t, "application/javascript", MediaTypeFor("app.mjs"))
	require.Equal(t, "", MediaTypeFor("photo.png"))
}
