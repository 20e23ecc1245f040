// Package assets copies the static tree into the output and minifies
// written text assets.
package assets

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	mjson "github.com/tdewolff/minify/v2/json"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// copyConcurrency bounds parallel static file copies.
const copyConcurrency = 8

// Minifier wraps tdewolff/minify for the media types the pipeline
// writes. A disabled minifier passes bytes through unchanged.
type Minifier struct {
	m       *minify.M
	enabled bool
}

// NewMinifier builds a minifier for HTML, CSS, JS, and JSON.
func NewMinifier(enabled bool) *Minifier {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepDefaultAttrVals: true,
		KeepEndTags:         true,
	})
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("application/json", mjson.Minify)
	return &Minifier{m: m, enabled: enabled}
}

// Bytes minifies b according to mediaType. Minification is best
// effort: on failure or unknown types the original bytes come back.
func (m *Minifier) Bytes(mediaType string, b []byte) []byte {
	if m == nil || !m.enabled || mediaType == "" {
		return b
	}
	out, err := m.m.Bytes(mediaType, b)
	if err != nil {
		return b
	}
	return out
}

// MediaTypeFor maps a file extension to the minifier media type, or ""
// when the file should be copied verbatim.
func MediaTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js", ".mjs":
		return "application/javascript"
	case ".json":
		return "application/json"
	}
	return ""
}

// CopyStatic mirrors srcDir into dstDir, minifying known text assets.
// A missing srcDir is not an error. Copies run in parallel; each
// destination path is written by exactly one goroutine.
func CopyStatic(ctx context.Context, srcDir, dstDir string, min *Minifier) (int, error) {
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)
	copied := 0

	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		copied++
		g.Go(func() error { return CopyFile(p, dst, min) })
		return nil
	})
	if err != nil {
		_ = g.Wait()
		return 0, err
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	slog.Debug("static assets copied", logfields.Output(dstDir), slog.Int("files", copied))
	return copied, nil
}

// CopyFile copies one file, minifying known text assets on the way.
func CopyFile(src, dst string, min *Minifier) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	data = min.Bytes(MediaTypeFor(src), data)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
