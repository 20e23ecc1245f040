// Package logfields defines canonical log field helpers so attribute
// names do not drift between packages.
package logfields

import "log/slog"

const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyTemplate   = "template"
	KeySection    = "section"
	KeyKind       = "kind"
	KeyDurationMS = "duration_ms"
	KeyOutput     = "output"
	KeyError      = "error"
)

func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Template(name string) slog.Attr  { return slog.String(KeyTemplate, name) }
func Section(s string) slog.Attr      { return slog.String(KeySection, s) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Output(dir string) slog.Attr     { return slog.String(KeyOutput, dir) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
