// Package siteerr provides the structured error type used across the
// build pipeline for kind-based classification and per-node isolation.
package siteerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a build error.
type Kind string

const (
	// Per-node errors: recorded against the node, never abort a build.
	KindParse    Kind = "parse"
	KindEncoding Kind = "encoding"
	KindTemplate Kind = "template"
	KindRender   Kind = "render"
	KindTimeout  Kind = "timeout"

	// Structural errors: abort the current build cycle.
	KindCycle  Kind = "cycle"
	KindIO     Kind = "io"
	KindConfig Kind = "config"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Aborts the build cycle.
	SeverityError   Severity = "error"   // Degrades one node.
	SeverityWarning Severity = "warning" // Recorded, build continues.
)

// Error is a structured build error with kind, severity, and the source
// path it is attached to.
type Error struct {
	Kind     Kind
	Severity Severity
	Path     string // canonical source path, template name, or data key
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Fatal reports whether the error must abort the current build cycle.
func (e *Error) Fatal() bool { return e.Severity == SeverityFatal }

// New creates a per-node error attached to path.
func New(kind Kind, path, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityError, Path: path, Message: message}
}

// Wrap creates a per-node error wrapping a cause.
func Wrap(err error, kind Kind, path, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityError, Path: path, Message: message, Cause: err}
}

// Structural creates a fatal error that aborts the build cycle.
func Structural(kind Kind, path, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Path: path, Message: message}
}

// WrapStructural creates a fatal error wrapping a cause.
func WrapStructural(err error, kind Kind, path, message string) *Error {
	return &Error{Kind: kind, Severity: SeverityFatal, Path: path, Message: message, Cause: err}
}

// KindOf extracts the kind from an error chain, or KindIO for plain errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindIO
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsFatal reports whether err is structural (aborts the build cycle).
func IsFatal(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Fatal()
	}
	// Unknown errors are treated as fatal by default.
	return err != nil
}
