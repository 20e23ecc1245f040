// Package frontmatter splits YAML front matter (`---` delimited) from a
// Markdown body and decodes it into a key/value map.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document opened a front
// matter block but never closed it.
var ErrMissingClosingDelimiter = errors.New("front matter opening delimiter found but closing delimiter is missing")

var delim = []byte("---")

// Split separates front matter from the body. If the document does not
// start with a `---` line, had is false and body is the full input.
// Both LF and CRLF newlines are accepted.
func Split(content []byte) (fm, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := append(append([]byte{}, delim...), nl...)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	rest := content[len(open):]

	// Empty block: `---\n---\n`.
	if bytes.HasPrefix(rest, open) {
		return nil, rest[len(open):], true, nil
	}

	closeSeq := append(append(append([]byte{}, nl...), delim...), nl...)
	idx := bytes.Index(rest, closeSeq)
	if idx < 0 {
		// A final unterminated `---` at EOF still counts as closed.
		tail := append(append([]byte{}, nl...), delim...)
		if bytes.HasSuffix(rest, tail) {
			return rest[:len(rest)-len(tail)+len(nl)], nil, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}

	return rest[:idx+len(nl)], rest[idx+len(closeSeq):], true, nil
}

// Parse decodes raw front matter (without delimiters) into a map.
// Empty input yields an empty, non-nil map.
func Parse(fm []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(fm)) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := yaml.Unmarshal(fm, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func detectNewline(content []byte) []byte {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return []byte("\r\n")
	}
	return []byte("\n")
}
