package build

import (
	"time"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

// Snapshot is the immutable result of a published build: the parsed
// pages, the merged site data, and every rendered output keyed by its
// path relative to the output root. Incremental builds reuse the
// previous snapshot for everything outside the invalidated set; a
// snapshot is replaced only when a build publishes.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Pages     map[string]*content.Page
	Data      map[string]any
	Outputs   map[string][]byte
}

// next derives a fresh snapshot from prev, carrying its maps forward
// as copies so the published snapshot stays untouched while the new
// build mutates its own view.
func (prev *Snapshot) next(id string) *Snapshot {
	s := &Snapshot{
		ID:        id,
		CreatedAt: time.Now(),
		Pages:     map[string]*content.Page{},
		Data:      map[string]any{},
		Outputs:   map[string][]byte{},
	}
	if prev == nil {
		return s
	}
	for k, v := range prev.Pages {
		s.Pages[k] = v
	}
	for k, v := range prev.Data {
		s.Data[k] = v
	}
	for k, v := range prev.Outputs {
		s.Outputs[k] = v
	}
	return s
}
