package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/watch"
)

// Preview runs the full development loop: an initial build, the
// filesystem watcher, the HTTP server, and the rebuild consumer. The
// single consumer loop guarantees at most one build in flight; changes
// arriving mid-build coalesce into exactly one follow-up batch.
func Preview(ctx context.Context, cfg *config.Config, b *build.Builder, srv *Server, hub *Hub) error {
	if _, err := b.Full(ctx); err != nil {
		// Keep serving; the next change retries the build.
		slog.Error("initial build failed", logfields.Error(err))
	}

	w, err := watch.New([]string{
		cfg.Paths.Content,
		cfg.Paths.Templates,
		cfg.Paths.Data,
		cfg.Paths.Static,
	}, cfg.Serve.Debounce)
	if err != nil {
		return err
	}
	defer w.Close()

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run(ctx) }()
	go func() { _ = w.Run(ctx) }()

	// A batch whose cycle fails structurally is retained and folded
	// into the next one, so no edit is lost to a transient failure.
	var pending []build.Change
	for {
		select {
		case err := <-serverErr:
			return err
		case batch, ok := <-w.Batches():
			if !ok {
				return ctx.Err()
			}
			pending = rebuild(ctx, cfg, b, hub, mergeChanges(pending, toChanges(batch)))
		}
	}
}

func toChanges(batch []watch.Event) []build.Change {
	changes := make([]build.Change, 0, len(batch))
	for _, ev := range batch {
		changes = append(changes, build.Change{Path: ev.Path, Op: changeOp(ev.Kind)})
	}
	return changes
}

// mergeChanges folds a retained failed batch into the next one. The
// newest op for a path wins, except that a creation stays a creation
// when a plain modification follows it.
func mergeChanges(prev, next []build.Change) []build.Change {
	if len(prev) == 0 {
		return next
	}
	merged := make([]build.Change, 0, len(prev)+len(next))
	index := make(map[string]int, len(prev)+len(next))
	for _, ch := range prev {
		index[ch.Path] = len(merged)
		merged = append(merged, ch)
	}
	for _, ch := range next {
		i, ok := index[ch.Path]
		if !ok {
			index[ch.Path] = len(merged)
			merged = append(merged, ch)
			continue
		}
		if merged[i].Op == build.OpCreated && ch.Op == build.OpModified {
			continue
		}
		merged[i] = ch
	}
	return merged
}

// rebuild runs one incremental cycle for a coalesced batch and
// notifies browsers. A failed cycle keeps the previous output served
// and returns the batch so the caller retries it on the next change.
func rebuild(ctx context.Context, cfg *config.Config, b *build.Builder, hub *Hub, changes []build.Change) []build.Change {
	if len(changes) == 0 {
		return nil
	}

	slog.Info("change detected; rebuilding", slog.Int("changes", len(changes)))
	if _, err := b.Rebuild(ctx, changes); err != nil {
		slog.Error("rebuild failed; keeping previous output and retrying on next change", logfields.Error(err))
		return changes
	}

	// Pure stylesheet edits refresh in place; anything else reloads.
	if assetsOnly(cfg, changes) {
		for _, ch := range changes {
			hub.Broadcast(ReloadEvent{Type: EventRefreshAsset, Path: assetURL(cfg, ch.Path)})
		}
		return nil
	}
	hub.Broadcast(ReloadEvent{Type: EventReload})
	return nil
}

func changeOp(k watch.Kind) build.ChangeOp {
	switch k {
	case watch.Created:
		return build.OpCreated
	case watch.Removed:
		return build.OpRemoved
	default:
		return build.OpModified
	}
}

func assetsOnly(cfg *config.Config, changes []build.Change) bool {
	for _, ch := range changes {
		if !strings.HasPrefix(ch.Path, cfg.Paths.Static) || !strings.HasSuffix(ch.Path, ".css") {
			return false
		}
	}
	return len(changes) > 0
}

// assetURL maps an absolute static file path to the URL the asset is
// served under, which is what the browser-side script acts on.
func assetURL(cfg *config.Config, abs string) string {
	rel, err := filepath.Rel(cfg.Paths.Static, abs)
	if err != nil {
		return "/" + filepath.Base(abs)
	}
	return "/" + filepath.ToSlash(rel)
}
