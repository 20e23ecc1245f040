package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitegen/internal/assets"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

const writeConcurrency = 8

// publishFull writes every output and the static tree into a sibling
// staging directory and swaps it in with a rename dance. The previous
// output tree survives any failure before the final rename.
func (b *Builder) publishFull(ctx context.Context, st *state) error {
	out := b.cfg.Output.Directory
	stage := out + "_stage"

	if err := os.RemoveAll(stage); err != nil {
		return siteerr.WrapStructural(err, siteerr.KindIO, stage, "clear staging directory")
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return siteerr.WrapStructural(err, siteerr.KindIO, stage, "create staging directory")
	}

	if err := writeOutputs(ctx, stage, st.snap.Outputs); err != nil {
		_ = os.RemoveAll(stage)
		return siteerr.WrapStructural(err, siteerr.KindIO, stage, "write staged outputs")
	}
	if _, err := assets.CopyStatic(ctx, b.cfg.Paths.Static, stage, b.minifier); err != nil {
		_ = os.RemoveAll(stage)
		return siteerr.WrapStructural(err, siteerr.KindIO, b.cfg.Paths.Static, "copy static assets")
	}

	if err := swapDirs(stage, out); err != nil {
		_ = os.RemoveAll(stage)
		return siteerr.WrapStructural(err, siteerr.KindIO, out, "swap output directory")
	}
	slog.Info("output published", logfields.BuildID(st.report.BuildID), logfields.Output(out))
	return nil
}

// publishIncremental stages only this cycle's outputs under a hidden
// directory inside the output root, then promotes each file with a
// rename once all writes succeeded. Unchanged outputs keep their
// bytes and mtimes.
func (b *Builder) publishIncremental(ctx context.Context, st *state) error {
	out := b.cfg.Output.Directory
	if len(st.outputs) == 0 && len(st.removed) == 0 {
		return nil
	}

	stage := filepath.Join(out, ".stage-"+st.report.BuildID)
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return siteerr.WrapStructural(err, siteerr.KindIO, stage, "create staging directory")
	}
	defer os.RemoveAll(stage)

	if err := writeOutputs(ctx, stage, st.outputs); err != nil {
		return siteerr.WrapStructural(err, siteerr.KindIO, stage, "write staged outputs")
	}

	// All writes succeeded; promote file by file, parking every file
	// the promotion replaces or removes under the staging directory so
	// a mid-loop failure restores the tree to its pre-cycle state.
	backupRoot := filepath.Join(stage, ".replaced")
	var touched []string
	rollback := func() {
		for i := len(touched) - 1; i >= 0; i-- {
			rel := touched[i]
			dst := filepath.Join(out, filepath.FromSlash(rel))
			bak := filepath.Join(backupRoot, filepath.FromSlash(rel))
			if _, err := os.Stat(bak); err == nil {
				_ = os.MkdirAll(filepath.Dir(dst), 0o755)
				_ = os.Rename(bak, dst)
				continue
			}
			_ = os.Remove(dst)
		}
	}
	park := func(rel, dst string) error {
		if _, err := os.Stat(dst); err != nil {
			return nil
		}
		bak := filepath.Join(backupRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(bak), 0o755); err != nil {
			return err
		}
		return os.Rename(dst, bak)
	}

	for rel := range st.outputs {
		dst := filepath.Join(out, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			rollback()
			return siteerr.WrapStructural(err, siteerr.KindIO, dst, "create output directory")
		}
		if err := park(rel, dst); err != nil {
			rollback()
			return siteerr.WrapStructural(err, siteerr.KindIO, dst, "back up live output")
		}
		touched = append(touched, rel)
		if err := os.Rename(filepath.Join(stage, filepath.FromSlash(rel)), dst); err != nil {
			rollback()
			return siteerr.WrapStructural(err, siteerr.KindIO, dst, "promote staged output")
		}
	}

	for _, rel := range st.removed {
		if _, produced := st.outputs[rel]; produced {
			// Another page claimed the path this cycle; keep the new file.
			continue
		}
		dst := filepath.Join(out, filepath.FromSlash(rel))
		if err := park(rel, dst); err != nil {
			rollback()
			return siteerr.WrapStructural(err, siteerr.KindIO, dst, "remove stale output")
		}
		touched = append(touched, rel)
		pruneEmptyDirs(filepath.Dir(dst), out)
	}

	slog.Info("incremental outputs promoted",
		logfields.BuildID(st.report.BuildID),
		logfields.Output(out),
		slog.Int("written", len(st.outputs)),
		slog.Int("removed", len(st.removed)))
	return nil
}

// writeOutputs writes every output under root in parallel. Each output
// path is owned by exactly one writer.
func writeOutputs(ctx context.Context, root string, outputs map[string][]byte) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)
	for path, data := range outputs {
		if err := ctx.Err(); err != nil {
			break
		}
		path, data := path, data
		g.Go(func() error {
			dst := filepath.Join(root, filepath.FromSlash(path))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return os.WriteFile(dst, data, 0o644)
		})
	}
	return g.Wait()
}

// swapDirs renames stage into place:
//  1. move the live directory (if any) to <out>.prev
//  2. rename stage -> out
//  3. drop the backup, restoring it if step 2 failed
func swapDirs(stage, out string) error {
	prev := out + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return err
	}
	hadPrev := false
	if _, err := os.Stat(out); err == nil {
		if err := os.Rename(out, prev); err != nil {
			return err
		}
		hadPrev = true
	}
	if err := os.Rename(stage, out); err != nil {
		if hadPrev {
			_ = os.Rename(prev, out)
		}
		return err
	}
	if hadPrev {
		if err := os.RemoveAll(prev); err != nil {
			slog.Warn("failed to remove previous output backup", logfields.Path(prev), logfields.Error(err))
		}
	}
	return nil
}

// removeOutputFile deletes one published file and prunes directories
// it leaves empty. A missing file is fine.
func removeOutputFile(dst, outputRoot string) error {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	pruneEmptyDirs(filepath.Dir(dst), outputRoot)
	return nil
}

// pruneEmptyDirs removes now-empty directories up to (excluding) stop.
func pruneEmptyDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
