package build

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/graph"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// Stage names used in reports and metrics.
const (
	stageLoad   = "load"
	stageGraph  = "graph"
	stageRender = "render"
	stageWrite  = "write"
)

type stageFn func(context.Context, *state) error

type stageDef struct {
	name  string
	phase Phase
	fn    stageFn
}

// state is the working set of one build cycle. It is discarded on
// abort; only a published build commits its snapshot.
type state struct {
	kind   string
	report *Report

	graph    *graph.Graph
	set      *render.Set
	renderer *render.Renderer
	snap     *Snapshot // snapshot under construction

	// Incremental bookkeeping.
	changes     []Change
	classified  changeSet
	invalidated []graph.Ref
	outputs     map[string][]byte // outputs produced by this cycle
	removed     []string          // output paths to delete

	mu      sync.Mutex // guards report failures, outputs, and results during render
	results map[string]nodeResult
}

// nodeResult is a page status transition recorded during parallel
// rendering and applied to the snapshot afterwards, so the pages map
// sees no concurrent writes.
type nodeResult struct {
	status content.Status
	err    error
}

func (st *state) addOutput(path string, data []byte) {
	st.mu.Lock()
	st.outputs[path] = data
	st.snap.Outputs[path] = data
	st.mu.Unlock()
}

func (st *state) fail(path string, err error) {
	st.mu.Lock()
	st.report.addFailure(path, err)
	st.mu.Unlock()
}

func (st *state) setResult(path string, status content.Status, err error) {
	st.mu.Lock()
	if st.results == nil {
		st.results = map[string]nodeResult{}
	}
	st.results[path] = nodeResult{status: status, err: err}
	st.mu.Unlock()
}

// applyResults folds recorded status transitions into the snapshot.
// Pages are replaced by copies; the previously published snapshot
// keeps its own view.
func (st *state) applyResults() {
	for sp, res := range st.results {
		p, ok := st.snap.Pages[sp]
		if !ok {
			continue
		}
		np := *p
		np.Status = res.status
		np.Err = res.err
		st.snap.Pages[sp] = &np
	}
	st.results = nil
}

// publishablePages returns the non-errored pages in deterministic
// order, sections first excluded on demand by the caller.
func (st *state) publishablePages() []*content.Page {
	pages := make([]*content.Page, 0, len(st.snap.Pages))
	for _, p := range st.snap.Pages {
		if p.Status == content.StatusError {
			continue
		}
		pages = append(pages, p)
	}
	sortPages(pages)
	return pages
}

// runStages executes the build stages in order, timing each and
// aborting on the first structural error. Per-node errors never reach
// here; they are recorded in the report by the stages themselves.
func (b *Builder) runStages(ctx context.Context, st *state, stages []stageDef) error {
	for _, sd := range stages {
		if err := ctx.Err(); err != nil {
			b.setPhase(PhaseError)
			return siteerr.WrapStructural(err, siteerr.KindIO, "", "build canceled before stage "+sd.name)
		}

		b.setPhase(sd.phase)
		t0 := time.Now()
		err := sd.fn(ctx, st)
		dur := time.Since(t0)

		st.report.StageDurations[sd.name] = dur
		b.rec.ObserveStageDuration(sd.name, dur)
		slog.Debug("stage finished",
			logfields.BuildID(st.report.BuildID),
			logfields.Stage(sd.name),
			logfields.DurationMS(float64(dur.Milliseconds())),
			logfields.Error(err))

		if err != nil {
			b.setPhase(PhaseError)
			return err
		}
	}
	return nil
}
