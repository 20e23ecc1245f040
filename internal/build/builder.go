// Package build orchestrates the site pipeline: loading content,
// maintaining the dependency graph, rendering, and atomically
// publishing output. Full builds process the whole tree; incremental
// builds start from coalesced filesystem changes and rerender exactly
// the invalidated set.
package build

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/assets"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/graph"
	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// ChangeOp classifies a filesystem change.
type ChangeOp string

const (
	OpCreated  ChangeOp = "created"
	OpModified ChangeOp = "modified"
	OpRemoved  ChangeOp = "removed"
)

// Change is one coalesced filesystem change feeding an incremental
// build. Path is absolute.
type Change struct {
	Path string
	Op   ChangeOp
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecorder installs a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) { b.rec = r }
}

// WithHistory records finished builds in the given store.
func WithHistory(h *history.Store) Option {
	return func(b *Builder) { b.hist = h }
}

// WithLiveReload injects the live-reload script into rendered HTML.
func WithLiveReload() Option {
	return func(b *Builder) { b.injectReload = true }
}

// Builder is the build orchestrator. Builds are serialized: callers
// may invoke Full and Rebuild from any goroutine but only one build
// cycle runs at a time.
type Builder struct {
	cfg          *config.Config
	rec          metrics.Recorder
	hist         *history.Store
	injectReload bool
	minifier     *assets.Minifier

	buildMu sync.Mutex // serializes build cycles

	mu         sync.RWMutex // guards the published view below
	phase      Phase
	graph      *graph.Graph
	snapshot   *Snapshot
	lastReport *Report
	lastErr    error
}

// New creates a builder for the given configuration.
func New(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:      cfg,
		rec:      metrics.NoopRecorder{},
		phase:    PhaseIdle,
		graph:    graph.New(),
		minifier: assets.NewMinifier(cfg.Build.Minify),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Phase returns the current orchestrator phase.
func (b *Builder) Phase() Phase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.phase
}

func (b *Builder) setPhase(p Phase) {
	b.mu.Lock()
	b.phase = p
	b.mu.Unlock()
}

// Snapshot returns the last published snapshot, nil before the first
// successful build.
func (b *Builder) Snapshot() *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot
}

// LastReport returns the report of the most recent build cycle.
func (b *Builder) LastReport() *Report {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastReport
}

// LastError returns the structural error of the most recent build
// cycle, nil when it published.
func (b *Builder) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

func (b *Builder) workers() int {
	if b.cfg.Build.Workers > 0 {
		return b.cfg.Build.Workers
	}
	return runtime.NumCPU()
}

// Full runs a complete build cycle over the whole source tree.
func (b *Builder) Full(ctx context.Context) (*Report, error) {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	st := &state{
		kind:    KindFull,
		report:  newReport(KindFull),
		graph:   graph.New(),
		snap:    (*Snapshot)(nil).next(""),
		outputs: map[string][]byte{},
	}
	st.snap.ID = st.report.BuildID

	err := b.runStages(ctx, st, []stageDef{
		{stageLoad, PhaseLoading, b.stageLoadFull},
		{stageGraph, PhaseGraphing, b.stageGraphFull},
		{stageRender, PhaseRendering, b.stageRenderFull},
		{stageWrite, PhaseWriting, b.stageWriteFull},
	})
	return b.finishBuild(ctx, st, err)
}

// Rebuild runs an incremental cycle from coalesced changes. Without a
// published snapshot it falls back to a full build.
func (b *Builder) Rebuild(ctx context.Context, changes []Change) (*Report, error) {
	if b.Snapshot() == nil {
		return b.Full(ctx)
	}

	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	b.rec.IncRebuilds()
	b.mu.RLock()
	baseGraph, baseSnap := b.graph, b.snapshot
	b.mu.RUnlock()

	// The cycle mutates a private graph copy; finishBuild commits it
	// alongside the snapshot only when the cycle publishes.
	st := &state{
		kind:    KindIncremental,
		report:  newReport(KindIncremental),
		graph:   baseGraph.Clone(),
		snap:    baseSnap.next(""),
		changes: changes,
		outputs: map[string][]byte{},
	}
	st.snap.ID = st.report.BuildID

	err := b.runStages(ctx, st, []stageDef{
		{stageLoad, PhaseLoading, b.stageLoadIncremental},
		{stageGraph, PhaseGraphing, b.stageGraphIncremental},
		{stageRender, PhaseRendering, b.stageRenderIncremental},
		{stageWrite, PhaseWriting, b.stageWriteIncremental},
	})
	return b.finishBuild(ctx, st, err)
}

// finishBuild closes out a cycle: it finalizes the report, commits the
// snapshot and graph on success, and records history and metrics.
func (b *Builder) finishBuild(ctx context.Context, st *state, buildErr error) (*Report, error) {
	st.report.finish(buildErr != nil)

	b.mu.Lock()
	b.lastReport = st.report
	b.lastErr = buildErr
	if buildErr == nil {
		b.snapshot = st.snap
		b.graph = st.graph
		b.phase = PhasePublished
	} else {
		b.phase = PhaseError
	}
	b.mu.Unlock()

	b.rec.ObserveBuildDuration(st.report.Duration())
	b.rec.IncBuildOutcome(st.report.Outcome)

	if b.hist != nil {
		if err := b.hist.Record(ctx, st.report.historyEntry()); err != nil {
			slog.Warn("failed to record build history", logfields.BuildID(st.report.BuildID), logfields.Error(err))
		}
	}

	logger := slog.Info
	if buildErr != nil {
		logger = slog.Error
	}
	logger("build finished",
		logfields.BuildID(st.report.BuildID),
		logfields.Kind(st.report.Kind),
		slog.String("outcome", st.report.Outcome),
		slog.Int("created", st.report.Created),
		slog.Int("updated", st.report.Updated),
		slog.Int("skipped", st.report.Skipped),
		slog.Int("failed", st.report.Failed),
		logfields.DurationMS(float64(st.report.Duration().Milliseconds())),
		logfields.Error(buildErr))

	return st.report, buildErr
}

// --- full build stages ---

func (b *Builder) stageLoadFull(ctx context.Context, st *state) error {
	loader := content.NewLoader(b.cfg.Paths.Content, b.workers())
	pages, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	for sp, p := range pages {
		if p.Meta.Draft && !b.cfg.Build.Drafts {
			st.report.Skipped++
			continue
		}
		st.snap.Pages[sp] = p
	}

	data, failures := loadData(b.cfg.Paths.Data, b.cfg.Data)
	for _, ferr := range failures {
		if siteerr.IsFatal(ferr) {
			return ferr
		}
		st.fail(errPath(ferr), ferr)
	}
	st.snap.Data = data

	markOutputCollisions(st)
	return nil
}

func (b *Builder) stageGraphFull(ctx context.Context, st *state) error {
	set, err := render.LoadSet(b.cfg.Paths.Templates)
	if err != nil {
		return err
	}
	st.set = set
	st.renderer = render.New(set)

	if err := b.registerTemplates(st); err != nil {
		return err
	}
	for key := range st.snap.Data {
		if err := st.graph.Register(graph.DataRef(key), nil); err != nil {
			return err
		}
	}
	for _, p := range st.snap.Pages {
		if p.IsSection {
			if err := st.graph.Register(graph.SectionRef(p.Section), nil); err != nil {
				return err
			}
		}
	}
	for sp, p := range st.snap.Pages {
		if err := st.graph.Register(graph.PageRef(sp), b.pageDeps(st, p)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) stageRenderFull(ctx context.Context, st *state) error {
	refs := make([]graph.Ref, 0, len(st.snap.Pages))
	for sp := range st.snap.Pages {
		refs = append(refs, graph.PageRef(sp))
	}
	b.renderPages(ctx, st, refs)
	b.renderDerived(ctx, st)
	return ctx.Err()
}

func (b *Builder) stageWriteFull(ctx context.Context, st *state) error {
	st.computeCounts(b.Snapshot())
	return b.publishFull(ctx, st)
}

// --- incremental stages ---

func (b *Builder) stageLoadIncremental(ctx context.Context, st *state) error {
	loader := content.NewLoader(b.cfg.Paths.Content, b.workers())
	cs := b.classifyChanges(st.changes)
	st.classified = cs

	for _, ch := range cs.content {
		b.applyContentChange(st, loader, ch)
	}

	if len(cs.data) > 0 {
		data, failures := loadData(b.cfg.Paths.Data, b.cfg.Data)
		for _, ferr := range failures {
			if siteerr.IsFatal(ferr) {
				return ferr
			}
			st.fail(errPath(ferr), ferr)
		}
		st.snap.Data = data
	}

	if len(cs.content) > 0 {
		markOutputCollisions(st)
	}
	return ctx.Err()
}

func (b *Builder) stageGraphIncremental(ctx context.Context, st *state) error {
	// Templates are one compiled set; any template change reloads it.
	// Reloading unconditionally keeps the set consistent with disk.
	set, err := render.LoadSet(b.cfg.Paths.Templates)
	if err != nil {
		return err
	}
	st.set = set
	st.renderer = render.New(set)
	if len(st.classified.template) > 0 {
		if err := b.registerTemplates(st); err != nil {
			return err
		}
	}

	var seeds []graph.Ref
	for _, ch := range st.classified.template {
		ref := graph.TemplateRef(ch.Path)
		if ch.Op == OpRemoved {
			// Dependents first: the node's edges die with it.
			seeds = append(seeds, st.graph.Invalidate(ref)...)
			st.graph.Remove(ref)
			continue
		}
		if ch.Op == OpCreated {
			// A template that reappears must relink the pages that
			// resolve to it; their edges died when it was removed.
			for sp, p := range st.snap.Pages {
				if render.TemplateFor(p) != ch.Path {
					continue
				}
				if err := st.graph.Register(graph.PageRef(sp), b.pageDeps(st, p)); err != nil {
					return err
				}
			}
		}
		seeds = append(seeds, ref)
	}
	for _, ch := range st.classified.data {
		key := dataKeyFor(ch.Path)
		ref := graph.DataRef(key)
		// Dependents first, as above: a deleted key still rerenders
		// everything that read it.
		seeds = append(seeds, st.graph.Invalidate(ref)...)
		if _, alive := st.snap.Data[key]; !alive {
			st.graph.Remove(ref)
			continue
		}
		if err := st.graph.Register(ref, nil); err != nil {
			return err
		}
		seeds = append(seeds, ref)
	}

	touchedSections := map[string]struct{}{}
	for _, ch := range st.classified.content {
		rel := ch.Path
		p, alive := st.snap.Pages[rel]

		// Collect dependents before any removal drops the edges.
		seeds = append(seeds, st.graph.Invalidate(graph.PageRef(rel))...)

		if !alive {
			st.graph.Remove(graph.PageRef(rel))
			if path.Base(rel) == content.SectionIndexFile {
				st.graph.Remove(graph.SectionRef(sectionDirOf(rel)))
			}
			touchedSections[sectionDirOf(rel)] = struct{}{}
			continue
		}

		if p.IsSection {
			if err := st.graph.Register(graph.SectionRef(p.Section), nil); err != nil {
				return err
			}
			seeds = append(seeds, graph.SectionRef(p.Section))
		}
		if err := st.graph.Register(graph.PageRef(rel), b.pageDeps(st, p)); err != nil {
			return err
		}
		seeds = append(seeds, graph.PageRef(rel))
		touchedSections[p.Section] = struct{}{}
	}

	// Membership of a touched section changed: its index page lists
	// different members now, so refresh its edges and rerender it.
	for section := range touchedSections {
		idx := sectionIndexOf(section)
		sp, ok := st.snap.Pages[idx]
		if !ok {
			continue
		}
		if err := st.graph.Register(graph.PageRef(idx), b.pageDeps(st, sp)); err != nil {
			return err
		}
		seeds = append(seeds, graph.PageRef(idx))
	}

	st.invalidated = st.graph.InvalidateAll(seeds...)
	return ctx.Err()
}

func (b *Builder) stageRenderIncremental(ctx context.Context, st *state) error {
	b.renderPages(ctx, st, st.invalidated)
	if len(st.invalidated) > 0 || len(st.removed) > 0 || len(st.classified.data) > 0 {
		b.renderDerived(ctx, st)
	}
	return ctx.Err()
}

func (b *Builder) stageWriteIncremental(ctx context.Context, st *state) error {
	// Identical bytes need no write; keep the previous file and mtime.
	prev := b.Snapshot()
	for p, data := range st.outputs {
		if old, ok := prev.Outputs[p]; ok && bytes.Equal(old, data) {
			delete(st.outputs, p)
		}
	}

	st.computeCounts(prev)
	if err := b.publishIncremental(ctx, st); err != nil {
		return err
	}
	return b.applyStaticChanges(ctx, st)
}

// applyStaticChanges mirrors individual static file changes into the
// live output tree.
func (b *Builder) applyStaticChanges(ctx context.Context, st *state) error {
	for _, ch := range st.classified.static {
		dst := filepath.Join(b.cfg.Output.Directory, filepath.FromSlash(ch.Path))
		if ch.Op == OpRemoved {
			if err := removeOutputFile(dst, b.cfg.Output.Directory); err != nil {
				return siteerr.WrapStructural(err, siteerr.KindIO, dst, "remove static output")
			}
			continue
		}
		src := filepath.Join(b.cfg.Paths.Static, filepath.FromSlash(ch.Path))
		if info, err := os.Stat(src); err != nil || info.IsDir() {
			continue
		}
		if err := assets.CopyFile(src, dst, b.minifier); err != nil {
			return siteerr.WrapStructural(err, siteerr.KindIO, dst, "copy static output")
		}
	}
	return ctx.Err()
}

// --- state transitions shared by both build kinds ---

// registerTemplates wires template include and data reference edges.
// An include cycle is structural and aborts the cycle.
func (b *Builder) registerTemplates(st *state) error {
	for _, name := range st.set.Names() {
		var deps []graph.Ref
		for _, inc := range st.set.Includes(name) {
			if st.set.Has(inc) && inc != name {
				deps = append(deps, graph.TemplateRef(inc))
			}
		}
		for _, key := range st.set.DataRefs(name) {
			deps = append(deps, graph.DataRef(key))
		}
		if err := st.graph.Register(graph.TemplateRef(name), deps); err != nil {
			return err
		}
	}
	return nil
}

// pageDeps computes the producers a page node depends on: its resolved
// template, its section metadata, and (for section indexes) the member
// pages the listing shows.
func (b *Builder) pageDeps(st *state, p *content.Page) []graph.Ref {
	deps := []graph.Ref{graph.TemplateRef(render.TemplateFor(p))}

	sec := p.Section
	if p.IsSection {
		sec = parentSection(p.Section)
	}
	idx := sectionIndexOf(sec)
	if _, ok := st.snap.Pages[idx]; ok && idx != p.SourcePath {
		deps = append(deps, graph.SectionRef(sec))
	}

	if p.IsSection {
		for _, m := range sectionMembers(st.snap, p.Section) {
			deps = append(deps, graph.PageRef(m.SourcePath))
		}
	}
	return deps
}

// renderPages renders the page nodes in refs on a bounded worker pool.
// A node starts only after every in-set dependency finished, so a
// section index always sees its members' final state.
func (b *Builder) renderPages(ctx context.Context, st *state, refs []graph.Ref) {
	done := make(map[graph.Ref]chan struct{}, len(refs))
	for _, r := range refs {
		done[r] = make(chan struct{})
	}

	sem := make(chan struct{}, b.workers())
	var wg sync.WaitGroup
	for _, r := range refs {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[r])
			for _, dep := range st.graph.Deps(r) {
				if ch, ok := done[dep]; ok {
					<-ch
				}
			}
			if r.Kind != graph.KindPage {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			b.renderPage(ctx, st, r.Path)
		}()
	}
	wg.Wait()
	st.applyResults()
}

// renderPage renders one page node under the per-node timeout. Failure
// marks only this node; siblings keep rendering.
func (b *Builder) renderPage(ctx context.Context, st *state, sourcePath string) {
	p, ok := st.snap.Pages[sourcePath]
	if !ok {
		return
	}
	if p.Status == content.StatusError {
		// Load-stage errors stick until the file itself changes; a
		// previous render failure retries now that its inputs moved.
		switch siteerr.KindOf(p.Err) {
		case siteerr.KindParse, siteerr.KindEncoding:
			st.fail(sourcePath, p.Err)
			b.rec.IncNodeFailure(string(siteerr.KindOf(p.Err)))
			return
		}
	}

	in := render.Input{
		Page:     p,
		Template: render.TemplateFor(p),
		Site:     b.siteContext(st),
		Params:   b.paramsFor(st, p),
	}
	if p.IsSection {
		members := sectionMembers(st.snap, p.Section)
		if p.Section == "" {
			members = allRegularPages(st.snap)
		}
		in.Pages = pageViews(members, b.cfg.Site.BaseURL)
	}

	rctx, cancel := context.WithTimeout(ctx, b.cfg.Build.RenderTimeout)
	defer cancel()
	out, err := st.renderer.Render(rctx, in)
	if err != nil {
		if rctx.Err() != nil && ctx.Err() == nil {
			err = siteerr.Wrap(err, siteerr.KindTimeout, sourcePath, "render timed out")
		}
		st.setResult(sourcePath, content.StatusError, err)
		st.fail(sourcePath, err)
		b.rec.IncNodeFailure(string(siteerr.KindOf(err)))
		return
	}

	st.addOutput(p.OutputPath(), b.finalize(p.OutputPath(), out))
	st.setResult(sourcePath, content.StatusRendered, nil)
	b.rec.AddPagesRendered(1)
}

// siteContext builds the .Site value templates see.
func (b *Builder) siteContext(st *state) render.SiteContext {
	return render.SiteContext{
		Title:       b.cfg.Site.Title,
		BaseURL:     b.cfg.Site.BaseURL,
		Description: b.cfg.Site.Description,
		Author:      b.cfg.Site.Author,
		Language:    b.cfg.Site.Language,
		Data:        st.snap.Data,
	}
}

// paramsFor resolves the page's parameter chain: page front matter,
// then the enclosing section's front matter, then site data.
func (b *Builder) paramsFor(st *state, p *content.Page) render.Chain {
	sec := p.Section
	if p.IsSection {
		sec = parentSection(p.Section)
	}
	var sectionExtra map[string]any
	if idx, ok := st.snap.Pages[sectionIndexOf(sec)]; ok && idx.SourcePath != p.SourcePath {
		sectionExtra = idx.Meta.Extra
	}
	return render.NewChain(p.Meta.Extra, sectionExtra, st.snap.Data)
}

// finalize applies serving-mode HTML injection and minification.
func (b *Builder) finalize(outputPath string, data []byte) []byte {
	if b.injectReload && strings.HasSuffix(outputPath, ".html") {
		data = injectLiveReload(data)
	}
	return b.minifier.Bytes(assets.MediaTypeFor(outputPath), data)
}

const liveReloadTag = `<script src="/livereload.js" defer></script>`

// injectLiveReload inserts the live-reload script before the closing
// body tag, or appends it when the document has none.
func injectLiveReload(doc []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if idx < 0 {
		return append(doc, []byte(liveReloadTag)...)
	}
	out := make([]byte, 0, len(doc)+len(liveReloadTag))
	out = append(out, doc[:idx]...)
	out = append(out, liveReloadTag...)
	out = append(out, doc[idx:]...)
	return out
}

// --- incremental change bookkeeping ---

type changeSet struct {
	content  []Change // Path rewritten to canonical content-relative
	template []Change // Path rewritten to template name
	data     []Change // Path rewritten to data-dir-relative
	static   []Change // Path rewritten to static-dir-relative
}

// classifyChanges buckets absolute change paths by source root.
// Changes outside every root are ignored.
func (b *Builder) classifyChanges(changes []Change) changeSet {
	var cs changeSet
	for _, ch := range changes {
		switch {
		case underRoot(b.cfg.Paths.Content, ch.Path):
			rel := relSlash(b.cfg.Paths.Content, ch.Path)
			if strings.EqualFold(path.Ext(rel), ".md") {
				cs.content = append(cs.content, Change{Path: rel, Op: ch.Op})
			}
		case underRoot(b.cfg.Paths.Templates, ch.Path):
			rel := relSlash(b.cfg.Paths.Templates, ch.Path)
			if strings.HasSuffix(rel, ".html") {
				cs.template = append(cs.template, Change{Path: rel, Op: ch.Op})
			}
		case underRoot(b.cfg.Paths.Data, ch.Path):
			cs.data = append(cs.data, Change{Path: relSlash(b.cfg.Paths.Data, ch.Path), Op: ch.Op})
		case underRoot(b.cfg.Paths.Static, ch.Path):
			cs.static = append(cs.static, Change{Path: relSlash(b.cfg.Paths.Static, ch.Path), Op: ch.Op})
		default:
			slog.Debug("ignoring change outside watched roots", logfields.Path(ch.Path))
		}
	}
	return cs
}

// applyContentChange updates the snapshot's page set for one content
// file change. Removal (and a page turning draft) drops the page and
// schedules its output for deletion.
func (b *Builder) applyContentChange(st *state, loader *content.Loader, ch Change) {
	rel := ch.Path
	drop := func() {
		if old, ok := st.snap.Pages[rel]; ok {
			delete(st.snap.Pages, rel)
			out := old.OutputPath()
			st.removed = append(st.removed, out)
			delete(st.snap.Outputs, out)
		}
	}

	if ch.Op == OpRemoved {
		drop()
		return
	}

	p := loader.ParseFile(rel)
	if p.Status != content.StatusError && p.Meta.Draft && !b.cfg.Build.Drafts {
		drop()
		st.report.Skipped++
		return
	}
	if old, ok := st.snap.Pages[rel]; ok && old.OutputPath() != p.OutputPath() {
		// Slug change moves the output; the old location goes away.
		out := old.OutputPath()
		st.removed = append(st.removed, out)
		delete(st.snap.Outputs, out)
	}
	st.snap.Pages[rel] = p
}

// markOutputCollisions fails every page whose output path is already
// claimed by an earlier page (by source path order), so one output
// file never flips between two nodes depending on iteration order.
func markOutputCollisions(st *state) {
	sources := make([]string, 0, len(st.snap.Pages))
	for sp := range st.snap.Pages {
		sources = append(sources, sp)
	}
	sort.Strings(sources)

	claimed := map[string]string{}
	for _, sp := range sources {
		p := st.snap.Pages[sp]
		if p.Status == content.StatusError {
			continue
		}
		out := p.OutputPath()
		owner, taken := claimed[out]
		if !taken {
			claimed[out] = sp
			continue
		}
		np := *p
		np.Status = content.StatusError
		np.Err = siteerr.New(siteerr.KindParse, sp, "output path "+out+" already produced by "+owner)
		st.snap.Pages[sp] = &np
	}
}

// computeCounts fills the created/updated/skipped counters by
// comparing this cycle's outputs against the published snapshot.
func (st *state) computeCounts(prev *Snapshot) {
	for p, data := range st.outputs {
		if prev == nil {
			st.report.Created++
			continue
		}
		old, ok := prev.Outputs[p]
		switch {
		case !ok:
			st.report.Created++
		case !bytes.Equal(old, data):
			st.report.Updated++
		default:
			st.report.Skipped++
		}
	}
	// Outputs carried over from the previous snapshot untouched.
	for p := range st.snap.Outputs {
		if _, produced := st.outputs[p]; !produced {
			st.report.Skipped++
		}
	}
}

// --- small path helpers ---

func underRoot(root, p string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func relSlash(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// sectionIndexOf returns the canonical source path of a section's
// index page.
func sectionIndexOf(section string) string {
	if section == "" {
		return content.SectionIndexFile
	}
	return section + "/" + content.SectionIndexFile
}

// sectionDirOf returns the section a canonical content path lives in.
func sectionDirOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// parentSection returns the enclosing section of a section path.
func parentSection(section string) string {
	if section == "" {
		return ""
	}
	dir := path.Dir(section)
	if dir == "." {
		return ""
	}
	return dir
}

func sectionMembers(snap *Snapshot, section string) []*content.Page {
	var members []*content.Page
	for _, p := range snap.Pages {
		if p.IsSection || p.Status == content.StatusError {
			continue
		}
		if p.Section == section {
			members = append(members, p)
		}
	}
	sortPages(members)
	return members
}

func allRegularPages(snap *Snapshot) []*content.Page {
	var pages []*content.Page
	for _, p := range snap.Pages {
		if p.IsSection || p.Status == content.StatusError {
			continue
		}
		pages = append(pages, p)
	}
	sortPages(pages)
	return pages
}

func errPath(err error) string {
	if se, ok := err.(*siteerr.Error); ok {
		return se.Path
	}
	return ""
}
