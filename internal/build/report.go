package build

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegen/internal/history"
	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// Phase tracks where the orchestrator is in a build cycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseGraphing  Phase = "graphing"
	PhaseRendering Phase = "rendering"
	PhaseWriting   Phase = "writing"
	PhasePublished Phase = "published"
	PhaseError     Phase = "error"
)

// Build kinds.
const (
	KindFull        = "full"
	KindIncremental = "incremental"
)

// Build outcomes.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Failure is one per-node failure in a build report.
type Failure struct {
	Path    string       `json:"path"`
	Kind    siteerr.Kind `json:"kind"`
	Message string       `json:"message"`
}

// Report summarizes one build cycle.
type Report struct {
	BuildID  string    `json:"build_id"`
	Kind     string    `json:"kind"`
	Outcome  string    `json:"outcome"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	Failures       []Failure                `json:"failures,omitempty"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
}

func newReport(kind string) *Report {
	return &Report{
		BuildID:        uuid.NewString(),
		Kind:           kind,
		Started:        time.Now(),
		StageDurations: map[string]time.Duration{},
	}
}

func (r *Report) addFailure(path string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{
		Path:    path,
		Kind:    siteerr.KindOf(err),
		Message: err.Error(),
	})
}

// finish stamps the end time and derives the outcome. A structural
// abort forces OutcomeFailed regardless of per-node counts.
func (r *Report) finish(aborted bool) {
	r.Finished = time.Now()
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Path < r.Failures[j].Path })
	switch {
	case aborted:
		r.Outcome = OutcomeFailed
	case r.Failed == 0:
		r.Outcome = OutcomeSuccess
	case r.Created+r.Updated+r.Skipped > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeFailed
	}
}

// Duration is the wall time of the build cycle.
func (r *Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

func (r *Report) historyEntry() history.Entry {
	doc, _ := json.Marshal(r)
	return history.Entry{
		BuildID:  r.BuildID,
		Kind:     r.Kind,
		Outcome:  r.Outcome,
		Started:  r.Started,
		Finished: r.Finished,
		Created:  r.Created,
		Updated:  r.Updated,
		Skipped:  r.Skipped,
		Failed:   r.Failed,
		Report:   doc,
	}
}
