// Package metrics defines observability hooks for the build pipeline.
package metrics

import "time"

// Recorder defines the hooks emitted by the orchestrator, watcher, and
// dev server. All methods must be cheap and non-blocking; the
// NoopRecorder makes injection optional.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	IncBuildOutcome(outcome string) // success|failed|canceled
	AddPagesRendered(n int)
	IncNodeFailure(kind string)
	IncRebuilds()
	SetLiveReloadClients(n int)
	IncLiveReloadBroadcasts()
}

// NoopRecorder is the default Recorder when metrics are not configured.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)          {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration)  {}
func (NoopRecorder) IncBuildOutcome(string)                      {}
func (NoopRecorder) AddPagesRendered(int)                        {}
func (NoopRecorder) IncNodeFailure(string)                       {}
func (NoopRecorder) IncRebuilds()                                {}
func (NoopRecorder) SetLiveReloadClients(int)                    {}
func (NoopRecorder) IncLiveReloadBroadcasts()                    {}
