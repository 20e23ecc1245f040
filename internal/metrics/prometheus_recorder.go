package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	buildDuration   prom.Histogram
	stageDuration   *prom.HistogramVec
	buildOutcome    *prom.CounterVec
	pagesRendered   prom.Counter
	nodeFailures    *prom.CounterVec
	rebuilds        prom.Counter
	reloadClients   prom.Gauge
	reloadBroadcast prom.Counter
}

// NewPrometheusRecorder constructs and registers the pipeline metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		pagesRendered: prom.NewCounter(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "pages_rendered_total",
			Help:      "Pages rendered across all builds",
		}),
		nodeFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "node_failures_total",
			Help:      "Per-node failures by error kind",
		}, []string{"kind"}),
		rebuilds: prom.NewCounter(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "incremental_rebuilds_total",
			Help:      "Incremental rebuilds triggered by the watcher",
		}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitegen",
			Name:      "livereload_clients",
			Help:      "Currently connected live-reload clients",
		}),
		reloadBroadcast: prom.NewCounter(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "livereload_broadcasts_total",
			Help:      "Live-reload events broadcast to clients",
		}),
	}
	reg.MustRegister(
		pr.buildDuration, pr.stageDuration, pr.buildOutcome, pr.pagesRendered,
		pr.nodeFailures, pr.rebuilds, pr.reloadClients, pr.reloadBroadcast,
	)
	return pr
}

// Handler returns the /metrics HTTP handler for the recorder registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddPagesRendered(n int) {
	p.pagesRendered.Add(float64(n))
}

func (p *PrometheusRecorder) IncNodeFailure(kind string) {
	p.nodeFailures.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncRebuilds() { p.rebuilds.Inc() }

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	p.reloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncLiveReloadBroadcasts() { p.reloadBroadcast.Inc() }
