// Package metrics exposes sync pass results as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/notesync/internal/syncer"
)

const namespace = "notesync"

// Metrics owns a private registry so one-shot runs can dump it to a textfile.
type Metrics struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	documents     *prometheus.CounterVec
	transcripts   *prometheus.CounterVec
	duration      prometheus.Histogram
	lastRun       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	watermark     prometheus.Gauge
	vaultNotes    prometheus.Gauge
	lastProcessed prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total", Help: "Sync passes by final status.",
		}, []string{"status"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_total", Help: "Documents by outcome.",
		}, []string{"outcome"}),
		transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transcripts_total", Help: "Transcript fetches by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds", Help: "Duration of sync passes.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds", Help: "Start time of the last pass.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds", Help: "Start time of the last successful pass.",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "watermark_timestamp_seconds", Help: "Current sync watermark.",
		}),
		vaultNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "vault_notes", Help: "Markdown notes in the vault after the last pass.",
		}),
		lastProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_documents_processed", Help: "Documents processed by the last pass.",
		}),
	}
	m.registry.MustRegister(m.runs, m.documents, m.transcripts, m.duration,
		m.lastRun, m.lastSuccess, m.watermark, m.vaultNotes, m.lastProcessed)
	return m
}

// Observe folds a pass result into the metrics.
func (m *Metrics) Observe(res *syncer.Result) {
	if res == nil {
		return
	}
	st := res.Stats
	status := "succeeded"
	if !res.Success() {
		status = "failed"
	}
	m.runs.WithLabelValues(status).Inc()
	m.documents.WithLabelValues("created").Add(float64(st.Created))
	m.documents.WithLabelValues("updated").Add(float64(st.Updated))
	m.documents.WithLabelValues("skipped").Add(float64(st.Skipped))
	m.documents.WithLabelValues("failed").Add(float64(st.Failed))
	m.transcripts.WithLabelValues("fetched").Add(float64(st.TranscriptsFetched))
	m.transcripts.WithLabelValues("failed").Add(float64(st.TranscriptsFailed))
	m.duration.Observe(st.Duration.Seconds())
	m.lastRun.Set(float64(st.StartedAt.Unix()))
	m.lastProcessed.Set(float64(st.Processed))
	m.vaultNotes.Set(float64(res.TotalFiles))
	if res.Success() {
		m.lastSuccess.Set(float64(st.StartedAt.Unix()))
	}
	if !res.Watermark.IsZero() {
		m.watermark.Set(float64(res.Watermark.Unix()))
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the registry for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
