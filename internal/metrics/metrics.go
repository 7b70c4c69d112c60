// Package metrics exposes pipeline run statistics as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/valpere/docpipe/internal/pipeline"
)

// Collector implements pipeline.Observer on a private registry, so several
// pipelines in one process do not collide.
type Collector struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	documents     *prometheus.CounterVec
	docDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	lastRun       prometheus.Gauge
	lastRunDocs   *prometheus.GaugeVec
}

var _ pipeline.Observer = (*Collector)(nil)

func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_runs_total",
				Help: "Pipeline runs by outcome.",
			},
			[]string{"status"},
		),
		documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docpipe_documents_total",
				Help: "Documents processed by outcome.",
			},
			[]string{"status"},
		),
		docDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docpipe_document_duration_seconds",
				Help:    "Time spent on one document across all stages.",
				Buckets: prometheus.DefBuckets,
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docpipe_stage_duration_seconds",
				Help:    "Time one stage spent on one document.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docpipe_last_run_timestamp_seconds",
				Help: "Unix time the last run finished.",
			},
		),
		lastRunDocs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "docpipe_last_run_documents",
				Help: "Documents in the last run by outcome.",
			},
			[]string{"status"},
		),
	}
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RunStarted(context.Context, pipeline.RunInfo) {}

func (c *Collector) DocumentProcessed(_ context.Context, _ pipeline.RunInfo, res pipeline.DocumentResult) {
	status := "succeeded"
	if !res.OK() {
		status = "failed"
	}
	c.documents.WithLabelValues(status).Inc()
	c.docDuration.Observe(res.Duration.Seconds())
	for _, st := range res.Stages {
		c.stageDuration.WithLabelValues(st.Stage).Observe(st.Duration.Seconds())
	}
}

func (c *Collector) RunFinished(_ context.Context, report *pipeline.Report) {
	status := "succeeded"
	if report.Err != nil {
		status = "failed"
	}
	c.runs.WithLabelValues(status).Inc()
	c.lastRun.Set(float64(report.FinishedAt.Unix()))
	c.lastRunDocs.WithLabelValues("succeeded").Set(float64(report.Succeeded))
	c.lastRunDocs.WithLabelValues("failed").Set(float64(report.Failed))
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
