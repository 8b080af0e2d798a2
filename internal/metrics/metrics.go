package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder captures photobooth pipeline metrics.
type Recorder interface {
	ObserveGeneration(outcome string, durationSeconds float64)
	ObserveDownload(status string)
	ObserveSweep(policy string, removed int, err error)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveGeneration(string, float64)  {}
func (Noop) ObserveDownload(string)             {}
func (Noop) ObserveSweep(string, int, error)    {}

// Prom implements Recorder backed by a private Prometheus registry.
type Prom struct {
	registry           *prometheus.Registry
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	downloads          *prometheus.CounterVec
	sweeps             *prometheus.CounterVec
	swept              *prometheus.CounterVec
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by outcome",
		}, []string{"outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "End-to-end generation pipeline latency",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Artifact downloads by status",
		}, []string{"status"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_sweeps_total",
			Help:      "Retention passes by policy and result",
		}, []string{"policy", "result"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_swept_total",
			Help:      "Artifacts deleted by the retention policy",
		}, []string{"policy"}),
	}
	p.registry.MustRegister(
		p.generations,
		p.generationDuration,
		p.downloads,
		p.sweeps,
		p.swept,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) ObserveGeneration(outcome string, durationSeconds float64) {
	p.generations.WithLabelValues(outcome).Inc()
	p.generationDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

func (p *Prom) ObserveDownload(status string) {
	p.downloads.WithLabelValues(status).Inc()
}

func (p *Prom) ObserveSweep(policy string, removed int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.sweeps.WithLabelValues(policy, result).Inc()
	if removed > 0 {
		p.swept.WithLabelValues(policy).Add(float64(removed))
	}
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry returns the underlying registry.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}
