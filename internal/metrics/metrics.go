// Package metrics counts cache lookups, synthesis runs and model downloads
// for one narrate invocation. narrate is a batch tool, so the registry is
// written to a node-exporter textfile instead of being scraped.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements tts.Recorder and assets.Recorder.
type Metrics struct {
	registry *prometheus.Registry
	logger   *log.Logger

	cacheLookups      *prometheus.CounterVec
	synthesisDuration prometheus.Histogram
	synthesisFailures prometheus.Counter
	downloadedBytes   *prometheus.CounterVec
}

// New creates the metrics on a private registry.
func New(logger *log.Logger) *Metrics {
	if logger == nil {
		logger = log.Default()
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "narrate",
				Name:      "cache_lookups_total",
				Help:      "Narration cache lookups by result.",
			},
			[]string{"result"}, // hit, miss
		),

		synthesisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "narrate",
				Name:      "synthesis_duration_seconds",
				Help:      "Time spent in the synthesis engine per narration.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		synthesisFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "narrate",
				Name:      "synthesis_failures_total",
				Help:      "Synthesis engine calls that returned an error.",
			},
		),

		downloadedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "narrate",
				Name:      "model_download_bytes_total",
				Help:      "Bytes downloaded per model file.",
			},
			[]string{"file"},
		),
	}

	m.registry.MustRegister(
		m.cacheLookups,
		m.synthesisDuration,
		m.synthesisFailures,
		m.downloadedBytes,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CacheLookup counts one store lookup.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Synthesis records one engine call.
func (m *Metrics) Synthesis(elapsed time.Duration, err error) {
	if err != nil {
		m.synthesisFailures.Inc()
		return
	}
	m.synthesisDuration.Observe(elapsed.Seconds())
}

// Downloaded counts bytes fetched for a model file.
func (m *Metrics) Downloaded(name string, bytes int64) {
	m.downloadedBytes.WithLabelValues(name).Add(float64(bytes))
}

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically, as the textfile collector expects.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics: empty textfile path")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	m.logger.Debug("Wrote metrics", "path", path)
	return nil
}
