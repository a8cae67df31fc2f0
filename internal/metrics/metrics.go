// Package metrics exports measurement session activity as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/spoke-tension/measure/session"
)

const namespace = "spoketension"

// Metrics holds the session collectors.
type Metrics struct {
	registry *prometheus.Registry

	capturing        prometheus.Gauge
	runs             prometheus.Counter
	frames           prometheus.Counter
	reliable         prometheus.Counter
	captureErrors    *prometheus.CounterVec
	tensionNewton    prometheus.Gauge
	peakFrequency    prometheus.Gauge
	peakAmplitude    prometheus.Gauge
	reliabilityScore prometheus.Gauge
	windowFrames     prometheus.Gauge
	shapeMismatches  prometheus.Gauge

	mu sync.Mutex
	// lastReliable tracks the reliability edge per run.
	lastReliable bool
}

// New registers the collectors on a fresh registry that also carries the
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		capturing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capturing",
			Help:      "1 while a measurement run is capturing audio",
		}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Measurement runs started",
		}),
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Spectrum frames processed",
		}),
		reliable: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reliable_readings_total",
			Help:      "Transitions from unreliable to reliable readings",
		}),
		captureErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Capture failures by kind",
		}, []string{"kind"}),
		tensionNewton: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tension_newtons",
			Help:      "Latest tension estimate in newtons",
		}),
		peakFrequency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_frequency_hz",
			Help:      "Frequency of the averaged spectrum peak",
		}),
		peakAmplitude: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_amplitude_db",
			Help:      "Amplitude of the averaged spectrum peak",
		}),
		reliabilityScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reliability_score",
			Help:      "Peak z-score of the latest reading",
		}),
		windowFrames: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_frames",
			Help:      "Frames inside the averaging window",
		}),
		shapeMismatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shape_mismatches",
			Help:      "Frames averaged with a bin count different from the window's oldest frame",
		}),
	}
}

// Observe records one session event. It is a session subscriber.
func (m *Metrics) Observe(ev session.Event) {
	switch {
	case ev.Update != nil:
		u := ev.Update
		m.frames.Inc()
		m.tensionNewton.Set(u.TensionNewton)
		m.peakFrequency.Set(u.PeakFrequencyHz)
		m.peakAmplitude.Set(u.PeakAmplitudeDB)
		m.reliabilityScore.Set(u.ReliabilityScore)
		m.windowFrames.Set(float64(u.Frames))
		m.shapeMismatches.Set(float64(u.ShapeMismatches))

		m.mu.Lock()
		rising := u.IsReliable && !m.lastReliable
		m.lastReliable = u.IsReliable
		m.mu.Unlock()
		if rising {
			m.reliable.Inc()
		}

	case ev.Err != nil:
		m.captureErrors.WithLabelValues(ev.Err.Kind.String()).Inc()

	case ev.Status != nil:
		m.mu.Lock()
		m.lastReliable = false
		m.mu.Unlock()

		if ev.Status.State == session.StateCapturing {
			m.capturing.Set(1)
			m.runs.Inc()
			return
		}
		m.capturing.Set(0)
		m.windowFrames.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
