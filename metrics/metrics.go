// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics.
type Metrics struct {
	registry *prometheus.Registry

	FramesCaptured  prometheus.Counter
	FramesProcessed prometheus.Counter
	FramesDropped   prometheus.Counter
	CaptureErrors   prometheus.Counter

	InferLatency   prometheus.Histogram
	SegmentLatency prometheus.Histogram
	RenderLatency  prometheus.Histogram

	ContoursPerFrame prometheus.Gauge
	ProviderUp       *prometheus.GaugeVec
}

// New builds and registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthcam_frames_captured_total",
			Help: "Frames successfully read from the capture device.",
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthcam_frames_processed_total",
			Help: "Frames that completed the full depth pipeline.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthcam_frames_dropped_total",
			Help: "Frames dropped because the pipeline was busy.",
		}),
		CaptureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depthcam_capture_errors_total",
			Help: "Failed or invalid reads from the capture device.",
		}),
		InferLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depthcam_infer_seconds",
			Help:    "Depth network forward pass latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		SegmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depthcam_segment_seconds",
			Help:    "Threshold and contour extraction latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		RenderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depthcam_render_seconds",
			Help:    "Overlay drawing and display latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ContoursPerFrame: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depthcam_contours",
			Help: "Contours extracted from the most recent frame.",
		}),
		ProviderUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthcam_provider_up",
			Help: "Active inference provider (1 for the provider in use).",
		}, []string{"provider"}),
	}

	reg.MustRegister(
		m.FramesCaptured, m.FramesProcessed, m.FramesDropped, m.CaptureErrors,
		m.InferLatency, m.SegmentLatency, m.RenderLatency,
		m.ContoursPerFrame, m.ProviderUp,
	)
	return m
}

// ObserveInfer records one inference duration.
func (m *Metrics) ObserveInfer(d time.Duration) { m.InferLatency.Observe(d.Seconds()) }

// ObserveSegment records one segmentation duration.
func (m *Metrics) ObserveSegment(d time.Duration) { m.SegmentLatency.Observe(d.Seconds()) }

// ObserveRender records one render duration.
func (m *Metrics) ObserveRender(d time.Duration) { m.RenderLatency.Observe(d.Seconds()) }

// SetProvider marks which provider is serving inference.
func (m *Metrics) SetProvider(name string) {
	m.ProviderUp.Reset()
	m.ProviderUp.WithLabelValues(name).Set(1)
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
