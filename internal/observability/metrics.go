package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SynthRequests     *prometheus.CounterVec
	SynthDuration     prometheus.Histogram
	EngineErrors      *prometheus.CounterVec
	AudioBytesWritten prometheus.Counter
	DubCuesProcessed  prometheus.Counter
	ActiveDubJobs     prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SynthRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synth_requests_total",
			Help:      "Synthesis requests by outcome.",
		}, []string{"outcome"}),
		SynthDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synth_duration_seconds",
			Help:      "Wall time of successful synthesis requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Engine failures by stage.",
		}, []string{"stage"}),
		AudioBytesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_written_total",
			Help:      "PCM bytes written to output files.",
		}),
		DubCuesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dub_cues_processed_total",
			Help:      "Subtitle cues synthesized by the dubbing pipeline.",
		}),
		ActiveDubJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_dub_jobs",
			Help:      "Dubbing jobs currently running.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
