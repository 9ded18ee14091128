package adapter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

// PrometheusObserver exports handshakes as Prometheus metrics.
type PrometheusObserver struct {
	stage    *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver registers the handshake metrics with reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		stage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vsoc",
			Subsystem: "e2e",
			Name:      "stage",
			Help:      "Last stage published by a side on a region.",
		}, []string{"region", "side"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsoc",
			Subsystem: "e2e",
			Name:      "runs_total",
			Help:      "Finished handshake runs by result.",
		}, []string{"region", "side", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vsoc",
			Subsystem: "e2e",
			Name:      "run_duration_seconds",
			Help:      "Duration of handshake runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"region", "side"}),
	}
	for _, c := range []prometheus.Collector{o.stage, o.runs, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) StageChanged(region string, side layout.Side, stage layout.Stage) {
	o.stage.WithLabelValues(region, side.String()).Set(float64(stage))
}

func (o *PrometheusObserver) RunFinished(region string, side layout.Side, elapsed time.Duration, err error) {
	o.runs.WithLabelValues(region, side.String(), ResultLabel(err)).Inc()
	o.duration.WithLabelValues(region, side.String()).Observe(elapsed.Seconds())
}
