package paymetrics

import (
	"time"

	"github.com/kaleidoswap/desktop-app-sub002/target"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "payengine"

// PrometheusRecorder exports engine events as Prometheus metrics.
type PrometheusRecorder struct {
	classifications *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	polls           *prometheus.CounterVec
	quotes          *prometheus.HistogramVec
}

// Compile-time check that PrometheusRecorder implements Recorder.
var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder,
	error) {

	p := &PrometheusRecorder{
		classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Classified payment targets by kind",
			},
			[]string{"kind"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Payment attempts by rail and final state",
			},
			[]string{"rail", "state"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Payment status polls sent to the node",
			},
			[]string{"rail"},
		),
		quotes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quote_seconds",
				Help:      "Fee quote latency by rail",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"rail"},
		),
	}

	collectors := []prometheus.Collector{
		p.classifications, p.attempts, p.polls, p.quotes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *PrometheusRecorder) ObserveClassification(kind target.Kind) {
	p.classifications.WithLabelValues(kind.String()).Inc()
}

func (p *PrometheusRecorder) ObserveAttempt(rail target.Rail, state string) {
	p.attempts.WithLabelValues(rail.String(), state).Inc()
}

func (p *PrometheusRecorder) ObservePoll(rail target.Rail) {
	p.polls.WithLabelValues(rail.String()).Inc()
}

func (p *PrometheusRecorder) ObserveQuote(rail target.Rail, d time.Duration) {
	p.quotes.WithLabelValues(rail.String()).Observe(d.Seconds())
}
