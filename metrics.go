package wsnotify

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes client activity.
type Metrics interface {
	StateChanged(state ConnectionState)
	ReconnectScheduled(attempt int, delay time.Duration)
	EnvelopeReceived(kind EnvelopeKind)
	SendDropped(reason string)
	DecodeFailed()
}

const (
	dropReasonNotOpen    = "not_open"
	dropReasonBufferFull = "buffer_full"
	dropReasonEncode     = "encode"
)

type noopMetrics struct{}

func (noopMetrics) StateChanged(ConnectionState)          {}
func (noopMetrics) ReconnectScheduled(int, time.Duration) {}
func (noopMetrics) EnvelopeReceived(EnvelopeKind)         {}
func (noopMetrics) SendDropped(string)                    {}
func (noopMetrics) DecodeFailed()                         {}

// PrometheusMetrics exports client activity as Prometheus collectors.
type PrometheusMetrics struct {
	state        prometheus.Gauge
	reconnects   prometheus.Counter
	backoff      prometheus.Histogram
	envelopes    *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	decodeErrors prometheus.Counter
}

// NewPrometheusMetrics builds and registers the collectors under namespace.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=disconnected, 1=connecting, 2=open, 3=closing).",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Number of reconnection attempts scheduled.",
		}),
		backoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay applied before reconnection attempts.",
			Buckets:   []float64{1, 2, 4, 8, 16, 30, 60},
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Inbound envelopes by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Outbound messages dropped by reason.",
		}, []string{"reason"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
	}

	for _, c := range []prometheus.Collector{m.state, m.reconnects, m.backoff, m.envelopes, m.dropped, m.decodeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "cannot register client metrics")
		}
	}

	return m, nil
}

func (m *PrometheusMetrics) StateChanged(state ConnectionState) {
	m.state.Set(float64(state))
}

func (m *PrometheusMetrics) ReconnectScheduled(_ int, delay time.Duration) {
	m.reconnects.Inc()
	m.backoff.Observe(delay.Seconds())
}

func (m *PrometheusMetrics) EnvelopeReceived(kind EnvelopeKind) {
	switch kind {
	case KindConnected, KindPong, KindSubscribed, KindError, KindNotification:
		m.envelopes.WithLabelValues(string(kind)).Inc()
	default:
		m.envelopes.WithLabelValues("unknown").Inc()
	}
}

func (m *PrometheusMetrics) SendDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) DecodeFailed() {
	m.decodeErrors.Inc()
}
