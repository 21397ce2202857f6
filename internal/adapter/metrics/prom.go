package metrics

import (
	"errors"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "statesync"

const (
	RESULT_OK        = "ok"
	RESULT_ERROR     = "error"
	RESULT_IN_FLIGHT = "in_flight"
)

// PromInstrument exports poll, diagnostic and sink metrics.
type PromInstrument struct {
	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	diagnostics  *prometheus.CounterVec
	connected    *prometheus.GaugeVec
	sinkWrites   *prometheus.CounterVec
}

// ensure interface compliance
var _ port.PollInstrument = (*PromInstrument)(nil)

func NewPromInstrument(reg prometheus.Registerer) *PromInstrument {
	p := &PromInstrument{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Polls per integration instance and result",
		}, []string{"instance", "result"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of remote fetches",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"instance"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Recovered data-shape anomalies",
		}, []string{"instance", "kind"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integration_connected",
			Help:      "1 while the integration instance is connected",
		}, []string{"instance"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Reading writes per sink and result",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(p.polls, p.pollDuration, p.diagnostics, p.connected, p.sinkWrites)
	return p
}

func (p *PromInstrument) ObservePoll(instanceId string, duration time.Duration, err error) {
	switch {
	case err == nil:
		p.polls.WithLabelValues(instanceId, RESULT_OK).Inc()
	case errors.Is(err, domain.ErrPollInFlight):
		p.polls.WithLabelValues(instanceId, RESULT_IN_FLIGHT).Inc()
		return
	default:
		p.polls.WithLabelValues(instanceId, RESULT_ERROR).Inc()
	}
	p.pollDuration.WithLabelValues(instanceId).Observe(duration.Seconds())
}

func (p *PromInstrument) ObserveDiagnostic(instanceId, kind string) {
	p.diagnostics.WithLabelValues(instanceId, kind).Inc()
}

func (p *PromInstrument) SetConnected(instanceId string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	p.connected.WithLabelValues(instanceId).Set(v)
}

func (p *PromInstrument) ObserveSinkWrite(sink string, err error) {
	result := RESULT_OK
	if err != nil {
		result = RESULT_ERROR
	}
	p.sinkWrites.WithLabelValues(sink, result).Inc()
}
