// Package observability bundles the Prometheus metrics and OpenTelemetry
// tracing wiring for the sensor link and the ingestion pipeline.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlaunch/launchmon/model"
)

// Collector bundles the module's Prometheus metrics. A nil *Collector
// is valid and records nothing, so instrumented code never has to
// nil-check individual metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	ShotsDecoded      prometheus.Counter
	DecodeFailures    prometheus.Counter
	ShotsRejected     *prometheus.CounterVec
	ShotsSimulated    prometheus.Counter
	SimulateDuration  prometheus.Histogram
	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
}

// NewCollector registers the module's metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registration of identical collectors is tolerated so tests can
// build collectors repeatedly.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	decoded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensor_shots_decoded_total",
		Help: "Shot messages decoded from the sensor stream.",
	}))
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensor_decode_failures_total",
		Help: "Messages that framed correctly but failed to decode.",
	}))
	if err != nil {
		return nil, err
	}
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shots_rejected_total",
		Help: "Shots rejected before simulation, labeled by reason.",
	}, []string{"reason"})
	rejected, err = registerCounterVec(reg, rejected)
	if err != nil {
		return nil, err
	}
	simulated, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shots_simulated_total",
		Help: "Shots accepted and run through the trajectory simulator.",
	}))
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "simulate_duration_seconds",
		Help:    "Trajectory simulation latency in seconds.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}))
	if err != nil {
		return nil, err
	}
	connState, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensor_connection_state",
		Help: "Current connection state as its enum value.",
	}))
	if err != nil {
		return nil, err
	}
	reconnects, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensor_reconnect_attempts_total",
		Help: "Reconnect attempts made after unexpected disconnects.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		ShotsDecoded:      decoded,
		DecodeFailures:    failures,
		ShotsRejected:     rejected,
		ShotsSimulated:    simulated,
		SimulateDuration:  duration,
		ConnectionState:   connState,
		ReconnectAttempts: reconnects,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordShotDecoded counts one decoded shot message.
func (c *Collector) RecordShotDecoded() {
	if c != nil {
		c.ShotsDecoded.Inc()
	}
}

// RecordDecodeFailure counts one dropped malformed message.
func (c *Collector) RecordDecodeFailure() {
	if c != nil {
		c.DecodeFailures.Inc()
	}
}

// RecordRejection counts one validation rejection by reason.
func (c *Collector) RecordRejection(reason string) {
	if c != nil {
		c.ShotsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordSimulation counts one completed simulation and its latency.
func (c *Collector) RecordSimulation(seconds float64) {
	if c != nil {
		c.ShotsSimulated.Inc()
		c.SimulateDuration.Observe(seconds)
	}
}

// RecordConnectionState publishes the current session state.
func (c *Collector) RecordConnectionState(state model.ConnectionState) {
	if c != nil {
		c.ConnectionState.Set(float64(state))
	}
}

// RecordReconnectAttempt counts one reconnect attempt.
func (c *Collector) RecordReconnectAttempt() {
	if c != nil {
		c.ReconnectAttempts.Inc()
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return gauge, nil
}
