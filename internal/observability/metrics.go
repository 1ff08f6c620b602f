// Package observability exposes flight metrics to Prometheus and flight spans to
// OpenTelemetry.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/mocap-flight/internal/flight"
	"github.com/roman-kulish/mocap-flight/internal/posestream"
)

// Collector bundles the Prometheus metrics of a flight. It satisfies both the
// pose stream metrics hook and the flight phase observer.
type Collector struct {
	gatherer prometheus.Gatherer

	Messages         *prometheus.CounterVec
	InjectionErrors  prometheus.Counter
	TrajectoryPoints prometheus.Gauge
	FlightPhase      prometheus.Gauge
	PhaseDurations   *prometheus.HistogramVec
}

var (
	_ posestream.Metrics   = (*Collector)(nil)
	_ flight.PhaseObserver = (*Collector)(nil)
)

// NewCollector registers the flight metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	messages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mocap_messages_total",
		Help: "Motion capture messages received, labeled by outcome (accepted, stale, malformed).",
	}, []string{"result"}), "mocap_messages_total")
	if err != nil {
		return nil, err
	}

	injectionErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mocap_injection_errors_total",
		Help: "External position updates the vehicle failed to accept.",
	}), "mocap_injection_errors_total")
	if err != nil {
		return nil, err
	}

	points, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trajectory_points",
		Help: "Number of poses in the trajectory log.",
	}), "trajectory_points")
	if err != nil {
		return nil, err
	}

	phase, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flight_phase",
		Help: "Current flight phase (0 awaiting_pose, 1 taking_off, 2 navigating, 3 hovering, 4 landing, 5 done).",
	}), "flight_phase")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flight_phase_duration_seconds",
		Help:    "Time spent in each flight phase.",
		Buckets: []float64{0.1, 0.5, 1, 2, 3, 4, 5, 10, 30, 60},
	}, []string{"phase"}), "flight_phase_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Messages:         messages,
		InjectionErrors:  injectionErrors,
		TrajectoryPoints: points,
		FlightPhase:      phase,
		PhaseDurations:   durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveMessage(result string) {
	if c == nil {
		return
	}
	c.Messages.WithLabelValues(result).Inc()
	if result == posestream.ResultAccepted {
		c.TrajectoryPoints.Inc()
	}
}

func (c *Collector) ObserveInjectionError() {
	if c == nil {
		return
	}
	c.InjectionErrors.Inc()
}

func (c *Collector) PhaseStarted(p flight.Phase) {
	if c == nil {
		return
	}
	c.FlightPhase.Set(float64(p))
}

func (c *Collector) PhaseFinished(p flight.Phase, elapsed time.Duration, _ error) {
	if c == nil {
		return
	}
	c.PhaseDurations.WithLabelValues(p.String()).Observe(elapsed.Seconds())
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
