// Package posestream turns the motion capture feed into accepted poses. Every
// accepted pose is published to the pose sink, forwarded to the vehicle's
// onboard estimator and appended to the trajectory log, in that order.
package posestream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/trajectory"
)

// Message outcomes reported to Metrics.
const (
	ResultAccepted  = "accepted"
	ResultStale     = "stale"
	ResultMalformed = "malformed"
)

// Source delivers raw messages published on a topic. Subscribe blocks until ctx
// is done or the transport fails, calling handler for one message at a time.
type Source interface {
	Subscribe(ctx context.Context, topic string, handler func([]byte)) error
}

// Injector forwards an observed position to the vehicle.
type Injector interface {
	SetExternalPosition(x, y, z float64) error
}

// Metrics receives stream counters.
type Metrics interface {
	ObserveMessage(result string)
	ObserveInjectionError()
}

type nopMetrics struct{}

func (nopMetrics) ObserveMessage(string) {}
func (nopMetrics) ObserveInjectionError() {}

// Stats is a snapshot of the stream counters.
type Stats struct {
	Accepted        uint64
	Stale           uint64
	Malformed       uint64
	InjectionErrors uint64
}

// WithLogger sets the logger for the stream
func WithLogger(logger *slog.Logger) func(*Stream) {
	return func(s *Stream) {
		s.logger = logger.With(slog.String("component", "posestream"), slog.String("topic", s.topic))
	}
}

// WithInjector forwards accepted poses to inj as external position updates
func WithInjector(inj Injector) func(*Stream) {
	return func(s *Stream) {
		s.injector = inj
	}
}

// WithMetrics reports message outcomes to m
func WithMetrics(m Metrics) func(*Stream) {
	return func(s *Stream) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Stream consumes the motion capture feed for a single topic.
type Stream struct {
	source Source
	topic  string

	sink     *pose.Sink
	log      *trajectory.Log
	injector Injector
	metrics  Metrics
	logger   *slog.Logger

	mu     sync.Mutex // serializes acceptance, the stream is the only writer
	lastTS *time.Time

	accepted        atomic.Uint64
	stale           atomic.Uint64
	malformed       atomic.Uint64
	injectionErrors atomic.Uint64
}

// New creates a stream reading topic from source into sink and log.
func New(source Source, topic string, sink *pose.Sink, log *trajectory.Log, options ...func(*Stream)) *Stream {
	s := Stream{
		source:  source,
		topic:   topic,
		sink:    sink,
		log:     log,
		metrics: nopMetrics{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Run subscribes to the topic and processes messages until ctx is done or the
// transport fails. Cancellation is not an error.
func (s *Stream) Run(ctx context.Context) error {
	s.logger.Info("pose stream started")

	err := s.source.Subscribe(ctx, s.topic, s.Handle)

	st := s.Stats()
	s.logger.Info("pose stream stopped",
		slog.Uint64("accepted", st.Accepted),
		slog.Uint64("stale", st.Stale),
		slog.Uint64("malformed", st.Malformed),
	)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pose stream: %w", err)
	}
	return nil
}

// Handle processes a single raw message. Malformed and stale messages are
// dropped without affecting the stream state.
func (s *Stream) Handle(data []byte) {
	p, err := Decode(data)
	if err != nil {
		s.malformed.Add(1)
		s.metrics.ObserveMessage(ResultMalformed)
		s.logger.Warn(fmt.Sprintf("skipping message: %s", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Timestamp != nil {
		if s.lastTS != nil && !p.Timestamp.After(*s.lastTS) {
			s.stale.Add(1)
			s.metrics.ObserveMessage(ResultStale)
			s.logger.Debug("skipping out of order message", slog.Time("ts", *p.Timestamp), slog.Time("last", *s.lastTS))
			return
		}
		s.lastTS = p.Timestamp
	}

	s.sink.Write(p)

	if s.injector != nil {
		if err = s.injector.SetExternalPosition(p.X, p.Y, p.Z); err != nil {
			s.injectionErrors.Add(1)
			s.metrics.ObserveInjectionError()
			s.logger.Warn(fmt.Sprintf("injecting external position: %s", err.Error()))
		}
	}

	s.log.Append(p)

	s.accepted.Add(1)
	s.metrics.ObserveMessage(ResultAccepted)
}

// Stats returns the stream counters.
func (s *Stream) Stats() Stats {
	return Stats{
		Accepted:        s.accepted.Load(),
		Stale:           s.stale.Load(),
		Malformed:       s.malformed.Load(),
		InjectionErrors: s.injectionErrors.Load(),
	}
}
