// Package flight runs the flight sequence: wait for the first position fix,
// take off, fly to the target, hover, then land.
package flight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roman-kulish/mocap-flight/internal/pose"
)

const tracerName = "github.com/roman-kulish/mocap-flight/internal/flight"

// PoseReader returns the latest accepted pose.
type PoseReader interface {
	Read() pose.Pose
}

// Commander issues the blocking motion commands of the flight.
type Commander interface {
	Takeoff(ctx context.Context, height, duration float64) error
	GoTo(ctx context.Context, x, y, z, yaw, speed float64, absolute bool) error
	Land(ctx context.Context, height, duration float64) error
	Stop(ctx context.Context) error
}

// PhaseObserver is notified as the sequencer moves through the phases.
type PhaseObserver interface {
	PhaseStarted(p Phase)
	PhaseFinished(p Phase, elapsed time.Duration, err error)
}

// WithLogger sets the logger for the sequencer
func WithLogger(logger *slog.Logger) func(*Sequencer) {
	return func(s *Sequencer) {
		s.logger = logger.With(slog.String("component", "flight"))
	}
}

// WithTracerProvider records the flight and each phase as spans
func WithTracerProvider(tp trace.TracerProvider) func(*Sequencer) {
	return func(s *Sequencer) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithPhaseObserver registers an observer of phase transitions
func WithPhaseObserver(o PhaseObserver) func(*Sequencer) {
	return func(s *Sequencer) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Sequencer executes the phases of a flight in order. It reads positions from
// the pose register and never writes to it.
type Sequencer struct {
	cfg     Config
	poses   PoseReader
	vehicle Commander

	logger    *slog.Logger
	tracer    trace.Tracer
	observers []PhaseObserver

	phase  atomic.Int32
	origin atomic.Pointer[pose.Pose]
}

// NewSequencer creates a sequencer in the AwaitingPose phase.
func NewSequencer(cfg Config, poses PoseReader, vehicle Commander, options ...func(*Sequencer)) *Sequencer {
	s := Sequencer{
		cfg:     cfg,
		poses:   poses,
		vehicle: vehicle,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  noop.NewTracerProvider().Tracer(tracerName),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Phase returns the phase currently executing.
func (s *Sequencer) Phase() Phase {
	return Phase(s.phase.Load())
}

// Origin returns the first position fix, which is where the vehicle took off
// from. ok is false until a fix has been observed.
func (s *Sequencer) Origin() (p pose.Pose, ok bool) {
	if o := s.origin.Load(); o != nil {
		return *o, true
	}
	return pose.Pose{}, false
}

// Run executes the flight. It returns a *PhaseError naming the phase that
// failed; motion commands are never retried.
func (s *Sequencer) Run(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "flight", trace.WithAttributes(
		attribute.Float64("target.x", s.cfg.TargetX),
		attribute.Float64("target.y", s.cfg.TargetY),
		attribute.Float64("hover_height", s.cfg.HoverHeight),
	))
	defer span.End()

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{phase: AwaitingPose, fn: s.awaitPose},
		{phase: TakingOff, fn: s.takeOff},
		{phase: Navigating, fn: s.navigate},
		{phase: Hovering, fn: s.hover},
		{phase: Landing, fn: s.land},
	}

	for _, step := range steps {
		if err := s.runPhase(ctx, step.phase, step.fn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	s.enter(Done)
	s.logger.Info("flight completed")
	return nil
}

func (s *Sequencer) enter(p Phase) {
	s.phase.Store(int32(p))
	for _, o := range s.observers {
		o.PhaseStarted(p)
	}
}

func (s *Sequencer) runPhase(ctx context.Context, p Phase, fn func(context.Context) error) error {
	s.enter(p)
	s.logger.Info("entering phase", slog.String("phase", p.String()))

	ctx, span := s.tracer.Start(ctx, p.String())
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	for _, o := range s.observers {
		o.PhaseFinished(p, elapsed, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return NewPhaseError(p, err)
	}

	s.logger.Debug("phase finished", slog.String("phase", p.String()), slog.Duration("elapsed", elapsed))
	return nil
}

// awaitPose blocks until the pose register holds a valid reading.
func (s *Sequencer) awaitPose(ctx context.Context) error {
	if s.cfg.BarrierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.BarrierTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for first position fix: %w", err)
		}
		if p := s.poses.Read(); pose.IsValid(p) {
			s.origin.Store(&p)
			s.logger.Info(fmt.Sprintf("first position fix %s", p))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for first position fix: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Sequencer) takeOff(ctx context.Context) error {
	if err := s.vehicle.Takeoff(ctx, s.cfg.HoverHeight, s.cfg.TakeoffDuration.Seconds()); err != nil {
		return fmt.Errorf("takeoff: %w", err)
	}
	return wait(ctx, s.cfg.TakeoffWait)
}

func (s *Sequencer) navigate(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("flying to (x=%.3f, y=%.3f, z=%.3f)", s.cfg.TargetX, s.cfg.TargetY, s.cfg.HoverHeight))

	err := s.vehicle.GoTo(ctx, s.cfg.TargetX, s.cfg.TargetY, s.cfg.HoverHeight, s.cfg.Yaw, s.cfg.NavigateSpeed, true)
	if err != nil {
		return fmt.Errorf("go to target: %w", err)
	}
	return wait(ctx, s.cfg.NavigateSettle)
}

func (s *Sequencer) hover(ctx context.Context) error {
	return wait(ctx, s.cfg.HoverDuration)
}

func (s *Sequencer) land(ctx context.Context) error {
	if err := s.vehicle.Land(ctx, 0, s.cfg.LandDuration.Seconds()); err != nil {
		return fmt.Errorf("land: %w", err)
	}
	if err := wait(ctx, s.cfg.LandWait); err != nil {
		return err
	}
	if err := s.vehicle.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
