// Package coordinator runs a complete flight: it starts the pose stream, resets
// the onboard estimator, flies the sequence and always finalizes by rendering
// the recorded trajectory and releasing the vehicle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/mocap-flight/internal/flight"
	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/render"
	"github.com/roman-kulish/mocap-flight/internal/trajectory"
	"github.com/roman-kulish/mocap-flight/internal/vehicle"
)

// Flight outcomes reported in Result.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)

const (
	defaultResetPulse = 100 * time.Millisecond
	defaultSettle     = 3 * time.Second
)

// StreamRunner ingests poses until ctx is done.
type StreamRunner interface {
	Run(ctx context.Context) error
}

// FlightRunner flies the sequence.
type FlightRunner interface {
	Run(ctx context.Context) error
}

// phaseReporter is implemented by flight runners that expose the phase they
// are executing.
type phaseReporter interface {
	Phase() flight.Phase
}

// originReporter is implemented by flight runners that remember the takeoff
// position.
type originReporter interface {
	Origin() (pose.Pose, bool)
}

// Renderer draws a trajectory and the target marker.
type Renderer interface {
	Render(points []pose.Pose, target pose.Pose) (*image.RGBA, error)
}

// EstimatorConfig controls the estimator reset performed before the flight.
type EstimatorConfig struct {
	ResetPulse time.Duration // time between raising and lowering the reset flag
	Settle     time.Duration // time the estimator is given to converge
}

// Result describes how a run ended.
type Result struct {
	Outcome     string
	FailedPhase *flight.Phase
	Points      int
	Origin      *pose.Pose // first position fix, nil if none was observed
	StreamLost  bool       // the pose stream failed after takeoff
	Report      string     // path of the rendered trajectory, empty if none was written
}

// WithLogger sets the logger for the coordinator
func WithLogger(logger *slog.Logger) func(*Coordinator) {
	return func(c *Coordinator) {
		c.logger = logger.With(slog.String("component", "coordinator"))
	}
}

// WithEstimator overrides the estimator reset timing
func WithEstimator(cfg EstimatorConfig) func(*Coordinator) {
	return func(c *Coordinator) {
		c.estimator = cfg
	}
}

// WithReport renders the trajectory to output when the run ends
func WithReport(r Renderer, output string) func(*Coordinator) {
	return func(c *Coordinator) {
		c.renderer = r
		c.output = output
	}
}

// Coordinator owns a connected vehicle for the duration of one run.
type Coordinator struct {
	vehicle   vehicle.Vehicle
	stream    StreamRunner
	sequencer FlightRunner
	log       *trajectory.Log
	target    pose.Pose

	estimator EstimatorConfig
	renderer  Renderer
	output    string
	logger    *slog.Logger
}

// New creates a coordinator. The coordinator takes ownership of v and closes it
// when Run returns.
func New(v vehicle.Vehicle, stream StreamRunner, sequencer FlightRunner, log *trajectory.Log, target pose.Pose, options ...func(*Coordinator)) *Coordinator {
	c := Coordinator{
		vehicle:   v,
		stream:    stream,
		sequencer: sequencer,
		log:       log,
		target:    target,
		estimator: EstimatorConfig{
			ResetPulse: defaultResetPulse,
			Settle:     defaultSettle,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Run executes one flight. Finalization and the release of the vehicle happen
// whether or not the flight succeeded. The returned error is a
// *flight.PhaseError when a phase failed.
func (c *Coordinator) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		if cerr := c.vehicle.Close(); cerr != nil {
			c.logger.Error(fmt.Sprintf("releasing vehicle: %s", cerr.Error()))
			err = errors.Join(err, fmt.Errorf("releasing vehicle: %w", cerr))
		}
		c.logger.Info("vehicle released")
	}()

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	flightCtx, cancelFlight := context.WithCancelCause(ctx)
	defer cancelFlight(nil)

	var (
		streamErr  error
		streamLost bool
	)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)

		if streamErr = c.stream.Run(streamCtx); streamErr == nil {
			return
		}
		// Once airborne the sequence no longer reads positions, and cancelling
		// it would skip the landing.
		if c.airborne() {
			streamLost = true
			c.logger.Warn(fmt.Sprintf("pose stream failed after takeoff, continuing without position updates: %s", streamErr.Error()))
			return
		}
		c.logger.Error(fmt.Sprintf("pose stream failed: %s", streamErr.Error()))
		cancelFlight(streamErr)
	}()

	flightErr := c.resetEstimator(flightCtx)
	if flightErr == nil {
		flightErr = c.sequencer.Run(flightCtx)
	}

	cancelStream()
	<-streamDone

	res, reportErr := c.finalize()
	res.StreamLost = streamLost
	if o, ok := c.sequencer.(originReporter); ok {
		if p, found := o.Origin(); found {
			res.Origin = &p
		}
	}

	switch {
	case flightErr == nil:
		res.Outcome = OutcomeCompleted
	case ctx.Err() != nil:
		res.Outcome = OutcomeAborted
	default:
		res.Outcome = OutcomeFailed
	}

	var phaseErr *flight.PhaseError
	if errors.As(flightErr, &phaseErr) {
		res.FailedPhase = &phaseErr.Phase
	}

	if flightErr != nil && streamErr != nil {
		flightErr = errors.Join(flightErr, streamErr)
	}

	c.logger.Info("run finished", slog.String("outcome", res.Outcome), slog.Int("points", res.Points))

	if reportErr != nil {
		return res, errors.Join(flightErr, reportErr)
	}
	return res, flightErr
}

// airborne reports whether the flight has moved past the first position fix.
// Runners that do not report their phase are treated as still on the ground.
func (c *Coordinator) airborne() bool {
	r, ok := c.sequencer.(phaseReporter)
	return ok && r.Phase() != flight.AwaitingPose
}

// resetEstimator selects the Kalman estimator and pulses its reset flag.
// Parameter writes are fire-and-forget; only cancellation aborts the reset.
func (c *Coordinator) resetEstimator(ctx context.Context) error {
	c.logger.Info("resetting estimator")

	c.setParameter(vehicle.ParamEstimator, vehicle.EstimatorKalman)
	c.setParameter(vehicle.ParamResetEstimation, "1")
	if err := wait(ctx, c.estimator.ResetPulse); err != nil {
		return fmt.Errorf("resetting estimator: %w", err)
	}
	c.setParameter(vehicle.ParamResetEstimation, "0")

	c.logger.Info(fmt.Sprintf("waiting %s for the estimator to settle", c.estimator.Settle))
	if err := wait(ctx, c.estimator.Settle); err != nil {
		return fmt.Errorf("resetting estimator: %w", err)
	}
	return nil
}

func (c *Coordinator) setParameter(name, value string) {
	if err := c.vehicle.SetParameter(name, value); err != nil {
		c.logger.Warn(fmt.Sprintf("setting %s=%s: %s", name, value, err.Error()))
	}
}

// finalize snapshots the trajectory and renders it. An empty trajectory is
// reported, not treated as an error.
func (c *Coordinator) finalize() (Result, error) {
	points := c.log.Snapshot()
	res := Result{Points: len(points)}

	c.logger.Info(fmt.Sprintf("trajectory has %s points, path length %s m",
		humanize.Comma(int64(len(points))),
		humanize.FtoaWithDigits(trajectory.PathLength(points), 3)))

	if c.renderer == nil {
		return res, nil
	}

	img, err := c.renderer.Render(points, c.target)
	if errors.Is(err, render.ErrNoData) {
		c.logger.Warn("no trajectory recorded, nothing to render")
		return res, nil
	}
	if err != nil {
		c.logger.Error(fmt.Sprintf("rendering trajectory: %s", err.Error()))
		return res, fmt.Errorf("rendering trajectory: %w", err)
	}

	if err = render.Save(c.output, img); err != nil {
		c.logger.Error(fmt.Sprintf("saving trajectory: %s", err.Error()))
		return res, fmt.Errorf("saving trajectory: %w", err)
	}

	c.logger.Info("trajectory saved", slog.String("file", c.output))
	res.Report = c.output
	return res, nil
}

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
