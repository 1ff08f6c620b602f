// Package sim provides an in-process Vehicle for dry runs and tests. It records
// every command it receives and teleports to commanded positions.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/vehicle"
)

// Command names as recorded in Call.Name and accepted by WithFailure.
const (
	CmdExtPos  = "extpos"
	CmdParam   = "param"
	CmdTakeoff = "takeoff"
	CmdGoTo    = "goto"
	CmdLand    = "land"
	CmdStop    = "stop"
)

// Call is a single command received by the simulated vehicle.
type Call struct {
	Name  string
	Args  []float64
	Param string
	Value string
}

// WithLogger sets the logger for the simulated vehicle
func WithLogger(logger *slog.Logger) func(*Vehicle) {
	return func(v *Vehicle) {
		v.logger = logger.With(slog.String("vehicle", "sim"))
	}
}

// WithStartPosition places the vehicle at p before any command is issued.
func WithStartPosition(p pose.Pose) func(*Vehicle) {
	return func(v *Vehicle) {
		v.position = pose.New(p.X, p.Y, p.Z)
	}
}

// WithFailure makes every command with the given name fail with err.
func WithFailure(name string, err error) func(*Vehicle) {
	return func(v *Vehicle) {
		v.failures[name] = err
	}
}

// Vehicle is a simulated vehicle.Vehicle.
type Vehicle struct {
	mu       sync.Mutex
	calls    []Call
	position pose.Pose
	failures map[string]error
	closed   bool

	logger *slog.Logger
}

var _ vehicle.Vehicle = (*Vehicle)(nil)

// New creates a connected simulated vehicle.
func New(options ...func(*Vehicle)) *Vehicle {
	v := Vehicle{
		failures: make(map[string]error),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&v)
	}

	return &v
}

func (v *Vehicle) SetExternalPosition(x, y, z float64) error {
	return v.record(nil, Call{Name: CmdExtPos, Args: []float64{x, y, z}}, nil)
}

func (v *Vehicle) SetParameter(name, value string) error {
	return v.record(nil, Call{Name: CmdParam, Param: name, Value: value}, nil)
}

func (v *Vehicle) Takeoff(ctx context.Context, height, duration float64) error {
	return v.record(ctx, Call{Name: CmdTakeoff, Args: []float64{height, duration}}, func() {
		v.position.Z = height
	})
}

func (v *Vehicle) GoTo(ctx context.Context, x, y, z, yaw, speed float64, absolute bool) error {
	rel := 0.0
	if !absolute {
		rel = 1
	}
	return v.record(ctx, Call{Name: CmdGoTo, Args: []float64{x, y, z, yaw, speed, rel}}, func() {
		if absolute {
			v.position = pose.New(x, y, z)
			return
		}
		v.position = pose.New(v.position.X+x, v.position.Y+y, v.position.Z+z)
	})
}

func (v *Vehicle) Land(ctx context.Context, height, duration float64) error {
	return v.record(ctx, Call{Name: CmdLand, Args: []float64{height, duration}}, func() {
		v.position.Z = height
	})
}

func (v *Vehicle) Stop(ctx context.Context) error {
	return v.record(ctx, Call{Name: CmdStop}, nil)
}

// Close marks the vehicle as released. Further commands fail with
// vehicle.ErrClosed.
func (v *Vehicle) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (v *Vehicle) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Calls returns a copy of every command received so far.
func (v *Vehicle) Calls() []Call {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.calls)
}

// CallNames returns the names of the commands received so far, in order,
// optionally leaving out the given names.
func (v *Vehicle) CallNames(exclude ...string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	names := make([]string, 0, len(v.calls))
	for _, c := range v.calls {
		if !slices.Contains(exclude, c.Name) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Position returns the current simulated position.
func (v *Vehicle) Position() pose.Pose {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

func (v *Vehicle) record(ctx context.Context, c Call, move func()) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return vehicle.ErrClosed
	}

	v.calls = append(v.calls, c)

	if err, ok := v.failures[c.Name]; ok {
		return fmt.Errorf("%s: %w", c.Name, err)
	}

	if move != nil {
		move()
		v.logger.Debug(fmt.Sprintf("%s -> %s", c.Name, v.position))
	}
	return nil
}
