// Package vehicle describes the command surface of the flying vehicle. The radio
// link itself lives outside this module; implementations either talk to it
// through a bridge process or simulate it in-process.
package vehicle

import "context"

// Estimator parameter names and values used to reset onboard state estimation.
const (
	ParamEstimator       = "stabilizer.estimator"
	ParamResetEstimation = "kalman.resetEstimation"

	EstimatorKalman = "2"
)

// Vehicle is a connected vehicle able to accept position and motion commands.
//
// SetExternalPosition and SetParameter are fire-and-forget; they do not wait
// for the vehicle to act on them. The motion commands block until the command
// has been delivered and acknowledged, or ctx is done.
type Vehicle interface {
	// SetExternalPosition feeds an externally observed position to the onboard
	// estimator.
	SetExternalPosition(x, y, z float64) error

	// SetParameter writes an onboard parameter.
	SetParameter(name, value string) error

	// Takeoff climbs to height metres over the given duration in seconds.
	Takeoff(ctx context.Context, height, duration float64) error

	// GoTo flies to (x, y, z) with the given yaw in degrees. The speed argument
	// is passed through to the vehicle's high-level commander.
	GoTo(ctx context.Context, x, y, z, yaw, speed float64, absolute bool) error

	// Land descends to height metres over the given duration in seconds.
	Land(ctx context.Context, height, duration float64) error

	// Stop cuts the motors and ends the high-level command sequence.
	Stop(ctx context.Context) error

	// Close releases the connection to the vehicle.
	Close() error
}
