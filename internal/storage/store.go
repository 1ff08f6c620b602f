package storage

import (
	"context"
	"errors"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
)

// ErrNoData indicates that a session holds no trajectory points for the given
// parameters.
var ErrNoData = errors.New("no data available")

// FlightSession describes a single flight run and what it was configured to do.
type FlightSession struct {
	ID         int64      `json:"ID"`                      // Unique identifier for the session
	StartTime  time.Time  `json:"startTime"`               // When the run started
	EndTime    *time.Time `json:"endTime,omitempty"`       // When the run was finalized, nil while in progress
	VehicleURI string     `json:"vehicleURI"`              // Radio address of the vehicle
	Topic      string     `json:"topic"`                   // Subscribe topic of the pose feed
	Target     pose.Pose  `json:"target"`                  // Target marker position
	Outcome    *string    `json:"outcome,omitempty"`       // "completed" or the fatal error
	Config     *string    `json:"config,string,omitempty"` // Optional run configuration in JSON format
}

// Point is a single recorded trajectory pose.
type Point struct {
	Seq        int64     `json:"seq"`        // Position of the pose in the trajectory log
	RecordedAt time.Time `json:"recordedAt"` // When the pose was accepted
	Pose       pose.Pose `json:"pose"`
}

// Store provides persistence for flight sessions and their trajectories.
type Store interface {
	// CreateSession registers a new flight run and returns its identifier.
	// config may be a string, []byte or any JSON-serializable value.
	CreateSession(ctx context.Context, vehicleURI, topic string, target pose.Pose, config any) (sessionID int64, err error)

	// FinishSession records the end time and outcome of a flight run.
	FinishSession(ctx context.Context, sessionID int64, outcome string) error

	// Session returns a flight session by its ID.
	Session(ctx context.Context, id int64) (*FlightSession, error)

	// Sessions returns all flight sessions ordered by start time.
	Sessions(ctx context.Context) ([]*FlightSession, error)

	// StorePoints saves a batch of trajectory points in a single transaction.
	StorePoints(ctx context.Context, sessionID int64, points []Point) error

	// Close releases all database connections. It is safe to call Close multiple times.
	Close() error
}
