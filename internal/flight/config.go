package flight

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the fixed parameters of the flight. Durations passed to the
// vehicle are budgets for the motion; the wait durations are how long the
// sequencer stays in a phase after issuing its command.
type Config struct {
	TargetX     float64
	TargetY     float64
	HoverHeight float64

	PollInterval time.Duration

	// BarrierTimeout bounds AwaitingPose. Zero waits until the context is done.
	BarrierTimeout time.Duration

	TakeoffDuration time.Duration
	TakeoffWait     time.Duration

	NavigateSpeed  float64
	Yaw            float64
	NavigateSettle time.Duration

	HoverDuration time.Duration

	LandDuration time.Duration
	LandWait     time.Duration
}

// DefaultConfig returns the parameters of the reference flight.
func DefaultConfig() Config {
	return Config{
		TargetX:         0.131,
		TargetY:         -1.032,
		HoverHeight:     0.5,
		PollInterval:    100 * time.Millisecond,
		TakeoffDuration: 3 * time.Second,
		TakeoffWait:     3500 * time.Millisecond,
		NavigateSpeed:   0.6,
		Yaw:             0,
		NavigateSettle:  4 * time.Second,
		HoverDuration:   2 * time.Second,
		LandDuration:    2 * time.Second,
		LandWait:        3 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.HoverHeight <= 0 {
		return fmt.Errorf("hover height must be positive, got %v", c.HoverHeight)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.BarrierTimeout < 0 {
		return errors.New("barrier timeout must not be negative")
	}
	if c.NavigateSpeed <= 0 {
		return fmt.Errorf("navigate speed must be positive, got %v", c.NavigateSpeed)
	}

	for name, d := range map[string]time.Duration{
		"takeoff duration": c.TakeoffDuration,
		"takeoff wait":     c.TakeoffWait,
		"navigate settle":  c.NavigateSettle,
		"hover duration":   c.HoverDuration,
		"land duration":    c.LandDuration,
		"land wait":        c.LandWait,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	return nil
}
