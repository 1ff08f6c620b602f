package sim

import (
	"context"
	"encoding/json"
	"time"
)

const defaultFeedInterval = 20 * time.Millisecond

type feedPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type feedMessage struct {
	Payload struct {
		Pose struct {
			Position feedPosition `json:"position"`
		} `json:"pose"`
	} `json:"payload"`
	TS string `json:"ts"`
}

// Feed publishes the simulated vehicle position as motion capture messages, so
// a dry run needs no broker. It satisfies the pose stream Source contract.
type Feed struct {
	vehicle  *Vehicle
	interval time.Duration
	now      func() time.Time
}

// NewFeed creates a feed reporting the position of v every interval.
func NewFeed(v *Vehicle, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = defaultFeedInterval
	}
	return &Feed{vehicle: v, interval: interval, now: time.Now}
}

// Subscribe emits one message per interval to handler until ctx is done. The
// topic is ignored.
func (f *Feed) Subscribe(ctx context.Context, _ string, handler func([]byte)) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p := f.vehicle.Position()

			var msg feedMessage
			msg.Payload.Pose.Position = feedPosition{X: p.X, Y: p.Y, Z: p.Z}
			msg.TS = f.now().UTC().Format(time.RFC3339Nano)

			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			handler(data)
		}
	}
}
