package posestream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
)

// ErrMalformedMessage is returned for messages that are not valid pose reports
var ErrMalformedMessage = errors.New("malformed pose message")

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// coordinate accepts both JSON numbers and numeric strings.
type coordinate struct {
	value float64
	set   bool
}

func (c *coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return errors.New("null coordinate")
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("coordinate %q: %w", s, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("coordinate %q is not a finite number", s)
		}
		c.value, c.set = v, true
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.value, c.set = v, true
	return nil
}

type message struct {
	Payload *struct {
		Pose *struct {
			Position *struct {
				X coordinate `json:"x"`
				Y coordinate `json:"y"`
				Z coordinate `json:"z"`
			} `json:"position"`
		} `json:"pose"`
	} `json:"payload"`
	TS *string `json:"ts"`
}

// Decode parses a motion capture message into a pose. Errors wrap
// ErrMalformedMessage.
func Decode(data []byte) (pose.Pose, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return pose.Pose{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if msg.Payload == nil || msg.Payload.Pose == nil || msg.Payload.Pose.Position == nil {
		return pose.Pose{}, fmt.Errorf("%w: missing payload.pose.position", ErrMalformedMessage)
	}

	pos := msg.Payload.Pose.Position
	for _, c := range []struct {
		name string
		c    coordinate
	}{{"x", pos.X}, {"y", pos.Y}, {"z", pos.Z}} {
		if !c.c.set {
			return pose.Pose{}, fmt.Errorf("%w: missing position.%s", ErrMalformedMessage, c.name)
		}
	}

	p := pose.New(pos.X.value, pos.Y.value, pos.Z.value)

	if msg.TS != nil {
		ts, err := ParseTimestamp(*msg.TS)
		if err != nil {
			return pose.Pose{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		p.Timestamp = &ts
	}

	return p, nil
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" means UTC and a
// timestamp without a zone is taken to be in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	if strings.HasSuffix(s, "z") {
		s = strings.TrimSuffix(s, "z") + "Z"
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
