package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/mocap-flight/internal/pose"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

func toPointData(sessionID int64, p Point) *pointData {
	var eventTime sql.NullTime
	if p.Pose.Timestamp != nil {
		eventTime.Time = p.Pose.Timestamp.UTC()
		eventTime.Valid = true
	}

	return &pointData{
		SessionID:  sessionID,
		Seq:        p.Seq,
		RecordedAt: p.RecordedAt.UTC(),
		EventTime:  eventTime,
		X:          p.Pose.X,
		Y:          p.Pose.Y,
		Z:          p.Pose.Z,
	}
}

func fromPointData(d *pointData) Point {
	p := Point{
		Seq:        d.Seq,
		RecordedAt: d.RecordedAt,
		Pose:       pose.New(d.X, d.Y, d.Z),
	}
	if d.EventTime.Valid {
		ts := d.EventTime.Time
		p.Pose.Timestamp = &ts
	}
	return p
}

func toConfigString(config any) (configData sql.NullString, err error) {
	if config == nil {
		return
	}

	switch v := config.(type) {
	case string:
		configData.Valid = true
		configData.String = v

	case []byte:
		configData.Valid = true
		configData.String = string(v)

	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}

		configData.Valid = true
		configData.String = string(p)
	}
	return
}

// sqliteDatetime scans datetime values which lost their declared column type,
// for example the result of MIN() or MAX(), and therefore arrive as text.
type sqliteDatetime struct {
	Datetime time.Time
	Valid    bool
}

func (d *sqliteDatetime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		d.Datetime, d.Valid = time.Time{}, false
		return nil

	case time.Time:
		d.Datetime, d.Valid = v, true
		return nil

	case []byte:
		return d.parse(string(v))

	case string:
		return d.parse(v)

	default:
		return fmt.Errorf("unsupported datetime value %T", value)
	}
}

func (d *sqliteDatetime) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Datetime, d.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("unrecognized datetime format %q", s)
}

func scanSession(row interface{ Scan(...any) error }) (*FlightSession, error) {
	var d sessionData
	err := row.Scan(
		&d.ID,
		&d.StartTime,
		&d.EndTime,
		&d.VehicleURI,
		&d.Topic,
		&d.TargetX,
		&d.TargetY,
		&d.TargetZ,
		&d.Outcome,
		&d.Config,
	)
	if err != nil {
		return nil, err
	}

	sess := FlightSession{
		ID:         d.ID,
		StartTime:  d.StartTime,
		VehicleURI: d.VehicleURI,
		Topic:      d.Topic,
		Target:     pose.New(d.TargetX, d.TargetY, d.TargetZ),
	}
	if d.EndTime.Valid {
		sess.EndTime = &d.EndTime.Time
	}
	if d.Outcome.Valid {
		sess.Outcome = &d.Outcome.String
	}
	if d.Config.Valid {
		sess.Config = &d.Config.String
	}
	return &sess, nil
}
