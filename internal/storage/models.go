package storage

import (
	"database/sql"
	"time"
)

type sessionData struct {
	ID         int64
	StartTime  time.Time
	EndTime    sql.NullTime
	VehicleURI string
	Topic      string
	TargetX    float64
	TargetY    float64
	TargetZ    float64
	Outcome    sql.NullString
	Config     sql.NullString
}

type pointData struct {
	ID         int64
	SessionID  int64
	Seq        int64
	RecordedAt time.Time
	EventTime  sql.NullTime
	X          float64
	Y          float64
	Z          float64
}
