package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

//go:embed indexes.sql
var initIndexesSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      vehicle_uri,
                      topic,
                      target_x,
                      target_y,
                      target_z,
                      config)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	finishSessionSQL = `
UPDATE sessions
SET
    end_time = ?,
    outcome = ?
WHERE
    id = ?`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    end_time,
    vehicle_uri,
    topic,
    target_x,
    target_y,
    target_z,
    outcome,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    end_time,
    vehicle_uri,
    topic,
    target_x,
    target_y,
    target_z,
    outcome,
    config
FROM sessions
ORDER BY start_time`

	insertPointSQL = `
    INSERT INTO trajectory (
        session_id,
        seq,
        recorded_at,
        event_time,
        x,
        y,
        z
    )
    VALUES `

	selectTimeBoundsSQL = `
SELECT
    MIN(recorded_at),
    MAX(recorded_at)
FROM trajectory
WHERE
    session_id = ?`

	selectPointsSQL = `
SELECT
    seq,
    recorded_at,
    event_time,
    x,
    y,
    z
FROM trajectory
WHERE
    session_id = ?
    AND recorded_at BETWEEN ? AND ?
    AND seq > ?
ORDER BY seq
LIMIT ?`
)
