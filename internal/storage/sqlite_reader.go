package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultBatchSize = 1000

// ReaderOption configures a TrajectoryReader with specific filtering criteria.
type ReaderOption func(*TrajectoryReader)

// WithStartTime excludes points recorded before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *TrajectoryReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes points recorded after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *TrajectoryReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
// This is a convenience function equivalent to applying both WithStartTime
// and WithEndTime.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *TrajectoryReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithBatchSize sets how many points are fetched from the database per query.
func WithBatchSize(n int) ReaderOption {
	return func(r *TrajectoryReader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// TrajectoryReader iterates over the recorded trajectory of a session in
// sequence order. It fetches points in batches, so arbitrarily long flights can
// be read without holding them all in memory at once. A reader must only be used
// from a single goroutine.
type TrajectoryReader struct {
	db *sql.DB

	sessionID int64
	session   *FlightSession
	batchSize int

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	buffer  []Point
	current *Point
	lastSeq int64
	drained bool
	err     error
}

func newTrajectoryReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*TrajectoryReader, error) {
	r := &TrajectoryReader{
		db:        db,
		sessionID: sessionID,
		batchSize: defaultBatchSize,
		lastSeq:   -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *TrajectoryReader) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: r.loadSession},
		{msg: "initializing filters", fn: r.initFilters},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (r *TrajectoryReader) loadSession(ctx context.Context) (err error) {
	stmt, err := r.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if r.session, err = scanSession(stmt.QueryRowContext(ctx, r.sessionID)); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return
}

func (r *TrajectoryReader) initFilters(ctx context.Context) (err error) {
	if r.startTime != nil && r.endTime != nil {
		if r.startTime.After(*r.endTime) {
			return fmt.Errorf("start time %s is after end time %s", r.startTime, r.endTime)
		}
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, selectTimeBoundsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var startTime, endTime sqliteDatetime
	if err = stmt.QueryRowContext(ctx, r.sessionID).Scan(&startTime, &endTime); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}
	if !startTime.Valid || !endTime.Valid {
		r.drained = true // session has no points
		return nil
	}

	if r.startTime == nil {
		r.startTime = &startTime.Datetime
	}
	if r.endTime == nil {
		r.endTime = &endTime.Datetime
	}
	return nil
}

// Session returns the flight session this reader is accessing.
func (r *TrajectoryReader) Session() *FlightSession {
	return r.session
}

// Next advances the iterator and returns true if there is another point to read,
// false when the iteration is complete or an error occurred.
func (r *TrajectoryReader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}

	if len(r.buffer) == 0 {
		if r.drained {
			r.current = nil
			return false
		}
		if r.err = r.fetch(ctx); r.err != nil {
			return false
		}
		if len(r.buffer) == 0 {
			r.current = nil
			return false
		}
	}

	r.current = &r.buffer[0]
	r.buffer = r.buffer[1:]
	return true
}

// Current returns the point the iterator is positioned on.
func (r *TrajectoryReader) Current() *Point {
	return r.current
}

// Error returns any error that occurred during iteration.
func (r *TrajectoryReader) Error() error {
	return r.err
}

// Close releases the resources associated with the reader.
func (r *TrajectoryReader) Close() error {
	r.buffer = nil
	r.current = nil
	r.drained = true
	return nil
}

func (r *TrajectoryReader) fetch(ctx context.Context) (err error) {
	rows, err := r.db.QueryContext(ctx, selectPointsSQL, r.sessionID, r.startTime.UTC(), r.endTime.UTC(), r.lastSeq, r.batchSize)
	if err != nil {
		return fmt.Errorf("querying points: %w", err)
	}
	defer closeWithError(rows, &err)

	batch := make([]Point, 0, r.batchSize)
	for rows.Next() {
		var d pointData
		if err = rows.Scan(&d.Seq, &d.RecordedAt, &d.EventTime, &d.X, &d.Y, &d.Z); err != nil {
			return fmt.Errorf("scanning point: %w", err)
		}
		batch = append(batch, fromPointData(&d))
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("reading points: %w", err)
	}

	if len(batch) < r.batchSize {
		r.drained = true
	}
	if len(batch) > 0 {
		r.lastSeq = batch[len(batch)-1].Seq
	}
	r.buffer = batch
	return nil
}

// ReadAll drains the reader and returns every remaining point.
func ReadAll(ctx context.Context, r *TrajectoryReader) ([]Point, error) {
	var points []Point
	for r.Next(ctx) {
		points = append(points, *r.Current())
	}
	if err := r.Error(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}
