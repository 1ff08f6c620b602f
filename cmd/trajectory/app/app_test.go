package app

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSession writes a short straight-line flight and returns the database
// path and session ID.
func recordSession(t *testing.T) (string, int64) {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "flight.sqlite")
	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	id, err := store.CreateSession(ctx, "sim://", "mocap/drone2", pose.New(0.131, -1.032, 0.012), nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	points := make([]storage.Point, 50)
	for i := range points {
		f := float64(i) / float64(len(points)-1)
		points[i] = storage.Point{
			Seq:        int64(i),
			RecordedAt: start.Add(time.Duration(i) * 20 * time.Millisecond),
			Pose:       pose.New(-0.5+f*0.631, 0.4-f*1.432, 0.524),
		}
	}
	if err = store.StorePoints(ctx, id, points); err != nil {
		t.Fatalf("StorePoints: %v", err)
	}
	if err = store.FinishSession(ctx, id, "completed"); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	return dbPath, id
}

func TestRun_RendersSession(t *testing.T) {
	dbPath, id := recordSession(t)

	c := NewConfig()
	c.DBPath = dbPath
	c.SessionID = id
	c.OutputFile = filepath.Join(t.TempDir(), "flight.png")

	if err := Run(context.Background(), c, io.Discard, discardLogger()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(c.OutputFile)
	if err != nil {
		t.Fatalf("opening report: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Errorf("empty image: %v", img.Bounds())
	}
}

func TestRun_ListSessions(t *testing.T) {
	dbPath, id := recordSession(t)

	c := NewConfig()
	c.DBPath = dbPath
	c.List = true

	var out bytes.Buffer
	if err := Run(context.Background(), c, &out, discardLogger()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one session, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "1 ") || id != 1 {
		t.Errorf("unexpected session row %q", lines[1])
	}
	if !strings.Contains(lines[1], "completed") || !strings.Contains(lines[1], "mocap/drone2") {
		t.Errorf("session row lacks metadata: %q", lines[1])
	}
}

func TestRun_EmptyTimeWindow(t *testing.T) {
	dbPath, id := recordSession(t)

	from := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	c := NewConfig()
	c.DBPath = dbPath
	c.SessionID = id
	c.OutputFile = filepath.Join(t.TempDir(), "flight.png")
	c.MinTimestamp, c.MaxTimestamp = &from, &to

	err := Run(context.Background(), c, io.Discard, discardLogger())
	if !errors.Is(err, storage.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestRun_MissingDatabase(t *testing.T) {
	c := NewConfig()
	c.DBPath = filepath.Join(t.TempDir(), "missing.sqlite")

	if err := Run(context.Background(), c, io.Discard, discardLogger()); err == nil {
		t.Error("expected error for missing database")
	}
}
