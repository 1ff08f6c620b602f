package app

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/render"
)

func TestNewConfigFromCLI(t *testing.T) {
	c, err := NewConfigFromCLI([]string{
		"-db", "flight.sqlite", "-s", "3", "-o", "out/flight",
		"-f", "JPEG", "-z-offset", "0.03", "-theme", "progress",
		"-tz", "UTC", "-min-time", "2026-01-02T10:00:00Z",
	}, io.Discard)
	if err != nil {
		t.Fatalf("NewConfigFromCLI: %v", err)
	}

	if c.DBPath != "flight.sqlite" || c.SessionID != 3 {
		t.Errorf("unexpected source: %+v", c)
	}
	if c.OutputFile != "out/flight.jpeg" || c.Format != render.ImageJPEG {
		t.Errorf("unexpected output %s (%s)", c.OutputFile, c.Format)
	}
	if c.ZOffset != 0.03 || c.Theme != render.ProgressTheme || c.TimeZone != time.UTC {
		t.Errorf("unexpected rendering options: %+v", c)
	}
	want := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if c.MinTimestamp == nil || !c.MinTimestamp.Equal(want) || c.MaxTimestamp != nil {
		t.Errorf("unexpected time filters: %v %v", c.MinTimestamp, c.MaxTimestamp)
	}
}

func TestNewConfigFromCLI_Defaults(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-db", "flight.sqlite", "-o", "flight.png"}, io.Discard)
	if err != nil {
		t.Fatalf("NewConfigFromCLI: %v", err)
	}
	if c.SessionID != 1 || c.OutputFile != "flight.png" || c.Format != render.ImagePNG {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.ZOffset != 0.024 || c.Theme != render.SolidTheme {
		t.Errorf("unexpected rendering defaults: %+v", c)
	}
}

func TestNewConfigFromCLI_List(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-db", "flight.sqlite", "-list"}, io.Discard)
	if err != nil {
		t.Fatalf("NewConfigFromCLI: %v", err)
	}
	if !c.List {
		t.Error("expected list mode")
	}
}

func TestNewConfigFromCLI_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"no db", []string{"-o", "x.png"}, "db path"},
		{"no session", []string{"-db", "f.sqlite", "-s", "0", "-o", "x.png"}, "session id"},
		{"no output", []string{"-db", "f.sqlite"}, "output file"},
		{"format", []string{"-db", "f.sqlite", "-o", "x", "-f", "gif"}, "image format"},
		{"theme", []string{"-db", "f.sqlite", "-o", "x", "-theme", "neon"}, "color theme"},
		{"time zone", []string{"-db", "f.sqlite", "-o", "x", "-tz", "Mars/Olympus"}, "time zone"},
		{"time", []string{"-db", "f.sqlite", "-o", "x", "-max-time", "yesterday"}, "max-time"},
		{"range", []string{"-db", "f.sqlite", "-o", "x",
			"-min-time", "2026-01-02T11:00:00Z", "-max-time", "2026-01-02T10:00:00Z"}, "after"},
		{"unknown flag", []string{"-db", "f.sqlite", "-width", "10"}, "width"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfigFromCLI(tc.args, io.Discard)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
