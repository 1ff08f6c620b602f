package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/roman-kulish/mocap-flight/internal/render"
)

var validImageFormats = map[render.ImageFormat]struct{}{
	render.ImagePNG:  {},
	render.ImageJPEG: {},
}

var validThemes = map[render.ColorTheme]struct{}{
	render.SolidTheme:    {},
	render.ProgressTheme: {},
}

type Config struct {
	DBPath       string
	SessionID    int64
	OutputFile   string
	Format       render.ImageFormat
	ZOffset      float64
	Theme        render.ColorTheme
	TimeZone     *time.Location
	MinTimestamp *time.Time
	MaxTimestamp *time.Time
	List         bool
	Verbose      bool
}

func NewConfig() *Config {
	return &Config{
		Format:   render.ImagePNG,
		ZOffset:  render.DefaultConfig().ZOffset,
		Theme:    render.SolidTheme,
		TimeZone: time.Local,
	}
}

// NewConfigFromCLI parses the process command line.
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("trajectory", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, tz, minTime, maxTime string
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	fs.StringVar(&imageFormat, "f", string(render.ImagePNG), "Output image format. [png, jpeg]")
	fs.Float64Var(&c.ZOffset, "z-offset", c.ZOffset, "Height of the marker above the vehicle base, subtracted from Z (metres)")
	fs.StringVar(&theme, "theme", string(render.SolidTheme), "Trajectory color theme. [solid, progress]")
	fs.StringVar(&tz, "tz", "Local", "Time zone of the timestamps in the report")
	fs.StringVar(&minTime, "min-time", "", "Skip points recorded before this time (RFC 3339)")
	fs.StringVar(&maxTime, "max-time", "", "Skip points recorded after this time (RFC 3339)")
	fs.BoolVar(&c.List, "list", false, "List the sessions stored in the database and exit")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.List {
		return c, nil
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[render.ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[render.ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.TimeZone, err = time.LoadLocation(tz); err != nil {
		err = fmt.Errorf("invalid time zone: %w", err)
	} else if c.MinTimestamp, err = parseTime(minTime); err != nil {
		err = fmt.Errorf("invalid min-time: %w", err)
	} else if c.MaxTimestamp, err = parseTime(maxTime); err != nil {
		err = fmt.Errorf("invalid max-time: %w", err)
	} else if c.MinTimestamp != nil && c.MaxTimestamp != nil && c.MinTimestamp.After(*c.MaxTimestamp) {
		err = errors.New("min-time is after max-time")
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = render.ImageFormat(imageFormat)
	c.Theme = render.ColorTheme(theme)
	if filepath.Ext(c.OutputFile) == "" {
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	}
	return c, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
