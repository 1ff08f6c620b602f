package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/render"
	"github.com/roman-kulish/mocap-flight/internal/storage"
	"github.com/roman-kulish/mocap-flight/internal/trajectory"
)

func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.List {
		return listSessions(ctx, store, out)
	}
	return renderSession(ctx, store, config, logger)
}

func listSessions(ctx context.Context, store *storage.SqliteStore, out io.Writer) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tVEHICLE\tTOPIC\tTARGET\tOUTCOME")
	for _, s := range sessions {
		duration, outcome := "-", "in progress"
		if s.EndTime != nil {
			duration = s.EndTime.Sub(s.StartTime).Round(time.Millisecond).String()
		}
		if s.Outcome != nil {
			outcome = *s.Outcome
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, humanize.Time(s.StartTime), duration, s.VehicleURI, s.Topic, s.Target, outcome)
	}
	return w.Flush()
}

func renderSession(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	if len(filters) > 0 {
		logger.Info("reader configuration", filters...)
	}

	iter, err := store.ReadTrajectory(ctx, config.SessionID, opts...)
	if err != nil {
		return fmt.Errorf("reading session %d: %w", config.SessionID, err)
	}
	defer iter.Close()

	session := iter.Session()
	logger.Info("reading trajectory",
		slog.Int64("session", session.ID),
		slog.String("vehicle", session.VehicleURI),
		slog.String("topic", session.Topic))

	var points []pose.Pose
	for iter.Next(ctx) {
		points = append(points, iter.Current().Pose)
	}
	if err = iter.Error(); err != nil {
		return fmt.Errorf("reading trajectory: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("session %d: %w", config.SessionID, storage.ErrNoData)
	}

	logger.Info(fmt.Sprintf("read %s points, path length %s m",
		humanize.Comma(int64(len(points))),
		humanize.FtoaWithDigits(trajectory.PathLength(points), 3)))

	cfg := render.DefaultConfig()
	cfg.Title = fmt.Sprintf("Flight session %d", session.ID)
	cfg.ZOffset = config.ZOffset
	cfg.ColorTheme = config.Theme
	cfg.Location = config.TimeZone

	renderer, err := render.NewRenderer(cfg)
	if err != nil {
		return fmt.Errorf("creating trajectory renderer: %w", err)
	}

	logger.Info("rendering trajectory",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
		))

	img, err := renderer.Render(points, session.Target)
	if errors.Is(err, render.ErrNoData) {
		return fmt.Errorf("session %d: %w", config.SessionID, err)
	}
	if err != nil {
		return fmt.Errorf("rendering trajectory: %w", err)
	}

	f, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = render.Encode(f, img, config.Format); err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	return f.Close()
}
