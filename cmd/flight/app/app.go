package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/mocap-flight/internal/coordinator"
	"github.com/roman-kulish/mocap-flight/internal/flight"
	"github.com/roman-kulish/mocap-flight/internal/observability"
	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/posestream"
	"github.com/roman-kulish/mocap-flight/internal/render"
	"github.com/roman-kulish/mocap-flight/internal/storage"
	"github.com/roman-kulish/mocap-flight/internal/trajectory"
	"github.com/roman-kulish/mocap-flight/internal/transport/mqtt"
	"github.com/roman-kulish/mocap-flight/internal/vehicle"
	"github.com/roman-kulish/mocap-flight/internal/vehicle/bridge"
	"github.com/roman-kulish/mocap-flight/internal/vehicle/sim"
)

const (
	outcomeNotConnected = "not_connected"
	finishTimeout       = 5 * time.Second
)

// Run connects to the vehicle, flies the configured sequence and records the
// trajectory. Connection failures are returned before any flight activity.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	tp, shutdownTracing, err := observability.InitTracing(ctx, config.TracingConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, logger)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	if config.Metrics.Listen != "" {
		srv, err := observability.StartMetricsServer(config.Metrics.Listen, collector.Handler(), logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn(fmt.Sprintf("stopping metrics server: %s", err.Error()))
			}
		}()
	}

	renderer, err := render.NewRenderer(config.RenderConfig())
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	store, err := createStorage(&config.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	target := config.TargetPose()
	sessionID, err := store.CreateSession(ctx, config.Vehicle.URI, config.MQTT.Topic, target, config)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	logger = logger.With(slog.Int64("session", sessionID))

	v, source, err := connectVehicle(ctx, config, logger)
	if err != nil {
		finishSession(ctx, store, sessionID, outcomeNotConnected, logger)
		return err
	}

	recorder := trajectory.NewRecorder(store, sessionID,
		trajectory.WithMaxBatchSize(config.Storage.MaxBatchSize),
		trajectory.WithFlushInterval(config.Storage.FlushInterval.Duration()),
		trajectory.WithLogger(logger))

	sink := pose.NewSink()
	log := trajectory.NewLog(trajectory.WithObserver(recorder.Observe))

	stream := posestream.New(source, config.MQTT.Topic, sink, log,
		posestream.WithLogger(logger),
		posestream.WithInjector(v),
		posestream.WithMetrics(collector))

	sequencer := flight.NewSequencer(config.FlightConfig(), sink, v,
		flight.WithLogger(logger),
		flight.WithTracerProvider(tp),
		flight.WithPhaseObserver(collector))

	coord := coordinator.New(v, stream, sequencer, log, target,
		coordinator.WithLogger(logger),
		coordinator.WithEstimator(config.EstimatorConfig()),
		coordinator.WithReport(renderer, config.Render.Output))

	res, runErr := coord.Run(ctx)

	if err = recorder.Close(); err != nil {
		logger.Warn(err.Error())
	}
	stored, dropped, failed := recorder.Stats()
	logger.Info(fmt.Sprintf("stored %s trajectory points (%s dropped, %s failed)",
		humanize.Comma(int64(stored)), humanize.Comma(int64(dropped)), humanize.Comma(int64(failed))))

	stats := stream.Stats()
	logger.Info(fmt.Sprintf("pose stream: %s accepted, %s stale, %s malformed, %s injection errors",
		humanize.Comma(int64(stats.Accepted)), humanize.Comma(int64(stats.Stale)),
		humanize.Comma(int64(stats.Malformed)), humanize.Comma(int64(stats.InjectionErrors))))

	if res.Origin != nil {
		logger.Info(fmt.Sprintf("took off from %s, %s m from the target",
			res.Origin, humanize.FtoaWithDigits(res.Origin.Distance(pose.New(target.X, target.Y, res.Origin.Z)), 3)))
	}
	if res.StreamLost {
		logger.Warn("pose stream was lost during the flight")
	}

	outcome := res.Outcome
	if res.FailedPhase != nil {
		outcome = fmt.Sprintf("%s: %s", res.Outcome, res.FailedPhase)
	}
	finishSession(ctx, store, sessionID, outcome, logger)

	return runErr
}

// connectVehicle opens the configured vehicle link and the pose source that
// goes with it. A failure is a *vehicle.ConnectError.
func connectVehicle(ctx context.Context, config *Config, logger *slog.Logger) (vehicle.Vehicle, posestream.Source, error) {
	source := mqtt.NewSource(config.MQTT.Broker, config.MQTT.Port,
		mqtt.WithLogger(logger),
		mqtt.WithClientID(config.MQTT.ClientID),
		mqtt.WithKeepAlive(config.MQTT.KeepAlive.Duration()),
		mqtt.WithQoS(config.MQTT.QoS))

	switch config.Vehicle.Driver {
	case DriverSim:
		sc := config.Vehicle.Sim
		v := sim.New(sim.WithLogger(logger), sim.WithStartPosition(pose.New(sc.StartX, sc.StartY, sc.StartZ)))
		logger.Info("using simulated vehicle")
		if sc.Feed {
			return v, sim.NewFeed(v, sc.FeedInterval.Duration()), nil
		}
		return v, source, nil

	case DriverBridge:
		bc := config.Vehicle.Bridge
		logger.Info("connecting to vehicle", slog.String("uri", config.Vehicle.URI))
		v, err := bridge.Connect(ctx, config.Vehicle.URI,
			bridge.WithLogger(logger),
			bridge.WithRuntime(bc.Runtime),
			bridge.WithArgs(bc.Args...),
			bridge.WithCommandTimeout(bc.CommandTimeout.Duration()),
			bridge.WithConnectTimeout(bc.ConnectTimeout.Duration()))
		if err != nil {
			return nil, nil, err
		}
		return v, source, nil

	default:
		return nil, nil, vehicle.NewConnectError(config.Vehicle.URI, fmt.Errorf("unknown driver '%s'", config.Vehicle.Driver))
	}
}

func finishSession(ctx context.Context, store storage.Store, sessionID int64, outcome string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := store.FinishSession(ctx, sessionID, outcome); err != nil {
		logger.Warn(fmt.Sprintf("finishing session: %s", err.Error()))
	}
}

func createStorage(config *StorageConfig, logger *slog.Logger) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err = os.MkdirAll(dbPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory '%s': %w", dbPath, err)
		}
	case err != nil:
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	case !stat.IsDir():
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("flight_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	logger.Info("recording trajectory", slog.String("file", dbPath))

	return storage.NewSqliteStore(dbPath), nil
}
