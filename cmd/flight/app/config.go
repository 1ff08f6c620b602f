package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/mocap-flight/internal/coordinator"
	"github.com/roman-kulish/mocap-flight/internal/flight"
	"github.com/roman-kulish/mocap-flight/internal/observability"
	"github.com/roman-kulish/mocap-flight/internal/pose"
	"github.com/roman-kulish/mocap-flight/internal/render"
	"github.com/roman-kulish/mocap-flight/internal/transport/mqtt"
	"github.com/roman-kulish/mocap-flight/internal/vehicle/bridge"
)

const (
	DriverBridge = "bridge"
	DriverSim    = "sim"

	defaultVehicleURI   = "radio://0/80/2M/E7E7E7E7E9"
	defaultBroker       = "192.168.50.200"
	defaultTopic        = "mocap/drone2"
	defaultDataDir      = "data"
	defaultMaxBatchSize = 100
	defaultFlushEvery   = 500 * time.Millisecond
	defaultOutput       = "trajectory.png"
	defaultServiceName  = "mocap-flight"
)

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Vehicle   VehicleConfig   `yaml:"vehicle"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Target    TargetConfig    `yaml:"target"`
	Flight    FlightConfig    `yaml:"flight"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Storage   StorageConfig   `yaml:"storage"`
	Render    RenderConfig    `yaml:"render"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// VehicleConfig selects and configures the vehicle link
type VehicleConfig struct {
	URI    string       `yaml:"uri"`
	Driver string       `yaml:"driver"`
	Bridge BridgeConfig `yaml:"bridge"`
	Sim    SimConfig    `yaml:"sim"`
}

type BridgeConfig struct {
	Runtime        string   `yaml:"runtime"`
	Args           []string `yaml:"args"`
	CommandTimeout Duration `yaml:"commandTimeout"`
	ConnectTimeout Duration `yaml:"connectTimeout"`
}

// SimConfig configures the simulated vehicle. With Feed enabled the simulated
// position is used as the motion capture stream and no broker is contacted.
type SimConfig struct {
	Feed         bool     `yaml:"feed"`
	FeedInterval Duration `yaml:"feedInterval"`
	StartX       float64  `yaml:"startX"`
	StartY       float64  `yaml:"startY"`
	StartZ       float64  `yaml:"startZ"`
}

// MQTTConfig represents the motion capture broker settings
type MQTTConfig struct {
	Broker    string   `yaml:"broker"`
	Port      int      `yaml:"port"`
	Topic     string   `yaml:"topic"`
	ClientID  string   `yaml:"clientID"`
	KeepAlive Duration `yaml:"keepAlive"`
	QoS       byte     `yaml:"qos"`
}

// TargetConfig is the point the vehicle flies to. Z is the height of the
// target marker and only affects the report.
type TargetConfig struct {
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	Z           float64 `yaml:"z"`
	HoverHeight float64 `yaml:"hoverHeight"`
}

type FlightConfig struct {
	PollInterval    Duration `yaml:"pollInterval"`
	BarrierTimeout  Duration `yaml:"barrierTimeout"`
	TakeoffDuration Duration `yaml:"takeoffDuration"`
	TakeoffWait     Duration `yaml:"takeoffWait"`
	NavigateSpeed   float64  `yaml:"navigateSpeed"`
	Yaw             float64  `yaml:"yaw"`
	NavigateSettle  Duration `yaml:"navigateSettle"`
	HoverDuration   Duration `yaml:"hoverDuration"`
	LandDuration    Duration `yaml:"landDuration"`
	LandWait        Duration `yaml:"landWait"`
}

type EstimatorConfig struct {
	ResetPulse Duration `yaml:"resetPulse"`
	Settle     Duration `yaml:"settle"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string   `yaml:"dataDirectory"`
	MaxBatchSize  int      `yaml:"maxBatchSize"`
	FlushInterval Duration `yaml:"flushInterval"`
}

type RenderConfig struct {
	Output  string       `yaml:"output"`
	Title   string       `yaml:"title"`
	Theme   string       `yaml:"theme"`
	ZOffset float64      `yaml:"zOffset"`
	Bounds  BoundsConfig `yaml:"bounds"`
}

type BoundsConfig struct {
	XMin float64 `yaml:"xMin"`
	XMax float64 `yaml:"xMax"`
	YMin float64 `yaml:"yMin"`
	YMax float64 `yaml:"yMax"`
	ZMin float64 `yaml:"zMin"`
	ZMax float64 `yaml:"zMax"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// NewConfig returns the configuration of the reference flight.
func NewConfig() *Config {
	fl := flight.DefaultConfig()
	b := render.DefaultBounds()

	return &Config{
		Settings: Settings{LogLevel: "info"},
		Vehicle: VehicleConfig{
			URI:    defaultVehicleURI,
			Driver: DriverBridge,
			Bridge: BridgeConfig{
				Runtime:        bridge.DefaultRuntime,
				CommandTimeout: NewDuration(bridge.DefaultCommandTimeout),
				ConnectTimeout: NewDuration(bridge.DefaultConnectTimeout),
			},
			Sim: SimConfig{
				FeedInterval: NewDuration(10 * time.Millisecond),
			},
		},
		MQTT: MQTTConfig{
			Broker:    defaultBroker,
			Port:      mqtt.DefaultPort,
			Topic:     defaultTopic,
			ClientID:  mqtt.DefaultClientID,
			KeepAlive: NewDuration(mqtt.DefaultKeepAlive),
		},
		Target: TargetConfig{
			X:           fl.TargetX,
			Y:           fl.TargetY,
			Z:           0.012,
			HoverHeight: fl.HoverHeight,
		},
		Flight: FlightConfig{
			PollInterval:    NewDuration(fl.PollInterval),
			TakeoffDuration: NewDuration(fl.TakeoffDuration),
			TakeoffWait:     NewDuration(fl.TakeoffWait),
			NavigateSpeed:   fl.NavigateSpeed,
			Yaw:             fl.Yaw,
			NavigateSettle:  NewDuration(fl.NavigateSettle),
			HoverDuration:   NewDuration(fl.HoverDuration),
			LandDuration:    NewDuration(fl.LandDuration),
			LandWait:        NewDuration(fl.LandWait),
		},
		Estimator: EstimatorConfig{
			ResetPulse: NewDuration(100 * time.Millisecond),
			Settle:     NewDuration(3 * time.Second),
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDir,
			MaxBatchSize:  defaultMaxBatchSize,
			FlushInterval: NewDuration(defaultFlushEvery),
		},
		Render: RenderConfig{
			Output:  defaultOutput,
			Title:   render.DefaultConfig().Title,
			Theme:   string(render.SolidTheme),
			ZOffset: render.DefaultConfig().ZOffset,
			Bounds: BoundsConfig{
				XMin: b.XMin, XMax: b.XMax,
				YMin: b.YMin, YMax: b.YMax,
				ZMin: b.ZMin, ZMax: b.ZMax,
			},
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML document on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("settings.logLevel: %w", err)
	}

	switch c.Vehicle.Driver {
	case DriverBridge:
		if c.Vehicle.URI == "" {
			return errors.New("vehicle.uri is required")
		}
	case DriverSim:
	default:
		return fmt.Errorf("vehicle.driver: unknown driver '%s'", c.Vehicle.Driver)
	}

	if !(c.Vehicle.Driver == DriverSim && c.Vehicle.Sim.Feed) {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port: invalid port %d", c.MQTT.Port)
		}
	}
	if c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos: must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	if err := c.FlightConfig().Validate(); err != nil {
		return fmt.Errorf("flight: %w", err)
	}

	for name, d := range map[string]Duration{
		"estimator.resetPulse":          c.Estimator.ResetPulse,
		"estimator.settle":              c.Estimator.Settle,
		"storage.flushInterval":         c.Storage.FlushInterval,
		"vehicle.bridge.commandTimeout": c.Vehicle.Bridge.CommandTimeout,
		"vehicle.bridge.connectTimeout": c.Vehicle.Bridge.ConnectTimeout,
	} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Storage.MaxBatchSize <= 0 {
		return fmt.Errorf("storage.maxBatchSize: must be positive, got %d", c.Storage.MaxBatchSize)
	}

	if c.Render.Output == "" {
		return errors.New("render.output is required")
	}
	switch render.ColorTheme(c.Render.Theme) {
	case render.SolidTheme, render.ProgressTheme:
	default:
		return fmt.Errorf("render.theme: unknown theme '%s'", c.Render.Theme)
	}
	b := c.Render.Bounds
	if b.XMax <= b.XMin || b.YMax <= b.YMin || b.ZMax <= b.ZMin {
		return fmt.Errorf("render.bounds: invalid bounds %+v", b)
	}

	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Exporter) {
		case "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter: unknown exporter '%s'", c.Tracing.Exporter)
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("tracing.sampleRatio: must be within [0, 1], got %v", c.Tracing.SampleRatio)
		}
	}

	return nil
}

// FlightConfig returns the sequencer parameters.
func (c *Config) FlightConfig() flight.Config {
	return flight.Config{
		TargetX:         c.Target.X,
		TargetY:         c.Target.Y,
		HoverHeight:     c.Target.HoverHeight,
		PollInterval:    c.Flight.PollInterval.Duration(),
		BarrierTimeout:  c.Flight.BarrierTimeout.Duration(),
		TakeoffDuration: c.Flight.TakeoffDuration.Duration(),
		TakeoffWait:     c.Flight.TakeoffWait.Duration(),
		NavigateSpeed:   c.Flight.NavigateSpeed,
		Yaw:             c.Flight.Yaw,
		NavigateSettle:  c.Flight.NavigateSettle.Duration(),
		HoverDuration:   c.Flight.HoverDuration.Duration(),
		LandDuration:    c.Flight.LandDuration.Duration(),
		LandWait:        c.Flight.LandWait.Duration(),
	}
}

func (c *Config) EstimatorConfig() coordinator.EstimatorConfig {
	return coordinator.EstimatorConfig{
		ResetPulse: c.Estimator.ResetPulse.Duration(),
		Settle:     c.Estimator.Settle.Duration(),
	}
}

func (c *Config) RenderConfig() render.Config {
	cfg := render.DefaultConfig()
	cfg.Title = c.Render.Title
	cfg.ColorTheme = render.ColorTheme(c.Render.Theme)
	cfg.ZOffset = c.Render.ZOffset
	cfg.Bounds = render.Bounds{
		XMin: c.Render.Bounds.XMin, XMax: c.Render.Bounds.XMax,
		YMin: c.Render.Bounds.YMin, YMax: c.Render.Bounds.YMax,
		ZMin: c.Render.Bounds.ZMin, ZMax: c.Render.Bounds.ZMax,
	}
	return cfg
}

func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: defaultServiceName,
		Exporter:    strings.ToLower(c.Tracing.Exporter),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// TargetPose returns the target marker position.
func (c *Config) TargetPose() pose.Pose {
	return pose.New(c.Target.X, c.Target.Y, c.Target.Z)
}

// Duration is a time.Duration read from strings such as "3.5s" or "100ms".
type Duration time.Duration

func NewDuration(d time.Duration) Duration {
	return Duration(d)
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) Validate() error {
	if d < 0 {
		return fmt.Errorf("must not be negative: %s", d)
	}
	return nil
}
