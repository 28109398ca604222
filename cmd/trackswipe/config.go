package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the trackswipe daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume a
// well-formed config. The config file is the primary configuration surface;
// flags are small overrides on top of it.
type Config struct {
	// Touch input devices
	Touch TouchConfig `yaml:"touch"`

	// Gesture recognition tuning
	Gesture GestureConfig `yaml:"gesture"`

	// Release-confirm binding
	Bindings BindingsConfig `yaml:"bindings"`

	// UI phase handling
	UI UIConfig `yaml:"ui"`

	// Exec hooks per gesture
	Hooks HooksConfig `yaml:"hooks"`

	// IPC configuration (used by trackswipe-ctl and UI processes)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server for the websocket state endpoint
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type TouchConfig struct {
	Devices []string `yaml:"devices,omitempty"` // evdev nodes, e.g. /dev/input/event5

	// VelocityScale multiplies normalized velocities (surface widths per second).
	VelocityScale float64 `yaml:"velocity_scale"`

	// AxisRange overrides the ranges reported by the device.
	AxisRange *AxisRangeConfig `yaml:"axis_range,omitempty"`
}

type AxisRangeConfig struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
}

type GestureConfig struct {
	Fingers        int     `yaml:"fingers"` // 3 or 4
	ShowThreshold  float64 `yaml:"show_threshold"`
	CycleThreshold float64 `yaml:"cycle_threshold"`
	Slot           int     `yaml:"slot"` // slot carried by show_or_cycle
}

type BindingsConfig struct {
	ReleaseConfirm bool `yaml:"release_confirm"`
	Slot           int  `yaml:"slot"` // release confirms only while the UI shows this slot
}

type UIConfig struct {
	TrackLocally bool `yaml:"track_locally"`
	Telemetry    bool `yaml:"telemetry"`
}

type HooksConfig struct {
	TimeoutMS int                 `yaml:"timeout_ms"`
	QueueSize int                 `yaml:"queue_size"`
	Commands  map[string][]string `yaml:"commands,omitempty"` // gesture name -> argv
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	WSPath  string `yaml:"ws_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// hookNames are the gesture names a hook can be bound to.
var hookNames = map[string]bool{
	"show_or_cycle":   true,
	"cycle_left":      true,
	"cycle_right":     true,
	"cycle_up":        true,
	"cycle_down":      true,
	"release_confirm": true,
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults.
func DefaultConfig() Config {
	return Config{
		Touch: TouchConfig{
			VelocityScale: defaultVelocityScale,
		},
		Gesture: GestureConfig{
			Fingers:        defaultFingers,
			ShowThreshold:  defaultShowThreshold,
			CycleThreshold: defaultCycleThreshold,
			Slot:           defaultGestureSlot,
		},
		Bindings: BindingsConfig{
			ReleaseConfirm: true,
			Slot:           defaultGestureSlot,
		},
		Hooks: HooksConfig{
			TimeoutMS: defaultHookTimeoutMS,
			QueueSize: defaultHookQueue,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    defaultHTTPAddr,
			WSPath:  defaultWSPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logFormatText,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from command-line flags that override the config file.
//
// Flags should pass pointers; each override is only applied if the pointer is non-nil.
// main.go decides which flags exist.
type FlagOverrides struct {
	Devices []string

	Fingers        *int
	ShowThreshold  *float64
	CycleThreshold *float64
	VelocityScale  *float64

	TrackUILocally *bool
	Telemetry      *bool

	IPCSocketPath *string
	HTTPAddr      *string
	HTTPEnabled   *bool

	LogLevel  *string
	LogFormat *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if len(o.Devices) > 0 {
		cfg.Touch.Devices = append([]string(nil), o.Devices...)
	}

	if o.Fingers != nil {
		cfg.Gesture.Fingers = *o.Fingers
	}
	if o.ShowThreshold != nil {
		cfg.Gesture.ShowThreshold = *o.ShowThreshold
	}
	if o.CycleThreshold != nil {
		cfg.Gesture.CycleThreshold = *o.CycleThreshold
	}
	if o.VelocityScale != nil {
		cfg.Touch.VelocityScale = *o.VelocityScale
	}

	if o.TrackUILocally != nil {
		cfg.UI.TrackLocally = *o.TrackUILocally
	}
	if o.Telemetry != nil {
		cfg.UI.Telemetry = *o.Telemetry
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Touch
	for i, dev := range c.Touch.Devices {
		if dev == "" {
			return fmt.Errorf("touch.devices[%d] is empty", i)
		}
	}
	if c.Touch.VelocityScale <= 0 {
		return errors.New("touch.velocity_scale must be > 0")
	}
	if r := c.Touch.AxisRange; r != nil {
		if r.XMax <= r.XMin {
			return errors.New("touch.axis_range.x_max must be > touch.axis_range.x_min")
		}
		if r.YMax <= r.YMin {
			return errors.New("touch.axis_range.y_max must be > touch.axis_range.y_min")
		}
	}

	// Gesture
	if err := validateFingers(c.Gesture.Fingers); err != nil {
		return fmt.Errorf("gesture.fingers: %w", err)
	}
	if c.Gesture.ShowThreshold <= 0 {
		return errors.New("gesture.show_threshold must be > 0")
	}
	if c.Gesture.CycleThreshold <= 0 {
		return errors.New("gesture.cycle_threshold must be > 0")
	}
	if c.Gesture.ShowThreshold > c.Gesture.CycleThreshold {
		return errors.New("gesture.show_threshold must be <= gesture.cycle_threshold")
	}

	// Hooks
	if c.Hooks.TimeoutMS <= 0 {
		return errors.New("hooks.timeout_ms must be > 0")
	}
	if c.Hooks.QueueSize <= 0 {
		return errors.New("hooks.queue_size must be > 0")
	}
	for name, argv := range c.Hooks.Commands {
		if !hookNames[name] {
			return fmt.Errorf("hooks.commands: unknown gesture %q", name)
		}
		if len(argv) == 0 || argv[0] == "" {
			return fmt.Errorf("hooks.commands.%s: command must not be empty", name)
		}
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// HTTP
	if c.HTTP.Enabled {
		if c.HTTP.Addr == "" {
			return errors.New("http.addr must not be empty when http is enabled")
		}
		if c.HTTP.WSPath == "" || c.HTTP.WSPath[0] != '/' {
			return errors.New("http.ws_path must start with /")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if !validLogFormat(c.Logging.Format) {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// ToReducerConfig converts the file config into the reducer's config.
func (c *Config) ToReducerConfig() ReducerConfig {
	return ReducerConfig{
		Recognizer: RecognizerConfig{
			ShowThreshold:  c.Gesture.ShowThreshold,
			CycleThreshold: c.Gesture.CycleThreshold,
			Slot:           c.Gesture.Slot,
		},
		RequiredFingers: c.Gesture.Fingers,
		ReleaseConfirm:  c.Bindings.ReleaseConfirm,
		BindingSlot:     c.Bindings.Slot,
		TrackUILocally:  c.UI.TrackLocally,
		Telemetry:       c.UI.Telemetry,
	}
}

// axisOverride returns the configured ranges, if any.
func (c *Config) axisOverride() (x, y axisRange, ok bool) {
	r := c.Touch.AxisRange
	if r == nil {
		return axisRange{}, axisRange{}, false
	}
	return axisRange{Min: r.XMin, Max: r.XMax}, axisRange{Min: r.YMin, Max: r.YMax}, true
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
