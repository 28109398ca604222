package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("trackswipe v%s\n", version)
	fmt.Println("Multi-finger touchpad swipe recognizer for window switchers")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  trackswipe [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads multitouch touchpads (Linux evdev), recognizes 3 or 4 finger swipes")
	fmt.Println("  and publishes show/cycle/release-confirm gestures over a websocket and")
	fmt.Println("  optional exec hooks. UI processes report their state over IPC.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -device string")
	fmt.Println("        Touchpad event device; repeat for several (e.g. /dev/input/event5)")
	fmt.Println()
	fmt.Println("  -fingers int")
	fmt.Printf("        Required finger count, 3 or 4 (default %d)\n", defaultFingers)
	fmt.Println()
	fmt.Println("  -show-threshold float")
	fmt.Printf("        Horizontal displacement that reveals the UI (default %.1f)\n", defaultShowThreshold)
	fmt.Println()
	fmt.Println("  -cycle-threshold float")
	fmt.Printf("        Displacement that cycles the selection (default %.1f)\n", defaultCycleThreshold)
	fmt.Println()
	fmt.Println("  -velocity-scale float")
	fmt.Printf("        Multiplier for normalized finger velocities (default %.1f)\n", defaultVelocityScale)
	fmt.Println()
	fmt.Println("  -track-ui-locally")
	fmt.Println("        Derive UI phase from own gestures instead of UI reports")
	fmt.Println()
	fmt.Println("  -telemetry")
	fmt.Println("        Broadcast accumulator samples to websocket clients")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Printf("        Websocket/health HTTP listen address (default %q)\n", defaultHTTPAddr)
	fmt.Println()
	fmt.Println("  -no-http")
	fmt.Println("        Disable the HTTP server")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-format string")
	fmt.Println("        Log output format on stderr: text, json (default \"text\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Read one touchpad with 4-finger swipes")
	fmt.Println("  trackswipe -device /dev/input/event5 -fingers 4")
	fmt.Println()
	fmt.Println("  # Start from a config file, debug logging")
	fmt.Println("  trackswipe -config ~/.config/trackswipe.yaml -log-level debug")
	fmt.Println()
	fmt.Println("  # No hardware: drive it with trackswipe-ctl inject")
	fmt.Println("  trackswipe -track-ui-locally")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println()
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var devices stringList
	flag.Var(&devices, "device", "Touchpad event device (repeatable)")
	var (
		configPath     = flag.String("config", "", "YAML config file")
		fingers        = flag.Int("fingers", defaultFingers, "Required finger count (3 or 4)")
		showThreshold  = flag.Float64("show-threshold", defaultShowThreshold, "Horizontal displacement that reveals the UI")
		cycleThreshold = flag.Float64("cycle-threshold", defaultCycleThreshold, "Displacement that cycles the selection")
		velocityScale  = flag.Float64("velocity-scale", defaultVelocityScale, "Multiplier for normalized finger velocities")
		trackLocally   = flag.Bool("track-ui-locally", false, "Derive UI phase from own gestures")
		telemetry      = flag.Bool("telemetry", false, "Broadcast accumulator samples")
		ipcSocketPath  = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		httpAddr       = flag.String("http-addr", defaultHTTPAddr, "Websocket/health HTTP listen address")
		noHTTP         = flag.Bool("no-http", false, "Disable the HTTP server")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFormat      = flag.String("log-format", logFormatText, "Log output format: text, json")
		_              = flag.Bool("version", false, "Print version and exit")
		_              = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	o.Devices = devices
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fingers":
			o.Fingers = fingers
		case "show-threshold":
			o.ShowThreshold = showThreshold
		case "cycle-threshold":
			o.CycleThreshold = cycleThreshold
		case "velocity-scale":
			o.VelocityScale = velocityScale
		case "track-ui-locally":
			o.TrackUILocally = trackLocally
		case "telemetry":
			o.Telemetry = telemetry
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "no-http":
			enabled := !*noHTTP
			o.HTTPEnabled = &enabled
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-format":
			o.LogFormat = logFormat
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger, err := newLogger(os.Stderr, cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("trackswipe stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// run wires inputs, the daemon loop and transports, and blocks until ctx is
// canceled or a supervised goroutine fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	devices, err := openTouchDevices(cfg, logger)
	if err != nil {
		return err
	}
	defer closeTouchDevices(devices)

	if len(devices) == 0 {
		logger.Warn("no touch devices configured; only injected frames will be recognized")
	}

	events := make(chan Event, eventQueueSize)
	broadcasts := make(chan StateBroadcast, eventQueueSize)
	reducerCfg := cfg.ToReducerConfig()
	hooks := NewHookRunner(cfg.Hooks, logger)
	ws := NewServer(logger, events, ServerConfig{})

	logger.Debug("starting trackswipe", "version", version)
	logger.Debug("configuration",
		"devices", cfg.Touch.Devices,
		"fingers", cfg.Gesture.Fingers,
		"show_threshold", cfg.Gesture.ShowThreshold,
		"cycle_threshold", cfg.Gesture.CycleThreshold,
		"slot", cfg.Gesture.Slot,
		"release_confirm", cfg.Bindings.ReleaseConfirm,
		"binding_slot", cfg.Bindings.Slot,
		"track_ui_locally", cfg.UI.TrackLocally,
		"telemetry", cfg.UI.Telemetry,
		"hooks", len(cfg.Hooks.Commands))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(ctx, events, reducerCfg, NewDaemonState(reducerCfg), hooks, broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return hooks.Run(ctx)
	})
	g.Go(func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, events, logger)
	})

	if cfg.HTTP.Enabled {
		g.Go(func() error {
			ws.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, ws.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.HTTP.Addr, newHTTPMux(ws, cfg.HTTP.WSPath), logger)
		})
	} else {
		g.Go(func() error {
			drainBroadcasts(ctx, broadcasts)
			return nil
		})
	}

	if len(devices) > 0 {
		g.Go(func() error {
			return pumpTouchDevices(ctx, devices, events, logger)
		})
	}

	listenInfo := []any{"devices", len(devices), "ipc", cfg.IPC.SocketPath, "fingers", cfg.Gesture.Fingers}
	if cfg.HTTP.Enabled {
		listenInfo = append(listenInfo, "http", cfg.HTTP.Addr, "ws_path", cfg.HTTP.WSPath)
	}
	logger.Info("listening", listenInfo...)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drainBroadcasts discards broadcasts when no websocket server consumes them.
func drainBroadcasts(ctx context.Context, src <-chan StateBroadcast) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-src:
		}
	}
}
