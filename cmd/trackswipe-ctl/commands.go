package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultSocketPath = "/tmp/trackswipe.sock"
	dialTimeout       = 2 * time.Second
)

// cli holds the flags shared by all commands.
type cli struct {
	socketPath string
	jsonOutput bool
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "trackswipe-ctl",
		Short: "Control the trackswipe daemon via IPC",
		Long: `Sends actions to a running trackswipe daemon over its Unix socket: UI phase
reports, enable/disable, finger mode, synthetic touch frames and state queries.`,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.socketPath, "socket", defaultSocketPath, "Unix domain socket path")

	root.AddCommand(
		c.uiCmd(),
		c.enabledCmd("enable", true),
		c.enabledCmd("disable", false),
		c.fingersCmd(),
		c.injectCmd(),
		c.swipeCmd(),
		c.resetCmd(),
		c.statusCmd(),
	)
	return root
}

// send delivers actions over one connection and prints "ok" once all succeed.
func (c *cli) send(out io.Writer, actions ...Action) error {
	client, err := dialIPC(c.socketPath, dialTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, a := range actions {
		if _, err := client.Send(a); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func (c *cli) uiCmd() *cobra.Command {
	var slot int
	cmd := &cobra.Command{
		Use:       "ui active|idle",
		Short:     "Report the UI phase",
		Long:      `Tells the daemon whether the switcher UI is presented and which slot it shows.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"active", "idle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var active bool
			switch args[0] {
			case "active":
				active = true
			case "idle":
			default:
				return fmt.Errorf("ui phase must be active or idle, got %q", args[0])
			}
			return c.send(cmd.OutOrStdout(), SetUIPhase{Active: active, Slot: slot})
		},
	}
	cmd.Flags().IntVar(&slot, "slot", 0, "slot the UI is showing")
	return cmd
}

func (c *cli) enabledCmd(name string, enabled bool) *cobra.Command {
	short := "Disable gesture recognition"
	if enabled {
		short = "Enable gesture recognition"
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.send(cmd.OutOrStdout(), SetEnabled{Enabled: enabled})
		},
	}
}

func (c *cli) fingersCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "fingers 3|4",
		Short:     "Select 3 or 4 finger swipes",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"3", "4"},
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || (n != 3 && n != 4) {
				return fmt.Errorf("fingers must be 3 or 4, got %q", args[0])
			}
			return c.send(cmd.OutOrStdout(), SetFingerMode{Fingers: n})
		},
	}
}

func (c *cli) injectCmd() *cobra.Command {
	var (
		device  string
		fingers []string
	)
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Inject one synthetic touch frame",
		Long: `Injects a frame with one velocity per --finger. A frame without fingers
reports that all fingers lifted.`,
		Example: `  trackswipe-ctl inject --finger 0.4,0 --finger 0.4,0 --finger 0.4,0
  trackswipe-ctl inject --device pad0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			frame := InjectFrame{Device: device, Fingers: []Velocity{}}
			for _, f := range fingers {
				v, err := parseVelocity(f)
				if err != nil {
					return err
				}
				frame.Fingers = append(frame.Fingers, v)
			}
			return c.send(cmd.OutOrStdout(), frame)
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device name the frame is attributed to (default \"injected\")")
	cmd.Flags().StringArrayVar(&fingers, "finger", nil, "finger velocity as x,y (repeatable)")
	return cmd
}

func (c *cli) swipeCmd() *cobra.Command {
	var (
		device   string
		fingers  int
		frames   int
		step     float64
		interval time.Duration
		hold     bool
	)
	cmd := &cobra.Command{
		Use:   "swipe left|right|up|down",
		Short: "Inject a complete synthetic swipe",
		Long: `Injects --frames frames of --fingers fingers all moving by --step in the
given direction, followed by a lift frame unless --hold is set.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"left", "right", "up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := directionVelocity(args[0], step)
			if err != nil {
				return err
			}
			if fingers < 1 {
				return fmt.Errorf("fingers must be positive, got %d", fingers)
			}
			if frames < 1 {
				return fmt.Errorf("frames must be positive, got %d", frames)
			}

			actions := swipeFrames(device, fingers, frames, v, hold)

			client, err := dialIPC(c.socketPath, dialTimeout)
			if err != nil {
				return err
			}
			defer client.Close()

			for i, a := range actions {
				if i > 0 && interval > 0 {
					time.Sleep(interval)
				}
				if _, err := client.Send(a); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device name the frames are attributed to")
	cmd.Flags().IntVar(&fingers, "fingers", 3, "number of fingers")
	cmd.Flags().IntVar(&frames, "frames", 12, "number of movement frames")
	cmd.Flags().Float64Var(&step, "step", 0.5, "per-frame velocity magnitude")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Millisecond, "delay between frames")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep fingers down (no lift frame)")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear every device's gesture accumulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.send(cmd.OutOrStdout(), ResetRecognizers{})
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialIPC(c.socketPath, dialTimeout)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Send(getState{})
			if err != nil {
				return err
			}
			if resp.State == nil {
				return fmt.Errorf("daemon returned no state")
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput {
				data, err := json.MarshalIndent(resp.State, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			printState(out, *resp.State)
			return nil
		},
	}
	cmd.Flags().BoolVar(&c.jsonOutput, "json", false, "print the raw state as JSON")
	return cmd
}

func printState(out io.Writer, s StateSnapshot) {
	fmt.Fprintf(out, "enabled:  %t\n", s.Enabled)
	fmt.Fprintf(out, "fingers:  %d\n", s.RequiredFingers)
	ui := "idle"
	if s.UI.Active {
		ui = "active"
	}
	fmt.Fprintf(out, "ui:       %s (slot %d, release confirm %t)\n", ui, s.UI.Slot, s.UI.ReleaseConfirm)
	if len(s.Devices) == 0 {
		fmt.Fprintln(out, "devices:  none")
		return
	}
	fmt.Fprintln(out, "devices:")
	for _, d := range s.Devices {
		fmt.Fprintf(out, "  %s: frames=%d gestures=%d acc=(%.2f, %.2f)\n",
			d.Name, d.Frames, d.Gestures, d.Accumulator.X, d.Accumulator.Y)
	}
}

// parseVelocity parses "x,y".
func parseVelocity(s string) (Velocity, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Velocity{}, fmt.Errorf("finger %q: expected x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return Velocity{}, fmt.Errorf("finger %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return Velocity{}, fmt.Errorf("finger %q: %w", s, err)
	}
	return Velocity{X: x, Y: y}, nil
}

// directionVelocity maps a direction name to a velocity of magnitude step.
// Positive Y is upward.
func directionVelocity(dir string, step float64) (Velocity, error) {
	if step <= 0 {
		return Velocity{}, fmt.Errorf("step must be positive, got %g", step)
	}
	switch dir {
	case "left":
		return Velocity{X: -step}, nil
	case "right":
		return Velocity{X: step}, nil
	case "up":
		return Velocity{Y: step}, nil
	case "down":
		return Velocity{Y: -step}, nil
	default:
		return Velocity{}, fmt.Errorf("unknown direction %q", dir)
	}
}

func swipeFrames(device string, fingers, frames int, v Velocity, hold bool) []Action {
	actions := make([]Action, 0, frames+1)
	for i := 0; i < frames; i++ {
		f := InjectFrame{Device: device, Fingers: make([]Velocity, fingers)}
		for j := range f.Fingers {
			f.Fingers[j] = v
		}
		actions = append(actions, f)
	}
	if !hold {
		actions = append(actions, InjectFrame{Device: device, Fingers: []Velocity{}})
	}
	return actions
}
