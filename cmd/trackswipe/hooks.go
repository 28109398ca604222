package main

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// ============================================================================
// Gesture Hooks
// ============================================================================
// Hooks are external commands run for recognized gestures, configured per
// gesture name (show_or_cycle, cycle_left, ..., release_confirm).
//
// One worker runs them one at a time in dispatch order. The daemon loop only
// enqueues; when the queue is full the hook is dropped with a warning so that
// recognition never waits on a slow script.
// ============================================================================

// hookJob is one pending hook invocation.
type hookJob struct {
	Device  string
	Gesture GestureEvent
	At      time.Time
	Argv    []string
}

// HookRunner executes configured gesture hooks on a single worker goroutine.
type HookRunner struct {
	logger   *slog.Logger
	commands map[string][]string
	timeout  time.Duration
	jobs     chan hookJob
}

// NewHookRunner builds a runner from cfg. Call Run(ctx) to start the worker.
func NewHookRunner(cfg HooksConfig, logger *slog.Logger) *HookRunner {
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = defaultHookQueue
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultHookTimeoutMS * time.Millisecond
	}

	commands := make(map[string][]string, len(cfg.Commands))
	for name, argv := range cfg.Commands {
		if len(argv) > 0 {
			commands[name] = argv
		}
	}

	return &HookRunner{
		logger:   logger,
		commands: commands,
		timeout:  timeout,
		jobs:     make(chan hookJob, queue),
	}
}

// Dispatch enqueues the hook for g, if one is configured. It never blocks and
// reports whether a hook was queued.
func (h *HookRunner) Dispatch(device string, g GestureEvent, at time.Time) bool {
	if h == nil {
		return false
	}
	argv, ok := h.commands[g.Name()]
	if !ok {
		return false
	}

	select {
	case h.jobs <- hookJob{Device: device, Gesture: g, At: at, Argv: argv}:
		return true
	default:
		h.logger.Warn("hook queue full, dropping hook", "gesture", g.Name(), "device", device)
		return false
	}
}

// Run executes queued hooks until ctx is canceled.
func (h *HookRunner) Run(ctx context.Context) error {
	h.logger.Debug("hook runner starting", "hooks", len(h.commands), "timeout", h.timeout)
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("hook runner stopping (context canceled)")
			return nil
		case job := <-h.jobs:
			h.run(ctx, job)
		}
	}
}

func (h *HookRunner) run(ctx context.Context, job hookJob) {
	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, job.Argv[0], job.Argv[1:]...)
	cmd.Env = append(os.Environ(), hookEnv(job)...)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		h.logger.Warn("hook failed",
			"gesture", job.Gesture.Name(),
			"device", job.Device,
			"command", job.Argv[0],
			"elapsed", elapsed,
			"error", err,
			"output", string(out))
		return
	}
	h.logger.Debug("hook finished", "gesture", job.Gesture.Name(), "device", job.Device, "elapsed", elapsed)
}

// hookEnv returns the TRACKSWIPE_* variables describing job.
func hookEnv(job hookJob) []string {
	env := []string{
		"TRACKSWIPE_GESTURE=" + job.Gesture.Name(),
		"TRACKSWIPE_DEVICE=" + job.Device,
	}
	switch g := job.Gesture.(type) {
	case ShowOrCycle:
		env = append(env, "TRACKSWIPE_SLOT="+strconv.Itoa(g.Slot))
	case Cycle:
		env = append(env, "TRACKSWIPE_DIRECTION="+g.Direction.String())
	}
	return env
}
