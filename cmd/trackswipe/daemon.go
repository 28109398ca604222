package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven "Daemon Brain"
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects.
//   - The daemon loop is the only goroutine that touches DaemonState, and with it
//     every GestureRecognizer.
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from multiple sources (input readers, IPC, websocket)
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and forwards broadcasts to the websocket broadcaster
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	cfg ReducerConfig,
	state *DaemonState,
	hooks gestureDispatcher,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		state = NewDaemonState(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}

			rr := Reduce(state, TimedEvent{Event: ev, At: time.Now()}, cfg)
			if rr.State != nil {
				state = rr.State
			}

			for _, cmd := range rr.Commands {
				runEffect(hooks, cmd, logger)
			}

			if !publishBroadcasts(ctx, broadcasts, rr.Broadcasts) {
				logger.Info("daemon stopping (context canceled)")
				return
			}
		}
	}
}

// publishBroadcasts forwards bs in order. It blocks so that gestures are never
// dropped or reordered; the broadcaster never blocks on clients. It returns false
// if ctx was canceled first.
func publishBroadcasts(ctx context.Context, dst chan<- StateBroadcast, bs []StateBroadcast) bool {
	if dst == nil {
		return true
	}
	for _, b := range bs {
		select {
		case dst <- b:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
