package main

import (
	"log/slog"
	"time"
)

// gestureDispatcher is the effects-side sink for recognized gestures.
// *HookRunner implements it.
type gestureDispatcher interface {
	Dispatch(device string, g GestureEvent, at time.Time) bool
}

// runEffect executes a single reducer-emitted Command.
//
// Design rules:
// - This function is allowed to perform I/O, but must not block: hooks are queued,
//   snapshot replies are dropped if the requester is not ready.
// - It must never call Reduce() directly.
func runEffect(hooks gestureDispatcher, cmd Command, logger *slog.Logger) {
	switch c := cmd.(type) {
	case CmdDispatchGesture:
		logger.Info("gesture", "gesture", c.Gesture.Name(), "device", c.Device)
		if hooks != nil {
			hooks.Dispatch(c.Device, c.Gesture, c.At)
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop indefinitely.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}
