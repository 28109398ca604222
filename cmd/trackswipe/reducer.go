package main

import "time"

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (touch frames, device lifecycle, client actions)
//   - Commands: side effects requested by the reducer (gesture hooks, snapshot replies)
//   - Broadcasts: state notifications for websocket clients
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The recognizers are part of DaemonState, so Reduce is their only caller.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent wraps an event with the time the daemon loop received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ==============================
// Reducer
// ==============================

// ReducerConfig is the static configuration the reducer needs.
type ReducerConfig struct {
	Recognizer RecognizerConfig

	// RequiredFingers is the initial finger mode.
	RequiredFingers int

	// ReleaseConfirm enables the release-confirm binding for BindingSlot.
	ReleaseConfirm bool
	BindingSlot    int

	// TrackUILocally makes ShowOrCycle/ReleaseConfirm drive the UI phase
	// for setups where the UI does not report it back.
	TrackUILocally bool

	// Telemetry emits an accumulator broadcast for every processed frame.
	Telemetry bool
}

// ReduceResult is the output of Reduce(): next state plus Commands to execute and
// Broadcasts to publish, both in emission order.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop must:
// - execute Commands
// - publish Broadcasts
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(cfg)
	}

	r := ReduceResult{State: s}

	var at time.Time
	if te, ok := e.(TimedEvent); ok {
		e, at = te.Event, te.At
	}

	switch ev := e.(type) {
	case TouchFrameReceived:
		if !ev.At.IsZero() {
			at = ev.At
		}
		r.frame(ev.Device, ev.Frame, at, cfg)

	case InjectFrame:
		r.frame(ev.Device, TouchFrame{Fingers: ev.Fingers}, at, cfg)

	case SetUIPhase:
		r.setUI(ev.Active, ev.Slot, at, cfg)

	case SetEnabled:
		if s.Enabled == ev.Enabled {
			break
		}
		s.Enabled = ev.Enabled
		if !s.Enabled {
			s.resetRecognizers()
		}
		r.settingsChanged(at)

	case SetFingerMode:
		if ev.Fingers != 3 && ev.Fingers != 4 {
			break
		}
		if s.RequiredFingers == ev.Fingers {
			break
		}
		s.RequiredFingers = ev.Fingers
		s.resetRecognizers()
		r.settingsChanged(at)

	case ResetRecognizers:
		s.resetRecognizers()

	case DeviceAttached:
		if !ev.At.IsZero() {
			at = ev.At
		}
		s.device(ev.Device, cfg, at)
		r.Broadcasts = append(r.Broadcasts, BroadcastDeviceChanged{Device: ev.Device, Attached: true, At: at})

	case DeviceLost:
		if !ev.At.IsZero() {
			at = ev.At
		}
		delete(s.Devices, ev.Device)
		b := BroadcastDeviceChanged{Device: ev.Device, At: at}
		if ev.Err != nil {
			b.Error = ev.Err.Error()
		}
		r.Broadcasts = append(r.Broadcasts, b)

	case RequestStateSnapshot:
		r.Commands = append(r.Commands, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(cfg),
		})

	default:
		// Unknown event type: no-op.
	}

	return r
}

// frame runs one touch frame through the device's recognizer.
func (r *ReduceResult) frame(device string, f TouchFrame, at time.Time, cfg ReducerConfig) {
	s := r.State
	if !s.Enabled {
		return
	}

	d := s.device(device, cfg, at)
	d.Frames++
	d.LastFrameAt = at

	gestures := d.Recognizer.ProcessFrame(f, s.RequiredFingers, s.uiPhase(cfg))
	for _, g := range gestures {
		d.Gestures++
		r.Commands = append(r.Commands, CmdDispatchGesture{Device: device, Gesture: g, At: at})
		r.Broadcasts = append(r.Broadcasts, BroadcastGesture{Device: device, Gesture: g, At: at})
	}

	if cfg.Telemetry {
		r.Broadcasts = append(r.Broadcasts, BroadcastAccumulator{
			Device:      device,
			Accumulator: d.Recognizer.Snapshot(),
			At:          at,
		})
	}

	if !cfg.TrackUILocally {
		return
	}
	for _, g := range gestures {
		switch g := g.(type) {
		case ShowOrCycle:
			r.setUI(true, g.Slot, at, cfg)
		case ReleaseConfirm:
			r.setUI(false, s.UI.Slot, at, cfg)
		}
	}
}

func (r *ReduceResult) setUI(active bool, slot int, at time.Time, cfg ReducerConfig) {
	s := r.State
	if s.UI.Active == active && s.UI.Slot == slot {
		return
	}
	s.UI = UIState{Active: active, Slot: slot, ChangedAt: at}

	r.Broadcasts = append(r.Broadcasts, BroadcastUIPhaseChanged{
		Active:         active,
		Slot:           slot,
		ReleaseConfirm: s.uiPhase(cfg).ReleaseConfirm,
		At:             at,
	})
}

func (r *ReduceResult) settingsChanged(at time.Time) {
	r.Broadcasts = append(r.Broadcasts, BroadcastSettingsChanged{
		Enabled:         r.State.Enabled,
		RequiredFingers: r.State.RequiredFingers,
		At:              at,
	})
}
