package main

import (
	"sort"
	"time"
)

// DaemonState is the top-level, daemon-owned state container.
//
// Only the daemon loop touches it. Recognizers live here too, which makes the
// loop their single writer; other goroutines see state only through
// StateSnapshot values produced by the reducer.
type DaemonState struct {
	// Enabled gates recognition. Frames arriving while disabled are dropped.
	Enabled bool

	// RequiredFingers is the active gesture style (3 or 4).
	RequiredFingers int

	// UI is the last presentation state reported by (or tracked for) the UI.
	UI UIState

	// Devices holds one entry per touch source that attached or produced frames.
	Devices map[string]*DeviceState
}

// UIState is what the daemon knows about the switcher UI.
type UIState struct {
	Active bool
	Slot   int

	ChangedAt time.Time
}

// DeviceState is the per-device recognizer plus bookkeeping for snapshots.
type DeviceState struct {
	Recognizer *GestureRecognizer

	AttachedAt  time.Time
	LastFrameAt time.Time
	Frames      uint64
	Gestures    uint64
}

// NewDaemonState returns the initial state for cfg.
func NewDaemonState(cfg ReducerConfig) *DaemonState {
	fingers := cfg.RequiredFingers
	if fingers == 0 {
		fingers = defaultFingers
	}
	return &DaemonState{
		Enabled:         true,
		RequiredFingers: fingers,
		Devices:         make(map[string]*DeviceState),
	}
}

// device returns the state for name, creating it (with a fresh recognizer) if needed.
func (s *DaemonState) device(name string, cfg ReducerConfig, now time.Time) *DeviceState {
	if s.Devices == nil {
		s.Devices = make(map[string]*DeviceState)
	}
	d, ok := s.Devices[name]
	if !ok {
		d = &DeviceState{
			Recognizer: NewGestureRecognizer(cfg.Recognizer),
			AttachedAt: now,
		}
		s.Devices[name] = d
	}
	return d
}

// uiPhase derives the recognizer's view of the UI.
// A release-confirm binding applies only while the UI shows the bound slot.
func (s *DaemonState) uiPhase(cfg ReducerConfig) UIPhase {
	return UIPhase{
		Active:         s.UI.Active,
		ReleaseConfirm: cfg.ReleaseConfirm && s.UI.Slot == cfg.BindingSlot,
	}
}

func (s *DaemonState) resetRecognizers() {
	for _, d := range s.Devices {
		d.Recognizer.Reset()
	}
}

// Snapshot copies the externally visible state.
func (s *DaemonState) Snapshot(cfg ReducerConfig) StateSnapshot {
	snap := StateSnapshot{
		Enabled:         s.Enabled,
		RequiredFingers: s.RequiredFingers,
		UI: UISnapshot{
			Active:         s.UI.Active,
			Slot:           s.UI.Slot,
			ReleaseConfirm: s.uiPhase(cfg).ReleaseConfirm,
		},
		Devices: make([]DeviceSnapshot, 0, len(s.Devices)),
	}

	for name, d := range s.Devices {
		snap.Devices = append(snap.Devices, DeviceSnapshot{
			Name:        name,
			AttachedAt:  d.AttachedAt,
			LastFrameAt: d.LastFrameAt,
			Frames:      d.Frames,
			Gestures:    d.Gestures,
			Accumulator: d.Recognizer.Snapshot(),
		})
	}
	sort.Slice(snap.Devices, func(i, j int) bool {
		return snap.Devices[i].Name < snap.Devices[j].Name
	})

	return snap
}
