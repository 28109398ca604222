package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are gesture hooks and snapshot replies.
type Command interface {
	commandMarker()
	String() string
}

// CmdDispatchGesture hands a recognized gesture to the hook runner.
type CmdDispatchGesture struct {
	Device  string
	Gesture GestureEvent
	At      time.Time
}

func (CmdDispatchGesture) commandMarker() {}
func (c CmdDispatchGesture) String() string {
	return fmt.Sprintf("CmdDispatchGesture(device=%s, gesture=%s)", c.Device, c.Gesture.Name())
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Snapshots
// ==============================

// StateSnapshot is a read-only copy of DaemonState, safe to hand to other goroutines.
type StateSnapshot struct {
	Enabled         bool             `json:"enabled"`
	RequiredFingers int              `json:"required_fingers"`
	UI              UISnapshot       `json:"ui"`
	Devices         []DeviceSnapshot `json:"devices"`
}

type UISnapshot struct {
	Active         bool `json:"active"`
	Slot           int  `json:"slot"`
	ReleaseConfirm bool `json:"release_confirm"`
}

type DeviceSnapshot struct {
	Name        string      `json:"name"`
	AttachedAt  time.Time   `json:"attached_at"`
	LastFrameAt time.Time   `json:"last_frame_at"`
	Frames      uint64      `json:"frames"`
	Gestures    uint64      `json:"gestures"`
	Accumulator Accumulator `json:"accumulator"`
}
