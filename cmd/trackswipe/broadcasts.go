package main

import "time"

// StateBroadcast is a reducer-emitted notification for websocket clients.
// The reducer decides what changed; the broadcaster only serializes and fans out.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastGesture announces a recognized gesture. Never coalesced.
type BroadcastGesture struct {
	Device  string
	Gesture GestureEvent
	At      time.Time
}

func (BroadcastGesture) broadcastMarker() {}

// BroadcastUIPhaseChanged is emitted when the UI phase or slot changes.
type BroadcastUIPhaseChanged struct {
	Active         bool
	Slot           int
	ReleaseConfirm bool
	At             time.Time
}

func (BroadcastUIPhaseChanged) broadcastMarker() {}

// BroadcastSettingsChanged is emitted when recognition is toggled or the finger mode changes.
type BroadcastSettingsChanged struct {
	Enabled         bool
	RequiredFingers int
	At              time.Time
}

func (BroadcastSettingsChanged) broadcastMarker() {}

// BroadcastDeviceChanged is emitted when a touch device attaches or is lost.
type BroadcastDeviceChanged struct {
	Device   string
	Attached bool
	Error    string
	At       time.Time
}

func (BroadcastDeviceChanged) broadcastMarker() {}

// BroadcastAccumulator is a telemetry sample of one device's accumulator.
// The broadcaster coalesces these latest-wins per device.
type BroadcastAccumulator struct {
	Device      string
	Accumulator Accumulator
	At          time.Time
}

func (BroadcastAccumulator) broadcastMarker() {}
