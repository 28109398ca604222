package main

// Linux input event types and codes (from <linux/input.h> and <linux/input-event-codes.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03

	SYN_REPORT  = 0
	SYN_DROPPED = 3

	// Multitouch protocol B
	ABS_MT_SLOT        = 0x2f
	ABS_MT_POSITION_X  = 0x35
	ABS_MT_POSITION_Y  = 0x36
	ABS_MT_TRACKING_ID = 0x39
)

// Gesture recognition defaults
const (
	defaultShowThreshold  = 1.0 // Horizontal displacement that reveals the UI
	defaultCycleThreshold = 5.0 // Displacement on either axis that cycles the selection
	defaultFingers        = 3   // Required finger count (3 or 4)
	defaultGestureSlot    = 5   // Slot reported by ShowOrCycle and checked for release-confirm

	// Velocities are normalized axis widths per second, scaled by this factor.
	defaultVelocityScale = 1.0

	// Maximum number of multitouch slots tracked per device.
	maxMTSlots = 16
)

// Daemon defaults
const (
	defaultIPCSocketPath = "/tmp/trackswipe.sock"
	defaultHTTPAddr      = "127.0.0.1:3002"
	defaultWSPath        = "/ws"
	defaultHookTimeoutMS = 2000
	defaultHookQueue     = 32
	eventQueueSize       = 256
)
