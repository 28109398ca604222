package main

import (
	"fmt"
	"math"
)

// Direction is the direction of a cycle swipe.
type Direction int

const (
	DirectionLeft Direction = iota
	DirectionRight
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// MarshalText implements encoding.TextMarshaler so directions serialize as "left", "up", ...
func (d Direction) MarshalText() ([]byte, error) {
	switch d {
	case DirectionLeft, DirectionRight, DirectionUp, DirectionDown:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*d = DirectionLeft
	case "right":
		*d = DirectionRight
	case "up":
		*d = DirectionUp
	case "down":
		*d = DirectionDown
	default:
		return fmt.Errorf("invalid direction %q", string(b))
	}
	return nil
}

// ============================================================================
// Gesture events (recognizer output)
// ============================================================================

// GestureEvent is a discrete swipe emitted by the recognizer.
// The set of implementations is closed: ShowOrCycle, Cycle, ReleaseConfirm.
type GestureEvent interface {
	gestureMarker()
	// Name is the stable identifier used on the wire and for hook lookup.
	Name() string
}

// ShowOrCycle asks the UI to appear (or advance, if it already is) on Slot.
type ShowOrCycle struct {
	Slot int
}

func (ShowOrCycle) gestureMarker() {}
func (ShowOrCycle) Name() string   { return "show_or_cycle" }

// Cycle moves the UI selection one step in Direction.
type Cycle struct {
	Direction Direction
	AllowWrap bool
}

func (Cycle) gestureMarker() {}
func (c Cycle) Name() string { return "cycle_" + c.Direction.String() }

// ReleaseConfirm confirms the current selection when the fingers lift.
type ReleaseConfirm struct{}

func (ReleaseConfirm) gestureMarker() {}
func (ReleaseConfirm) Name() string   { return "release_confirm" }

// ============================================================================
// Recognizer input
// ============================================================================

// Velocity is a per-finger velocity in normalized device units.
// Positive X is rightward, positive Y is upward.
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TouchFrame is one hardware sample: one velocity per finger currently touching.
type TouchFrame struct {
	Fingers []Velocity
}

// FingerCount returns the number of fingers in the frame.
func (f TouchFrame) FingerCount() int {
	return len(f.Fingers)
}

// UIPhase is the consuming UI's presentation state as seen by the recognizer.
type UIPhase struct {
	// Active is true while the UI is presented. Selects cycle behavior over reveal behavior.
	Active bool

	// ReleaseConfirm is true when the slot the UI is showing has a confirm-on-release binding.
	ReleaseConfirm bool
}

// ============================================================================
// Recognizer
// ============================================================================

// RecognizerConfig contains the tunables for a GestureRecognizer.
type RecognizerConfig struct {
	// ShowThreshold is the horizontal displacement that reveals the UI.
	ShowThreshold float64

	// CycleThreshold is the displacement on either axis that cycles the selection.
	CycleThreshold float64

	// Slot is reported in ShowOrCycle events.
	Slot int
}

// Accumulator is a read-only copy of a recognizer's integration state.
type Accumulator struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	ExtendNextX     bool    `json:"extend_next_x"`
	LastFingerCount int     `json:"last_finger_count"`
}

// GestureRecognizer integrates touch frames from one device and emits swipe gestures.
//
// It performs no I/O and no locking. A recognizer must be owned by exactly one goroutine
// (here: the daemon loop); frames from different devices go to different recognizers.
type GestureRecognizer struct {
	cfg RecognizerConfig

	totalX float64
	totalY float64

	// extendNextX widens the rightward cycle threshold once, after a reveal swipe,
	// so the remainder of that same swipe does not immediately cycle as well.
	extendNextX bool

	lastFingerCount int
}

// NewGestureRecognizer creates a recognizer. Zero thresholds fall back to the defaults.
func NewGestureRecognizer(cfg RecognizerConfig) *GestureRecognizer {
	if cfg.ShowThreshold == 0 {
		cfg.ShowThreshold = defaultShowThreshold
	}
	if cfg.CycleThreshold == 0 {
		cfg.CycleThreshold = defaultCycleThreshold
	}
	return &GestureRecognizer{cfg: cfg}
}

// ProcessFrame consumes one frame and returns the gestures it completes, in order.
// It returns nil when the frame completes nothing.
func (r *GestureRecognizer) ProcessFrame(frame TouchFrame, requiredFingers int, ui UIPhase) []GestureEvent {
	n := frame.FingerCount()

	// Touch end or wrong finger count breaks the run.
	if n != requiredFingers {
		var out []GestureEvent
		if r.lastFingerCount >= requiredFingers && ui.Active && ui.ReleaseConfirm {
			out = append(out, ReleaseConfirm{})
		}
		r.clear()
		r.lastFingerCount = n
		return out
	}

	r.lastFingerCount = n

	var sumX, sumY float64
	allRight, allLeft, allUp, allDown := true, true, true, true
	for _, v := range frame.Fingers {
		allRight = allRight && v.X > 0
		allLeft = allLeft && v.X < 0
		allUp = allUp && v.Y > 0
		allDown = allDown && v.Y < 0

		sumX += v.X
		sumY += v.Y
	}

	// Fingers must agree on a direction; an ambiguous frame is skipped without
	// cancelling the gesture in progress.
	if !allRight && !allLeft && !allUp && !allDown {
		return nil
	}

	r.totalX += sumX / float64(n)
	r.totalY += sumY / float64(n)

	if !ui.Active {
		if math.Abs(r.totalX) > r.cfg.ShowThreshold && math.Abs(r.totalY) < r.cfg.ShowThreshold {
			r.totalX = 0
			r.extendNextX = true
			return []GestureEvent{ShowOrCycle{Slot: r.cfg.Slot}}
		}
		return nil
	}

	var out []GestureEvent

	if math.Abs(r.totalX) > r.cfg.CycleThreshold {
		extended := 2*r.cfg.CycleThreshold - r.cfg.ShowThreshold
		if !r.extendNextX || r.totalX < 0 || r.totalX > extended {
			dir := DirectionRight
			if r.totalX < 0 {
				dir = DirectionLeft
			}
			out = append(out, Cycle{Direction: dir, AllowWrap: false})
			r.totalX = 0
			r.extendNextX = false
		}
	}

	// No extended threshold on Y: the reveal swipe is horizontal.
	if math.Abs(r.totalY) > r.cfg.CycleThreshold {
		dir := DirectionUp
		if r.totalY < 0 {
			dir = DirectionDown
		}
		out = append(out, Cycle{Direction: dir, AllowWrap: false})
		r.totalY = 0
	}

	return out
}

// Reset clears all integration state, including the last observed finger count.
func (r *GestureRecognizer) Reset() {
	r.clear()
	r.lastFingerCount = 0
}

// Snapshot returns a copy of the integration state.
func (r *GestureRecognizer) Snapshot() Accumulator {
	return Accumulator{
		X:               r.totalX,
		Y:               r.totalY,
		ExtendNextX:     r.extendNextX,
		LastFingerCount: r.lastFingerCount,
	}
}

// Config returns the recognizer's effective configuration.
func (r *GestureRecognizer) Config() RecognizerConfig {
	return r.cfg
}

func (r *GestureRecognizer) clear() {
	r.totalX = 0
	r.totalY = 0
	r.extendNextX = false
}
