package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Actions
// ============================================================================
// Actions represent intent from outside the daemon (IPC clients, websocket UI
// clients, trackswipe-ctl). They are reduced by the daemon loop like any other
// Event; the daemon assigns timestamps via TimedEvent.
// ============================================================================

// SetUIPhase reports the UI's presentation state.
type SetUIPhase struct {
	Active bool `json:"active"`
	Slot   int  `json:"slot"` // slot the UI is currently showing
}

func (SetUIPhase) eventMarker() {}

// SetEnabled turns gesture recognition on or off. Devices keep being read.
type SetEnabled struct {
	Enabled bool `json:"enabled"`
}

func (SetEnabled) eventMarker() {}

// SetFingerMode selects the gesture style: 3 or 4 finger swipes.
type SetFingerMode struct {
	Fingers int `json:"fingers"`
}

func (SetFingerMode) eventMarker() {}

// InjectFrame submits a synthetic touch frame, as if read from Device.
type InjectFrame struct {
	Device  string     `json:"device"`
	Fingers []Velocity `json:"fingers"`
}

func (InjectFrame) eventMarker() {}

// ResetRecognizers clears the accumulator of every device.
type ResetRecognizers struct{}

func (ResetRecognizers) eventMarker() {}

// ============================================================================
// Internal Events
// ============================================================================

// TouchFrameReceived carries one assembled frame from a touch device.
type TouchFrameReceived struct {
	Device string
	Frame  TouchFrame
	At     time.Time
}

func (TouchFrameReceived) eventMarker() {}

// DeviceAttached is emitted once a touch device has been opened.
type DeviceAttached struct {
	Device string
	At     time.Time
}

func (DeviceAttached) eventMarker() {}

// DeviceLost is emitted when reading from a touch device fails.
type DeviceLost struct {
	Device string
	Err    error
	At     time.Time
}

func (DeviceLost) eventMarker() {}

// RequestStateSnapshot asks the daemon loop to publish a StateSnapshot on Reply.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps actions for JSON serialization/deserialization.
// Since Go doesn't have union types, we use a type discriminator.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete action event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "set_ui_phase":
		var a SetUIPhase
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetUIPhase: %w", err)
		}
		return a, nil

	case "set_enabled":
		var a SetEnabled
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetEnabled: %w", err)
		}
		return a, nil

	case "set_finger_mode":
		var a SetFingerMode
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetFingerMode: %w", err)
		}
		if err := validateFingers(a.Fingers); err != nil {
			return nil, err
		}
		return a, nil

	case "inject_frame":
		var a InjectFrame
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal InjectFrame: %w", err)
		}
		if a.Device == "" {
			a.Device = injectedDevice
		}
		return a, nil

	case "reset":
		return ResetRecognizers{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an action event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case SetUIPhase:
		env.Type = "set_ui_phase"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetUIPhase: %w", err)
		}
		env.Data = data

	case SetEnabled:
		env.Type = "set_enabled"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetEnabled: %w", err)
		}
		env.Data = data

	case SetFingerMode:
		env.Type = "set_finger_mode"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetFingerMode: %w", err)
		}
		env.Data = data

	case InjectFrame:
		env.Type = "inject_frame"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal InjectFrame: %w", err)
		}
		env.Data = data

	case ResetRecognizers:
		env.Type = "reset"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}

// injectedDevice is the device name used for injected frames that do not name one.
const injectedDevice = "injected"

func validateFingers(n int) error {
	if n != 3 && n != 4 {
		return fmt.Errorf("fingers must be 3 or 4, got %d", n)
	}
	return nil
}
