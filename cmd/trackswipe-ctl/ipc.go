package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Action types (duplicated from the daemon package for a standalone binary)
type Action interface{}

type SetUIPhase struct {
	Active bool `json:"active"`
	Slot   int  `json:"slot"`
}

type SetEnabled struct {
	Enabled bool `json:"enabled"`
}

type SetFingerMode struct {
	Fingers int `json:"fingers"`
}

type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type InjectFrame struct {
	Device  string     `json:"device,omitempty"`
	Fingers []Velocity `json:"fingers"`
}

type ResetRecognizers struct{}

// getState is answered with a snapshot instead of being queued.
type getState struct{}

// ActionEnvelope wraps actions for JSON
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	State  *StateSnapshot `json:"state,omitempty"`
}

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

type Accumulator struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	ExtendNextX     bool    `json:"extend_next_x"`
	LastFingerCount int     `json:"last_finger_count"`
}

// ipcClient sends line-delimited JSON actions over one connection.
type ipcClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialIPC(socketPath string, timeout time.Duration) (*ipcClient, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &ipcClient{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *ipcClient) Close() error { return c.conn.Close() }

// Send writes one action and waits for the daemon's response.
func (c *ipcClient) Send(action Action) (IPCResponse, error) {
	data, err := marshalAction(action)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal action: %w", err)
	}

	if _, err := fmt.Fprintf(c.conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send action: %w", err)
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return IPCResponse{}, fmt.Errorf("read response: %w", err)
	}

	var response IPCResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}

	return response, nil
}

func marshalAction(action Action) ([]byte, error) {
	var env ActionEnvelope

	switch a := action.(type) {
	case SetUIPhase:
		env.Type = "set_ui_phase"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetUIPhase: %w", err)
		}
		env.Data = data

	case SetEnabled:
		env.Type = "set_enabled"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetEnabled: %w", err)
		}
		env.Data = data

	case SetFingerMode:
		env.Type = "set_finger_mode"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetFingerMode: %w", err)
		}
		env.Data = data

	case InjectFrame:
		env.Type = "inject_frame"
		if a.Fingers == nil {
			a.Fingers = []Velocity{}
		}
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal InjectFrame: %w", err)
		}
		env.Data = data

	case ResetRecognizers:
		env.Type = "reset"

	case getState:
		env.Type = "get_state"

	default:
		return nil, fmt.Errorf("unknown action type: %T", action)
	}

	return json.Marshal(env)
}
