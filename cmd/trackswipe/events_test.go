package main

import (
	"reflect"
	"strings"
	"testing"
)

func TestEventCodec_RoundTrip(t *testing.T) {
	cases := []Event{
		SetUIPhase{Active: true, Slot: 5},
		SetEnabled{Enabled: false},
		SetFingerMode{Fingers: 4},
		InjectFrame{Device: "pad", Fingers: []Velocity{{X: 1.5, Y: -0.5}, {X: 1, Y: 0}}},
		ResetRecognizers{},
	}

	for _, ev := range cases {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", ev, err)
		}
		got, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !reflect.DeepEqual(got, ev) {
			t.Errorf("expected %#v, got %#v", ev, got)
		}
	}
}

func TestUnmarshalEvent_WireFormat(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"set_ui_phase","data":{"active":true,"slot":2}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != (SetUIPhase{Active: true, Slot: 2}) {
		t.Errorf("unexpected event %#v", ev)
	}
}

func TestUnmarshalEvent_InjectDefaultsDevice(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"inject_frame","data":{"fingers":[{"x":1,"y":0}]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inj, ok := ev.(InjectFrame)
	if !ok {
		t.Fatalf("expected InjectFrame, got %T", ev)
	}
	if inj.Device != injectedDevice {
		t.Errorf("expected device %q, got %q", injectedDevice, inj.Device)
	}
}

func TestUnmarshalEvent_Errors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: `not json`, want: "unmarshal envelope"},
		{in: `{"type":"launch_rockets"}`, want: "unknown event type"},
		{in: `{"type":"set_finger_mode","data":{"fingers":5}}`, want: "fingers must be 3 or 4"},
		{in: `{"type":"set_enabled","data":"yes"}`, want: "unmarshal SetEnabled"},
	}
	for _, tc := range cases {
		_, err := UnmarshalEvent([]byte(tc.in))
		if err == nil {
			t.Errorf("%s: expected error", tc.in)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.in, tc.want, err)
		}
	}
}

func TestMarshalEvent_RejectsInternalEvents(t *testing.T) {
	if _, err := MarshalEvent(TouchFrameReceived{Device: "pad"}); err == nil {
		t.Fatalf("expected error for internal event")
	}
}
