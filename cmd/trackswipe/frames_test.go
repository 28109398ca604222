package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

// evAt builds an input event with a timestamp at ms milliseconds.
func evAt(ms int64, typ, code uint16, value int32) inputEvent {
	return inputEvent{
		Sec:   ms / 1000,
		Usec:  (ms % 1000) * 1000,
		Type:  typ,
		Code:  code,
		Value: value,
	}
}

// feedAll feeds events and returns every emitted frame.
func feedAll(a *mtAssembler, evs ...inputEvent) []TouchFrame {
	var frames []TouchFrame
	for _, ev := range evs {
		if f, ok := a.feed(ev); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// touch emits the events for a finger in slot at (x, y).
func touch(ms int64, slot, id, x, y int32) []inputEvent {
	return []inputEvent{
		evAt(ms, EV_ABS, ABS_MT_SLOT, slot),
		evAt(ms, EV_ABS, ABS_MT_TRACKING_ID, id),
		evAt(ms, EV_ABS, ABS_MT_POSITION_X, x),
		evAt(ms, EV_ABS, ABS_MT_POSITION_Y, y),
	}
}

func move(ms int64, slot, x, y int32) []inputEvent {
	return []inputEvent{
		evAt(ms, EV_ABS, ABS_MT_SLOT, slot),
		evAt(ms, EV_ABS, ABS_MT_POSITION_X, x),
		evAt(ms, EV_ABS, ABS_MT_POSITION_Y, y),
	}
}

func syn(ms int64) inputEvent {
	return evAt(ms, EV_SYN, SYN_REPORT, 0)
}

func seq(parts ...[]inputEvent) []inputEvent {
	var out []inputEvent
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestMTAssembler_FirstReportHasZeroVelocity(t *testing.T) {
	a := newMTAssembler(axisRange{Min: 0, Max: 1000}, axisRange{Min: 0, Max: 500}, 1)

	frames := feedAll(a, seq(touch(0, 0, 10, 100, 100), touch(0, 1, 11, 200, 100), []inputEvent{syn(0)})...)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.FingerCount() != 2 {
		t.Fatalf("expected 2 fingers, got %d", f.FingerCount())
	}
	for i, v := range f.Fingers {
		if v != (Velocity{}) {
			t.Errorf("finger %d: expected zero velocity on first report, got %+v", i, v)
		}
	}
}

func TestMTAssembler_VelocityNormalizedAndYInverted(t *testing.T) {
	a := newMTAssembler(axisRange{Min: 0, Max: 1000}, axisRange{Min: 0, Max: 500}, 1)

	feedAll(a, seq(touch(0, 0, 10, 100, 300), []inputEvent{syn(0)})...)

	// 10ms later: +50 in x (0.05 widths), -25 in y (moved up by 0.05 heights).
	frames := feedAll(a, seq(move(10, 0, 150, 275), []inputEvent{syn(10)})...)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	v := frames[0].Fingers[0]
	if !approx(v.X, 5.0) {
		t.Errorf("expected x velocity 5.0 widths/s, got %v", v.X)
	}
	if !approx(v.Y, 5.0) {
		t.Errorf("expected y velocity +5.0 (up), got %v", v.Y)
	}
}

func TestMTAssembler_Scale(t *testing.T) {
	a := newMTAssembler(axisRange{Min: 0, Max: 100}, axisRange{Min: 0, Max: 100}, 0.5)
	feedAll(a, seq(touch(0, 0, 1, 0, 0), []inputEvent{syn(0)})...)
	frames := feedAll(a, seq(move(1000, 0, 10, 0), []inputEvent{syn(1000)})...)
	if v := frames[0].Fingers[0]; !approx(v.X, 0.05) {
		t.Errorf("expected scaled velocity 0.05, got %v", v.X)
	}
}

func TestMTAssembler_Lift(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)

	feedAll(a, seq(
		touch(0, 0, 1, 0, 0),
		touch(0, 1, 2, 0, 0),
		touch(0, 2, 3, 0, 0),
		[]inputEvent{syn(0)},
	)...)

	frames := feedAll(a,
		evAt(10, EV_ABS, ABS_MT_SLOT, 1),
		evAt(10, EV_ABS, ABS_MT_TRACKING_ID, -1),
		syn(10),
	)
	if len(frames) != 1 || frames[0].FingerCount() != 2 {
		t.Fatalf("expected a 2-finger frame after one lift, got %+v", frames)
	}

	frames = feedAll(a,
		evAt(20, EV_ABS, ABS_MT_SLOT, 0),
		evAt(20, EV_ABS, ABS_MT_TRACKING_ID, -1),
		evAt(20, EV_ABS, ABS_MT_SLOT, 2),
		evAt(20, EV_ABS, ABS_MT_TRACKING_ID, -1),
		syn(20),
	)
	if len(frames) != 1 || frames[0].FingerCount() != 0 {
		t.Fatalf("expected an empty frame after all lifts, got %+v", frames)
	}
}

func TestMTAssembler_NewContactStartsWithZeroVelocity(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)
	feedAll(a, seq(touch(0, 0, 1, 0, 0), []inputEvent{syn(0)})...)
	feedAll(a, evAt(10, EV_ABS, ABS_MT_TRACKING_ID, -1), syn(10))

	// New contact in the same slot far away must not produce a jump.
	frames := feedAll(a, seq(touch(20, 0, 2, 900, 900), []inputEvent{syn(20)})...)
	if v := frames[0].Fingers[0]; v != (Velocity{}) {
		t.Fatalf("expected zero velocity for new contact, got %+v", v)
	}
}

func TestMTAssembler_SynDroppedIgnoresEventsUntilReport(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)
	feedAll(a, seq(touch(0, 0, 1, 0, 0), []inputEvent{syn(0)})...)

	frames := feedAll(a, seq(
		[]inputEvent{evAt(10, EV_SYN, SYN_DROPPED, 0)},
		move(10, 0, 5, 5),
		[]inputEvent{syn(10)},
	)...)
	if len(frames) != 0 {
		t.Fatalf("expected no frame for the resync report, got %+v", frames)
	}
	if a.slots[0].x != 0 {
		t.Errorf("expected events inside the drop to be ignored, got x=%d", a.slots[0].x)
	}
}

func TestMTAssembler_ContactsSurviveSynDropped(t *testing.T) {
	a := newMTAssembler(axisRange{Min: 0, Max: 1000}, axisRange{Min: 0, Max: 1000}, 1)
	feedAll(a, seq(
		touch(0, 0, 1, 100, 500), touch(0, 1, 2, 200, 500), touch(0, 2, 3, 300, 500),
		[]inputEvent{syn(0)},
		move(10, 0, 110, 500), move(10, 1, 210, 500), move(10, 2, 310, 500),
		[]inputEvent{syn(10)},
		[]inputEvent{evAt(20, EV_SYN, SYN_DROPPED, 0), syn(30)},
	)...)

	frames := feedAll(a, seq(
		move(40, 0, 150, 500), move(40, 1, 250, 500), move(40, 2, 350, 500),
		[]inputEvent{syn(40)},
		move(50, 0, 160, 500), move(50, 1, 260, 500), move(50, 2, 360, 500),
		[]inputEvent{syn(50)},
	)...)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.FingerCount() != 3 {
			t.Fatalf("frame %d: expected 3 fingers after drop, got %d", i, f.FingerCount())
		}
	}
	for _, v := range frames[0].Fingers {
		if v != (Velocity{}) {
			t.Errorf("expected zero velocity on first frame after drop, got %+v", v)
		}
	}
	// 10 units of 1000 in 10ms.
	for _, v := range frames[1].Fingers {
		if !approx(v.X, 1.0) || v.Y != 0 {
			t.Errorf("expected velocity (1, 0), got %+v", v)
		}
	}
}

func TestMTAssembler_DropDoesNotReleaseFingersStillDown(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)
	r := newTestRecognizer()
	ui := UIPhase{Active: true, ReleaseConfirm: true}

	var got []GestureEvent
	process := func(evs []inputEvent) {
		for _, f := range feedAll(a, evs...) {
			got = append(got, r.ProcessFrame(f, 3, ui)...)
		}
	}

	process(seq(touch(0, 0, 1, 0, 0), touch(0, 1, 2, 0, 0), touch(0, 2, 3, 0, 0), []inputEvent{syn(0)}))
	process([]inputEvent{evAt(10, EV_SYN, SYN_DROPPED, 0), syn(20)})
	process(seq(move(30, 0, 0, 0), move(30, 1, 0, 0), move(30, 2, 0, 0), []inputEvent{syn(30)}))

	for _, g := range got {
		if _, ok := g.(ReleaseConfirm); ok {
			t.Fatalf("expected no release confirm while fingers stay down, got %v", got)
		}
	}
}

func TestMTAssembler_ResyncAppliesKernelState(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)

	var st mtState
	for i := range st.TrackingID {
		st.TrackingID[i] = -1
	}
	st.Slot = 2
	st.TrackingID[0] = 1 // unchanged contact
	st.TrackingID[2] = 9 // new contact that landed during the drop
	st.X[2], st.Y[2] = 7, 7
	a.resync = func() (mtState, error) { return st, nil }

	feedAll(a, seq(touch(0, 0, 1, 0, 0), touch(0, 1, 2, 0, 0), []inputEvent{syn(0)})...)
	feedAll(a, evAt(10, EV_SYN, SYN_DROPPED, 0), syn(20))

	if !a.slots[0].active || a.slots[0].trackingID != 1 {
		t.Errorf("expected slot 0 to keep its contact, got %+v", a.slots[0])
	}
	if a.slots[1].active {
		t.Errorf("expected slot 1 lifted by resync, got %+v", a.slots[1])
	}
	if s := a.slots[2]; !s.active || s.trackingID != 9 || s.x != 7 || s.y != 7 {
		t.Errorf("expected slot 2 to carry the new contact, got %+v", s)
	}
	if a.slot != 2 {
		t.Errorf("expected current slot 2, got %d", a.slot)
	}

	// Positions without ABS_MT_SLOT go to the resynced current slot.
	frames := feedAll(a, evAt(30, EV_ABS, ABS_MT_POSITION_X, 8), syn(30))
	if len(frames) != 1 || frames[0].FingerCount() != 2 {
		t.Fatalf("expected 2 fingers, got %+v", frames)
	}
	if a.slots[2].x != 8 {
		t.Errorf("expected slot 2 x=8, got %d", a.slots[2].x)
	}
}

func TestMTAssembler_ResyncErrorKeepsLastState(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)
	a.resync = func() (mtState, error) { return mtState{}, errors.New("no device") }

	feedAll(a, seq(touch(0, 3, 1, 0, 0), []inputEvent{syn(0)})...)
	feedAll(a, evAt(10, EV_SYN, SYN_DROPPED, 0), syn(20))

	if !a.slots[3].active || a.slot != 3 {
		t.Fatalf("expected last known state to be kept, got slot=%d %+v", a.slot, a.slots[3])
	}
}

func TestMTAssembler_IgnoresOutOfRangeSlots(t *testing.T) {
	a := newMTAssembler(unitRange, unitRange, 1)
	frames := feedAll(a, seq(touch(0, maxMTSlots+1, 1, 0, 0), []inputEvent{syn(0)})...)
	if len(frames) != 1 || frames[0].FingerCount() != 0 {
		t.Fatalf("expected empty frame, got %+v", frames)
	}
}

func TestMTAssembler_InvalidRangesFallBack(t *testing.T) {
	a := newMTAssembler(axisRange{}, axisRange{Min: 5, Max: 5}, 0)
	if a.xRange != unitRange || a.yRange != unitRange {
		t.Errorf("expected unit ranges, got %+v %+v", a.xRange, a.yRange)
	}
	if a.scale != defaultVelocityScale {
		t.Errorf("expected default scale, got %v", a.scale)
	}
}

func TestInputEvent_Time(t *testing.T) {
	ev := evAt(1500, EV_SYN, SYN_REPORT, 0)
	want := time.Unix(1, 500*int64(time.Millisecond))
	if !ev.Time().Equal(want) {
		t.Errorf("expected %v, got %v", want, ev.Time())
	}
}

func TestReadInputEvents_DecodesAndReportsEOF(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()

	events := make(chan deviceEvent, 4)
	readErr := make(chan deviceError, 1)
	go readInputEvents(7, r, events, readErr)

	var buf bytes.Buffer
	want := evAt(42, EV_ABS, ABS_MT_POSITION_X, 1234)
	if err := binary.Write(&buf, binary.LittleEndian, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-events:
		if got.Device != 7 || got.Ev != want {
			t.Fatalf("expected device 7 event %+v, got %+v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}

	w.Close()
	select {
	case e := <-readErr:
		if e.Device != 7 || !errors.Is(e, io.EOF) {
			t.Fatalf("expected EOF for device 7, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for read error")
	}
}
