package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeEvents(t *testing.T, w *os.File, evs []inputEvent) {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range evs {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event")
	}
	return nil
}

func TestPumpTouchDevices_FramesAndLoss(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()

	dev := &touchDevice{path: "pad0", file: r, asm: newMTAssembler(unitRange, unitRange, 1)}
	events := make(chan Event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pumpTouchDevices(ctx, []*touchDevice{dev}, events, discardLogger()) }()

	if ev, ok := nextEvent(t, events).(DeviceAttached); !ok || ev.Device != "pad0" {
		t.Fatalf("expected DeviceAttached for pad0, got %#v", ev)
	}

	writeEvents(t, w, seq(
		touch(0, 0, 1, 0, 0),
		touch(0, 1, 2, 0, 0),
		touch(0, 2, 3, 0, 0),
		[]inputEvent{syn(0)},
	))

	fr, ok := nextEvent(t, events).(TouchFrameReceived)
	if !ok {
		t.Fatalf("expected TouchFrameReceived")
	}
	if fr.Device != "pad0" || fr.Frame.FingerCount() != 3 {
		t.Fatalf("unexpected frame %+v", fr)
	}

	w.Close()
	if ev, ok := nextEvent(t, events).(DeviceLost); !ok || ev.Device != "pad0" || ev.Err == nil {
		t.Fatalf("expected DeviceLost for pad0, got %#v", ev)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after last device lost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pump did not return after all devices were lost")
	}
}

func TestOpenTouchDevices(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "event0")
	if err := os.WriteFile(good, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Touch.Devices = []string{filepath.Join(dir, "missing"), good}
	cfg.Touch.AxisRange = &AxisRangeConfig{XMax: 1000, YMax: 500}

	devs, err := openTouchDevices(cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeTouchDevices(devs)

	if len(devs) != 1 || devs[0].path != good {
		t.Fatalf("expected only the existing device, got %+v", devs)
	}
	if devs[0].asm.xRange.Max != 1000 || devs[0].asm.yRange.Max != 500 {
		t.Errorf("expected configured axis ranges, got %+v %+v", devs[0].asm.xRange, devs[0].asm.yRange)
	}

	cfg.Touch.Devices = []string{filepath.Join(dir, "missing")}
	if _, err := openTouchDevices(cfg, discardLogger()); err == nil {
		t.Fatalf("expected error when no device opens")
	}

	cfg.Touch.Devices = nil
	devs, err = openTouchDevices(cfg, discardLogger())
	if err != nil || len(devs) != 0 {
		t.Fatalf("expected no devices and no error, got %v %v", devs, err)
	}
}

func TestForwardTouchEvents_QueuedFramesPrecedeDeviceLost(t *testing.T) {
	devs := []*touchDevice{
		{path: "pad0", asm: newMTAssembler(unitRange, unitRange, 1)},
		{path: "pad1", asm: newMTAssembler(unitRange, unitRange, 1)},
	}

	raw := make(chan deviceEvent, 32)
	readErr := make(chan deviceError, 2)
	for _, ev := range seq(touch(0, 0, 1, 0, 0), []inputEvent{syn(0)}) {
		raw <- deviceEvent{Device: 0, Ev: ev}
	}
	readErr <- deviceError{Device: 0, Err: errors.New("hangup")}

	events := make(chan Event, 8)
	done := make(chan error, 1)
	go func() { done <- forwardTouchEvents(context.Background(), devs, raw, readErr, events, discardLogger()) }()

	if fr, ok := nextEvent(t, events).(TouchFrameReceived); !ok || fr.Device != "pad0" || fr.Frame.FingerCount() != 1 {
		t.Fatalf("expected queued pad0 frame first, got %#v", fr)
	}
	if ev, ok := nextEvent(t, events).(DeviceLost); !ok || ev.Device != "pad0" {
		t.Fatalf("expected DeviceLost for pad0, got %#v", ev)
	}

	// Late events for a lost device are dropped.
	for _, ev := range seq(touch(5, 0, 2, 0, 0), []inputEvent{syn(5)}) {
		raw <- deviceEvent{Device: 0, Ev: ev}
	}
	waitUntil(t, time.Second, func() bool { return len(raw) == 0 }, "late events not consumed")
	readErr <- deviceError{Device: 1, Err: errors.New("hangup")}

	if ev, ok := nextEvent(t, events).(DeviceLost); !ok || ev.Device != "pad1" {
		t.Fatalf("expected DeviceLost for pad1 with no pad0 frame before it, got %#v", ev)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil once every device is lost, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("forwarder did not return")
	}
}

func TestForwardTouchEvents_ReaderFailure(t *testing.T) {
	readErr := make(chan deviceError, 1)
	readErr <- deviceError{Device: -1, Err: errors.New("epoll_wait: bad fd")}

	err := forwardTouchEvents(context.Background(), []*touchDevice{{path: "pad0"}}, make(chan deviceEvent), readErr, make(chan Event, 1), discardLogger())
	if err == nil || !strings.Contains(err.Error(), "input reader") {
		t.Fatalf("expected input reader error, got %v", err)
	}
}
