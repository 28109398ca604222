package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// startIPC runs the IPC server on a temp socket and returns its path.
func startIPC(t *testing.T, events chan Event) string {
	t.Helper()

	// Unix socket paths are length-limited; keep it short.
	dir, err := os.MkdirTemp("", "tsw")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "ipc.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, path, events, discardLogger()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ipc server: %v", err)
			}
		case <-time.After(time.Second):
			t.Errorf("ipc server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, "ipc socket not created")
	return path
}

func TestIPC_SendEventDelivered(t *testing.T) {
	events := make(chan Event, 4)
	path := startIPC(t, events)

	if err := SendIPCEvent(path, SetFingerMode{Fingers: 4}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case ev := <-events:
		if ev != (SetFingerMode{Fingers: 4}) {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestIPC_ParseErrorAndQueueFull(t *testing.T) {
	events := make(chan Event) // unbuffered and never read: always full
	path := startIPC(t, events)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	roundTrip := func(line string) IPCResponse {
		t.Helper()
		if _, err := fmt.Fprintln(conn, line); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		raw, err := r.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp IPCResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		return resp
	}

	resp := roundTrip(`{"type":"bogus"}`)
	if resp.Status != "error" || !strings.Contains(resp.Error, "parse event") {
		t.Fatalf("expected parse error, got %+v", resp)
	}

	resp = roundTrip(`{"type":"reset"}`)
	if resp.Status != "error" || resp.Error != "event queue full" {
		t.Fatalf("expected queue full, got %+v", resp)
	}

	if err := SendIPCEvent(path, ResetRecognizers{}); err == nil || !strings.Contains(err.Error(), "event queue full") {
		t.Fatalf("expected client error for full queue, got %v", err)
	}
}

func TestIPC_GetState(t *testing.T) {
	events := make(chan Event, 4)
	path := startIPC(t, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if req, ok := ev.(RequestStateSnapshot); ok {
					req.Reply <- StateSnapshot{Enabled: true, RequiredFingers: 3, UI: UISnapshot{Active: true, Slot: 5}}
				}
			}
		}
	}()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, `{"type":"get_state"}`); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.State == nil {
		t.Fatalf("expected state, got %+v", resp)
	}
	if !resp.State.UI.Active || resp.State.UI.Slot != 5 {
		t.Errorf("unexpected state %+v", resp.State)
	}
}

func TestRequestSnapshot_TimesOut(t *testing.T) {
	events := make(chan Event, 1) // accepted but never answered
	_, err := requestSnapshot(context.Background(), events, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
