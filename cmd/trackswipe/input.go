package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// Time returns the kernel timestamp of the event.
func (ev inputEvent) Time() time.Time {
	return time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
}

// deviceEvent is a raw input event tagged with the index of the device it came from.
type deviceEvent struct {
	Device int
	Ev     inputEvent
}

// deviceError reports that reading from one device failed.
type deviceError struct {
	Device int
	Err    error
}

func (e deviceError) Error() string { return e.Err.Error() }
func (e deviceError) Unwrap() error { return e.Err }

// readInputEvents reads input events from one device and sends them to a channel.
// This runs in a dedicated goroutine and blocks on read operations.
func readInputEvents(device int, f *os.File, events chan<- deviceEvent, readErr chan<- deviceError) {
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf) // Reusable reader, reset on each iteration

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- deviceError{Device: device, Err: err}
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}

		events <- deviceEvent{Device: device, Ev: ev}
	}
}
