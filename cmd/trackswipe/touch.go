package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// touchDevice is an opened evdev touchpad plus its frame assembler.
type touchDevice struct {
	path string
	file *os.File
	asm  *mtAssembler
}

// openTouchDevices opens every configured device. Devices that fail to open are
// logged and skipped; it is an error only if devices were configured and none opened.
func openTouchDevices(cfg Config, logger *slog.Logger) ([]*touchDevice, error) {
	var devs []*touchDevice
	for _, p := range cfg.Touch.Devices {
		path := ExpandPath(p)
		f, err := os.Open(path)
		if err != nil {
			logger.Error("failed to open touch device", "device", path, "error", err, "tip", "run as root or add user to 'input' group")
			continue
		}

		x, y := deviceAxisRanges(cfg, f, logger)
		logger.Info("touch device opened", "device", path, "x_range", fmt.Sprintf("%g..%g", x.Min, x.Max), "y_range", fmt.Sprintf("%g..%g", y.Min, y.Max))

		asm := newMTAssembler(x, y, cfg.Touch.VelocityScale)
		asm.resync = func() (mtState, error) {
			st, err := queryMTState(f)
			if err != nil {
				logger.Warn("multitouch resync failed, keeping last known contacts", "device", path, "error", err)
			}
			return st, err
		}

		devs = append(devs, &touchDevice{
			path: path,
			file: f,
			asm:  asm,
		})
	}

	if len(cfg.Touch.Devices) > 0 && len(devs) == 0 {
		return nil, errors.New("no touch device could be opened")
	}
	return devs, nil
}

func closeTouchDevices(devs []*touchDevice) {
	for _, d := range devs {
		_ = d.file.Close()
	}
}

// deviceAxisRanges returns the configured override, else the kernel-reported
// ranges. Unknown ranges are left invalid so the assembler falls back to 0..1.
func deviceAxisRanges(cfg Config, f *os.File, logger *slog.Logger) (x, y axisRange) {
	if x, y, ok := cfg.axisOverride(); ok {
		return x, y
	}

	x, err := queryAxisRange(f, ABS_MT_POSITION_X)
	if err != nil {
		logger.Warn("x axis range unavailable, assuming normalized positions", "device", f.Name(), "error", err)
	}
	y, err = queryAxisRange(f, ABS_MT_POSITION_Y)
	if err != nil {
		logger.Warn("y axis range unavailable, assuming normalized positions", "device", f.Name(), "error", err)
	}
	return x, y
}

// pumpTouchDevices reads all devices and feeds assembled frames into the daemon loop.
//
// It reports DeviceAttached for every device up front and DeviceLost when a device
// fails. It returns nil when ctx is canceled or every device is gone, and an error
// only if the reader itself fails.
func pumpTouchDevices(ctx context.Context, devs []*touchDevice, events chan<- Event, logger *slog.Logger) error {
	files := make([]*os.File, len(devs))
	for i, d := range devs {
		files[i] = d.file
	}

	raw := make(chan deviceEvent, 256)
	readErr := make(chan deviceError, len(devs)+1)
	go readDevices(files, raw, readErr)

	for _, d := range devs {
		if !sendEvent(ctx, events, DeviceAttached{Device: d.path, At: time.Now()}) {
			return nil
		}
	}

	return forwardTouchEvents(ctx, devs, raw, readErr, events, logger)
}

// forwardTouchEvents assembles raw events into frames until ctx is canceled or
// every device is lost.
//
// A reader queues a device's events before its error, so the events already
// buffered in raw are forwarded before that device's DeviceLost; anything that
// still arrives for a lost device is dropped.
func forwardTouchEvents(
	ctx context.Context,
	devs []*touchDevice,
	raw <-chan deviceEvent,
	readErr <-chan deviceError,
	events chan<- Event,
	logger *slog.Logger,
) error {
	lost := make([]bool, len(devs))

	forward := func(de deviceEvent) bool {
		if de.Device < 0 || de.Device >= len(devs) || lost[de.Device] {
			return true
		}
		d := devs[de.Device]
		f, ok := d.asm.feed(de.Ev)
		if !ok {
			return true
		}
		return sendEvent(ctx, events, TouchFrameReceived{Device: d.path, Frame: f, At: de.Ev.Time()})
	}

	live := len(devs)
	for {
		select {
		case <-ctx.Done():
			return nil

		case de := <-raw:
			if !forward(de) {
				return nil
			}

		case de := <-readErr:
			if de.Device < 0 || de.Device >= len(devs) {
				return fmt.Errorf("input reader: %w", de.Err)
			}

			for n := len(raw); n > 0; n-- {
				if !forward(<-raw) {
					return nil
				}
			}

			d := devs[de.Device]
			lost[de.Device] = true
			logger.Error("touch device lost", "device", d.path, "error", de.Err)
			if !sendEvent(ctx, events, DeviceLost{Device: d.path, Err: de.Err, At: time.Now()}) {
				return nil
			}

			live--
			if live == 0 {
				logger.Warn("all touch devices lost; only injected frames will be recognized")
				return nil
			}
		}
	}
}

// sendEvent blocks until ev is queued or ctx is canceled.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
