//go:build !linux

package main

import (
	"errors"
	"os"
	"sync"
)

// readDevices falls back to one blocking reader goroutine per device.
// It returns once every reader has stopped.
func readDevices(files []*os.File, events chan<- deviceEvent, readErr chan<- deviceError) {
	if len(files) == 0 {
		readErr <- deviceError{Device: -1, Err: errors.New("no input devices provided")}
		return
	}

	var wg sync.WaitGroup
	for i, f := range files {
		if f == nil {
			continue
		}
		wg.Add(1)
		go func(i int, f *os.File) {
			defer wg.Done()
			readInputEvents(i, f, events, readErr)
		}(i, f)
	}
	wg.Wait()
}
