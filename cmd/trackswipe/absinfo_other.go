//go:build !linux

package main

import (
	"errors"
	"os"
)

var errNoEvdevIoctl = errors.New("evdev ioctls are only supported on linux")

func queryAxisRange(f *os.File, code uint16) (axisRange, error) {
	return axisRange{}, errNoEvdevIoctl
}

func queryMTState(f *os.File) (mtState, error) {
	return mtState{}, errNoEvdevIoctl
}
