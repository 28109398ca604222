//go:build linux

package main

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inputAbsinfo mirrors struct input_absinfo.
type inputAbsinfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// inputMTRequest mirrors struct input_mt_request_layout for maxMTSlots slots.
type inputMTRequest struct {
	Code   uint32
	Values [maxMTSlots]int32
}

// iocRead builds a read ioctl request number: _IOR('E', nr, size).
func iocRead(nr, size uintptr) uintptr {
	const (
		dirRead      = 2
		iocNRShift   = 0
		iocTypeShift = 8
		iocSizeShift = 16
		iocDirShift  = 30
	)
	return uintptr(dirRead)<<iocDirShift |
		size<<iocSizeShift |
		uintptr('E')<<iocTypeShift |
		nr<<iocNRShift
}

// eviocgabs is EVIOCGABS(abs).
func eviocgabs(abs uint16) uintptr {
	return iocRead(0x40+uintptr(abs), unsafe.Sizeof(inputAbsinfo{}))
}

// eviocgmtslots is EVIOCGMTSLOTS(sizeof(inputMTRequest)).
func eviocgmtslots() uintptr {
	return iocRead(0x0a, unsafe.Sizeof(inputMTRequest{}))
}

func ioctl(f *os.File, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func queryAbsinfo(f *os.File, code uint16) (inputAbsinfo, error) {
	var info inputAbsinfo
	if err := ioctl(f, eviocgabs(code), unsafe.Pointer(&info)); err != nil {
		return inputAbsinfo{}, fmt.Errorf("EVIOCGABS(0x%x) on %s: %w", code, f.Name(), err)
	}
	return info, nil
}

// queryAxisRange reads the min/max of an absolute axis from the kernel.
func queryAxisRange(f *os.File, code uint16) (axisRange, error) {
	info, err := queryAbsinfo(f, code)
	if err != nil {
		return axisRange{}, err
	}
	r := axisRange{Min: float64(info.Minimum), Max: float64(info.Maximum)}
	if !r.valid() {
		return axisRange{}, fmt.Errorf("EVIOCGABS(0x%x) on %s: empty range %d..%d", code, f.Name(), info.Minimum, info.Maximum)
	}
	return r, nil
}

// queryMTState reads the current slot and every slot's tracking id and position.
func queryMTState(f *os.File) (mtState, error) {
	var st mtState

	slot, err := queryAbsinfo(f, ABS_MT_SLOT)
	if err != nil {
		return mtState{}, err
	}
	st.Slot = int(slot.Value)

	for _, q := range []struct {
		code uint16
		dst  *[maxMTSlots]int32
	}{
		{ABS_MT_TRACKING_ID, &st.TrackingID},
		{ABS_MT_POSITION_X, &st.X},
		{ABS_MT_POSITION_Y, &st.Y},
	} {
		req := inputMTRequest{Code: uint32(q.code)}
		if err := ioctl(f, eviocgmtslots(), unsafe.Pointer(&req)); err != nil {
			return mtState{}, fmt.Errorf("EVIOCGMTSLOTS(0x%x) on %s: %w", q.code, f.Name(), err)
		}
		*q.dst = req.Values
	}
	return st, nil
}
