//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// readDevices reads from all touch devices using a single epoll loop.
//
// A device that errors or hangs up is removed from the epoll set and reported on
// readErr; the remaining devices keep being read. The function returns when no
// devices are left or epoll itself fails.
func readDevices(files []*os.File, events chan<- deviceEvent, readErr chan<- deviceError) {
	if len(files) == 0 {
		readErr <- deviceError{Device: -1, Err: errors.New("no input devices provided")}
		return
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		readErr <- deviceError{Device: -1, Err: fmt.Errorf("epoll_create1: %w", err)}
		return
	}
	defer unix.Close(epfd)

	// Map file descriptors back to device indexes
	fdToDevice := make(map[int]int, len(files))

	for i, f := range files {
		if f == nil {
			continue
		}
		fd := int(f.Fd())

		event := unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			readErr <- deviceError{Device: i, Err: fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)}
			continue
		}
		fdToDevice[fd] = i
	}

	drop := func(fd int, err error) {
		dev := fdToDevice[fd]
		_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(fdToDevice, fd)
		readErr <- deviceError{Device: dev, Err: err}
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf)

	for len(fdToDevice) > 0 {
		n, err := unix.EpollWait(epfd, epollEvents, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			readErr <- deviceError{Device: -1, Err: fmt.Errorf("epoll_wait: %w", err)}
			return
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			dev, ok := fdToDevice[fd]
			if !ok {
				continue
			}
			f := files[dev]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				drop(fd, fmt.Errorf("device error/hangup: %s", f.Name()))
				continue
			}

			if _, err := f.Read(buf); err != nil {
				drop(fd, fmt.Errorf("read from %s: %w", f.Name(), err))
				continue
			}

			reader.Reset(buf)
			var ev inputEvent
			if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
				continue
			}

			events <- deviceEvent{Device: dev, Ev: ev}
		}
	}
}
