package main

import "time"

// axisRange is the reported value range of one absolute axis.
type axisRange struct {
	Min float64
	Max float64
}

func (r axisRange) valid() bool { return r.Max > r.Min }

func (r axisRange) span() float64 { return r.Max - r.Min }

// unitRange is used when the device range is unknown; values are taken as already normalized.
var unitRange = axisRange{Min: 0, Max: 1}

// mtSlot is the tracked state of one multitouch protocol-B slot.
type mtSlot struct {
	active bool

	x, y       int32
	prevX      int32
	prevY      int32
	hasPrev    bool
	trackingID int32
}

// mtAssembler turns a stream of evdev multitouch events from one device into
// TouchFrames, one per SYN_REPORT.
//
// Finger velocity is the position delta since the previous report, divided by the
// axis span and the elapsed seconds, times scale. Y is flipped so that moving up
// yields a positive velocity.
type mtAssembler struct {
	xRange axisRange
	yRange axisRange
	scale  float64

	slot  int
	slots [maxMTSlots]mtSlot

	lastReport time.Time

	// dropped is set by SYN_DROPPED; events are ignored until the next SYN_REPORT.
	dropped bool

	// resync, if set, reads the device's current MT state after a drop.
	resync func() (mtState, error)
}

// mtState is the kernel's view of all slots, as returned by EVIOCGMTSLOTS.
type mtState struct {
	Slot       int
	TrackingID [maxMTSlots]int32
	X          [maxMTSlots]int32
	Y          [maxMTSlots]int32
}

func newMTAssembler(xRange, yRange axisRange, scale float64) *mtAssembler {
	if !xRange.valid() {
		xRange = unitRange
	}
	if !yRange.valid() {
		yRange = unitRange
	}
	if scale == 0 {
		scale = defaultVelocityScale
	}
	return &mtAssembler{
		xRange: xRange,
		yRange: yRange,
		scale:  scale,
	}
}

// feed consumes one raw event. It returns a frame and true on SYN_REPORT.
func (a *mtAssembler) feed(ev inputEvent) (TouchFrame, bool) {
	switch ev.Type {
	case EV_SYN:
		switch ev.Code {
		case SYN_DROPPED:
			a.dropped = true
			return TouchFrame{}, false
		case SYN_REPORT:
			if a.dropped {
				a.dropped = false
				a.afterDrop(ev.Time())
				return TouchFrame{}, false
			}
			return a.report(ev.Time()), true
		}

	case EV_ABS:
		if a.dropped {
			return TouchFrame{}, false
		}
		a.abs(ev.Code, ev.Value)
	}

	return TouchFrame{}, false
}

func (a *mtAssembler) abs(code uint16, value int32) {
	if code == ABS_MT_SLOT {
		a.slot = int(value)
		return
	}

	if a.slot < 0 || a.slot >= maxMTSlots {
		return
	}
	s := &a.slots[a.slot]

	switch code {
	case ABS_MT_TRACKING_ID:
		if value < 0 {
			// Lift. The kernel only resends positions that change, so keep the last one.
			// hasPrev is cleared, so the next contact in this slot reports zero velocity
			// on its first frame instead of a delta against these stale coordinates.
			*s = mtSlot{x: s.x, y: s.y}
			return
		}
		if !s.active || s.trackingID != value {
			*s = mtSlot{active: true, trackingID: value, x: s.x, y: s.y}
		}

	case ABS_MT_POSITION_X:
		s.x = value

	case ABS_MT_POSITION_Y:
		s.y = value
	}
}

func (a *mtAssembler) report(at time.Time) TouchFrame {
	dt := 0.0
	if !a.lastReport.IsZero() {
		dt = at.Sub(a.lastReport).Seconds()
	}
	a.lastReport = at

	var fingers []Velocity
	for i := range a.slots {
		s := &a.slots[i]
		if !s.active {
			continue
		}

		var v Velocity
		if s.hasPrev && dt > 0 {
			v.X = float64(s.x-s.prevX) / a.xRange.span() / dt * a.scale
			v.Y = -float64(s.y-s.prevY) / a.yRange.span() / dt * a.scale
		}
		fingers = append(fingers, v)

		s.prevX, s.prevY = s.x, s.y
		s.hasPrev = true
	}

	return TouchFrame{Fingers: fingers}
}

// afterDrop restores a consistent slot state once the kernel has resynced.
//
// Contacts survive a drop: the kernel only resends ABS_MT_TRACKING_ID when it
// changes, so fingers that stayed down would otherwise never reappear. Without a
// resync source the last known state is kept; either way every finger restarts
// with zero velocity.
func (a *mtAssembler) afterDrop(at time.Time) {
	a.lastReport = at

	if a.resync != nil {
		st, err := a.resync()
		if err == nil {
			a.slot = st.Slot
			for i := range a.slots {
				s := &a.slots[i]
				id := st.TrackingID[i]
				switch {
				case id < 0:
					*s = mtSlot{x: st.X[i], y: st.Y[i]}
				case !s.active || s.trackingID != id:
					*s = mtSlot{active: true, trackingID: id, x: st.X[i], y: st.Y[i]}
				default:
					s.x, s.y = st.X[i], st.Y[i]
				}
			}
		}
	}

	for i := range a.slots {
		a.slots[i].hasPrev = false
	}
}
