package keyboard

import "time"

// Clock provides the native Bluetooth clock (312.5µs ticks) used for idle
// rate bookkeeping. Tick values wrap; differences are taken in uint32 space.
type Clock interface {
	Now() uint32
}

const btClockTick = 312500 * time.Nanosecond

type btClock struct {
	start time.Time
}

// NewBTClock returns a Clock backed by the wall clock.
func NewBTClock() Clock {
	return btClock{start: time.Now()}
}

func (c btClock) Now() uint32 {
	return uint32(time.Since(c.start) / btClockTick)
}

// clocksSince returns the ticks elapsed since instant, wrap-safe.
func clocksSince(c Clock, instant uint32) uint32 {
	return c.Now() - instant
}

// idleRateToClocks converts a HID idle rate in 4ms units to BT clock ticks:
// (rate * 192) / 15.
func idleRateToClocks(rate4ms uint8) uint32 {
	return uint32(rate4ms) * 192 / 15
}
