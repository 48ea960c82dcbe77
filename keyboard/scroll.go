package keyboard

import "github.com/Alia5/KEYPER/hidevent"

// ScaleValue divides a value by a power of 2, returning the whole quotient
// and leaving the remainder in val. Works symmetrically for negative values,
// so -3 scaled by 1 yields -1 with -1 left over, mirroring +3.
func ScaleValue(val *int16, scaleFactor uint8) int16 {
	result := *val
	if result < 0 {
		result = -result
	}
	result >>= scaleFactor
	if result != 0 {
		if *val < 0 {
			result = -result
		}
		*val -= result << scaleFactor
	}
	return result
}

// pollActivityScroll drains the quadrature driver's accumulated count,
// negates and scales it if configured, and queues a scroll event for any
// whole motion. Fractional motion is carried between polls and discarded
// after the configured number of scroll-free polls.
func (a *App) pollActivityScroll() {
	if a.scrollSource == nil {
		return
	}
	current := a.scrollSource()

	if current != 0 {
		if a.cfg.NegateScroll {
			current = -current
		}

		var motion int16
		if a.cfg.ScrollScale != 0 {
			a.scrollFractional += current
			motion = ScaleValue(&a.scrollFractional, a.cfg.ScrollScale)
			a.pollsSinceScroll = 0
		} else {
			motion = current
		}

		a.queue.PushWithOverflow(hidevent.MotionEvent(motion), a.pollSeqn)
		return
	}

	if a.cfg.PollsToKeepFracScroll != 0 {
		a.pollsSinceScroll++
		if a.pollsSinceScroll >= a.cfg.PollsToKeepFracScroll {
			a.scrollFractional = 0
			a.pollsSinceScroll = 0
		}
	}
}

// procEvtScroll consumes the scroll event at the head of the queue, combining
// it with consecutive scroll events when combining is enabled, then transmits
// modified reports.
func (a *App) procEvtScroll() {
	a.scrollRpt.Motion = 0

	for {
		ev := a.queue.Current()
		if ev == nil || ev.Kind != hidevent.KindMotion {
			break
		}
		a.scrollRpt.Motion += ev.Motion
		a.queue.RemoveCurrent()
		if !a.cfg.ScrollCombining {
			break
		}
	}

	if a.scrollRpt.Motion != 0 {
		a.scrollRptChanged = true
	}

	a.txModifiedKeyReports()
}
