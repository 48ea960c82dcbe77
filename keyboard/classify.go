package keyboard

import "github.com/Alia5/KEYPER/hidevent"

// procEvtKey processes key events from the queue until the end-of-scan-cycle
// event is seen, accumulating changes into the key reports. On end of cycle
// it transmits any modified reports. Errors double as end-of-cycle: a ghost
// scan code or a non-key event mid-cycle hands off to the error handlers.
// There is at least one event in the queue when this is called.
func (a *App) procEvtKey() {
	for {
		ev := a.queue.Current()
		if ev == nil {
			// Ran out of events before the end-of-scan-cycle event.
			a.procErrEvtQueue()
			return
		}
		if ev.Kind != hidevent.KindKey {
			// An end-of-cycle event is always present except when the event
			// fifo overflows, so a non-key event here means overflow.
			a.procErrEvtQueue()
			return
		}

		code, down := ev.Code, ev.Down
		switch {
		case int(code) < len(a.keyTable):
			entry := a.keyTable[code]
			switch entry.Kind {
			case KindStandard:
				a.stdRptProcEvtKey(down, entry.Code)
			case KindModifier:
				a.stdRptProcEvtModKey(down, entry.Code)
			case KindBitMapped:
				a.bitRptProcEvtKey(down, entry.Code)
			case KindSleep:
				a.slpRptProcEvtKey(down, entry.Code)
			case KindFuncLock:
				a.funcLockProcEvtKey(down)
			case KindFuncLockDep:
				a.funcLockProcEvtDepKey(down, entry.Code)
			case KindNone:
			default:
				if a.UserKeyHook != nil {
					a.UserKeyHook(down, code, entry.Code)
				}
			}
		case code == hidevent.EndOfScanCycle:
			a.txModifiedKeyReports()
		default:
			a.log.Warn("ghost scan code", "code", code)
			a.procErrKeyscan()
			return
		}

		a.queue.RemoveCurrent()

		if int(code) >= len(a.keyTable) {
			// End of scan cycle consumed.
			return
		}
	}
}

// stdRptProcEvtKey routes a standard key event to the down or up handler.
func (a *App) stdRptProcEvtKey(down bool, usage uint8) {
	if down {
		a.stdRptProcEvtKeyDown(usage)
	} else {
		a.stdRptProcEvtKeyUp(usage)
	}
}

// stdRptProcEvtKeyDown adds a key to the standard report unless it is already
// present. A full report is a capacity fault.
func (a *App) stdRptProcEvtKeyDown(usage uint8) {
	for i := 0; i < a.keysInStdRpt; i++ {
		if a.stdRpt.Keys[i] == usage {
			return
		}
	}
	if a.keysInStdRpt < a.stdRptSlots() {
		a.stdRpt.Keys[a.keysInStdRpt] = usage
		a.keysInStdRpt++
		a.stdRptChanged = true
	} else {
		a.stdRptProcOverflow()
	}
}

// stdRptProcEvtKeyUp removes a key from the standard report if present by
// swapping in the last key; slot order in the report is not meaningful.
func (a *App) stdRptProcEvtKeyUp(usage uint8) {
	for i := 0; i < a.keysInStdRpt; i++ {
		if a.stdRpt.Keys[i] == usage {
			a.keysInStdRpt--
			a.stdRpt.Keys[i] = a.stdRpt.Keys[a.keysInStdRpt]
			a.stdRpt.Keys[a.keysInStdRpt] = 0
			a.stdRptChanged = true
		}
	}
}

// stdRptProcOverflow handles more simultaneous standard keys than the report
// has slots for.
func (a *App) stdRptProcOverflow() {
	a.log.Warn("standard report overflow")
	a.stdErrRespWithReset()
}

// stdRptProcEvtModKey updates the modifier bitmask in the standard report.
func (a *App) stdRptProcEvtModKey(down bool, mask uint8) {
	if down {
		if a.stdRpt.Modifiers&mask == 0 {
			a.stdRpt.Modifiers |= mask
			a.stdRptChanged = true
			a.modKeysInStdRpt++
		}
	} else {
		if a.stdRpt.Modifiers&mask != 0 {
			a.stdRpt.Modifiers &^= mask
			a.stdRptChanged = true
			a.modKeysInStdRpt--
		}
	}
}

// bitRptProcEvtKey updates the bit associated with the key in the bit mapped
// report. The bit position comes from the translation table, so it is range
// checked rather than trusted.
func (a *App) bitRptProcEvtKey(down bool, pos uint8) {
	if down {
		if a.bitRpt.keys.set(pos) {
			a.keysInBitRpt++
			a.bitRptChanged = true
		}
	} else {
		if a.bitRpt.keys.clear(pos) {
			a.keysInBitRpt--
			a.bitRptChanged = true
		}
	}
}

// slpRptProcEvtKey updates the sleep bit in the sleep report.
func (a *App) slpRptProcEvtKey(down bool, mask uint8) {
	if down {
		if a.slpRpt.SleepVal&mask == 0 {
			a.slpRpt.SleepVal |= mask
			a.slpRptChanged = true
		}
	} else {
		if a.slpRpt.SleepVal&mask != 0 {
			a.slpRpt.SleepVal &^= mask
			a.slpRptChanged = true
		}
	}
}

// funcLockProcEvtKey handles the func-lock key itself. Events are ignored
// during recovery and in boot protocol. A key down toggles the lock
// immediately and arms nothing; the toggle-on-key-up flag is only set by a
// dependent key pressed while func-lock is held, which turns the held key
// into a temporary override of its own state.
func (a *App) funcLockProcEvtKey(down bool) {
	if a.recoveryInProgress != 0 || a.protocol != ProtocolReport {
		return
	}
	if down {
		if a.funcLock.keyPosition == funcLockKeyUp {
			a.funcLock.keyPosition = funcLockKeyDown
			a.funcLockToggle()
			a.funcLock.toggleOnKeyUp = false
		}
	} else {
		if a.funcLock.keyPosition == funcLockKeyDown {
			a.funcLock.keyPosition = funcLockKeyUp
			if a.funcLock.toggleOnKeyUp {
				a.funcLockToggle()
			}
		}
	}
}

// funcLockToggle flips the func-lock state and updates the func-lock report
// with the new state and the event flag, without sending it.
func (a *App) funcLockToggle() {
	if a.funcLock.state == FuncLockOff {
		a.funcLock.state = FuncLockOn
	} else {
		a.funcLock.state = FuncLockOff
	}
	a.funcLockRpt.Status = uint8(a.funcLock.state) | funcLockEventFlag
	a.funcLockRptChanged = true
}

// funcLockProcEvtDepKey handles func-lock dependent keys. Downs route to the
// standard handler when func-lock is on (func-lock is assumed on in boot
// protocol) and to the bit mapped handler otherwise. Ups go to both handlers
// so a key release is never lost across a boot/report protocol switch. A down
// unconditionally arms the toggle-on-key-up flag; it only matters while the
// func-lock key is held.
func (a *App) funcLockProcEvtDepKey(down bool, tableIndex uint8) {
	if int(tableIndex) >= len(a.funcLockDep) {
		return
	}
	dep := a.funcLockDep[tableIndex]
	if down {
		if a.funcLock.state == FuncLockOn || a.protocol == ProtocolBoot {
			a.stdRptProcEvtKey(down, dep.StdCode)
		} else {
			a.bitRptProcEvtKey(down, dep.BitCode)
		}
		a.funcLock.toggleOnKeyUp = true
	} else {
		a.stdRptProcEvtKey(down, dep.StdCode)
		a.bitRptProcEvtKey(down, dep.BitCode)
	}
}
