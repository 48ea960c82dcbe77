package keyboard

import "github.com/Alia5/KEYPER/hidevent"

// pinEntryMode tracks which pairing entry sub-mode is active. The low bit
// doubles as the row index into the entry event translation table.
type pinEntryMode uint8

const (
	pinEntryNone    pinEntryMode = 0
	pinEntryLegacy  pinEntryMode = 0x80
	pinEntryPasskey pinEntryMode = 0x81
)

// Entry events generated while collecting pin/passkey digits.
type entryEvent uint8

const (
	entryEventStart entryEvent = iota
	entryEventChar
	entryEventBackspace
	entryEventRestart
	entryEventStop
	entryEventMax
)

// Progress codes delivered during entry. Legacy PIN entry reports progress to
// the host in the pin report; passkey entry notifies the peer with SMP
// passkey press notification types. Start and stop have no legacy
// representation.
const (
	pinEventInvalid uint8 = 0xFF

	pinEventChar      uint8 = 1
	pinEventBackspace uint8 = 2
	pinEventRestart   uint8 = 3

	passKeyEventStart     uint8 = 0
	passKeyEventChar      uint8 = 1
	passKeyEventBackspace uint8 = 2
	passKeyEventRestart   uint8 = 3
	passKeyEventStop      uint8 = 4
)

// entryEventTransTab maps entry events to progress codes, one row per entry
// mode (legacy, passkey).
var entryEventTransTab = [2][entryEventMax]uint8{
	{pinEventInvalid, pinEventChar, pinEventBackspace, pinEventRestart, pinEventInvalid},
	{passKeyEventStart, passKeyEventChar, passKeyEventBackspace, passKeyEventRestart, passKeyEventStop},
}

// EnterPinEntryMode starts legacy PIN collection for pairing. Pending user
// input is flushed and normal report generation suspends until the user
// confirms the PIN with an enter key. A request arriving while another entry
// sequence is active disconnects the link.
func (a *App) EnterPinEntryMode() error {
	if a.pinMode != pinEntryNone {
		a.link.Disconnect()
		return ErrEntryModeBusy
	}
	a.log.Info("entering pin entry mode")
	a.enterKeyCode = 0
	a.FlushUserInput()
	a.pinLen = 0
	a.maxPinLen = MaxPinSize
	for i := range a.pinBuf {
		a.pinBuf[i] = 0
	}
	a.pinMode = pinEntryLegacy
	return nil
}

// EnterPassCodeEntryMode starts passkey collection for secure simple pairing.
// Unlike legacy PIN entry, the peer is notified of entry start and progress.
func (a *App) EnterPassCodeEntryMode() error {
	if a.pinMode != pinEntryNone {
		a.link.Disconnect()
		return ErrEntryModeBusy
	}
	a.log.Info("entering passkey entry mode")
	a.enterKeyCode = 0
	a.FlushUserInput()
	a.pinLen = 0
	a.maxPinLen = MaxPassSize
	for i := range a.pinBuf {
		a.pinBuf[i] = 0
	}
	a.pinMode = pinEntryPasskey
	a.pinEntryEvent(entryEventStart)
	return nil
}

// ExitPinEntryMode aborts any entry sequence. Safe to call at any time, even
// when no entry was ever started.
func (a *App) ExitPinEntryMode() {
	a.pinMode = pinEntryNone
}

// pinEntryEvent translates an entry event to a progress code for the active
// mode. Legacy mode updates the pin report; passkey mode notifies the peer
// through the authenticating transport.
func (a *App) pinEntryEvent(ev entryEvent) {
	if a.pinMode == pinEntryNone || ev >= entryEventMax {
		return
	}
	code := entryEventTransTab[a.pinMode&0x01][ev]
	switch a.pinMode {
	case pinEntryLegacy:
		if code != pinEventInvalid {
			a.pinRptUpdate(code)
		}
	case pinEntryPasskey:
		if a.auth != nil {
			a.auth.PassCodeKeyPress(code)
		}
	}
}

// pinRptUpdate stores a progress code in the pin report and marks it dirty.
func (a *App) pinRptUpdate(code uint8) {
	a.pinRpt.ReportCode = code
	a.pinRptChanged = true
}

// handlePinEntry consumes all pending events and uses standard key downs to
// build the pin/passkey. Digits 0-9 (keyboard or keypad) accumulate,
// backspace and delete erase, escape restarts, and enter latches: the
// sequence completes when the same enter variant is released. Non-key events
// and unrecognized keys are discarded.
func (a *App) handlePinEntry() {
	for {
		ev := a.queue.Current()
		if ev == nil {
			return
		}
		if ev.Kind == hidevent.KindKey {
			code, down := ev.Code, ev.Down
			if down && a.enterKeyCode == 0 {
				if int(code) < len(a.keyTable) && a.keyTable[code].Kind == KindStandard {
					a.pinEntryProcessDigit(a.keyTable[code].Code)
				}
			} else if a.enterKeyCode != 0 && int(code) < len(a.keyTable) &&
				a.keyTable[code].Code == a.enterKeyCode {
				a.pinEntryComplete()
				return
			}
		}
		a.queue.RemoveCurrent()
	}
}

// pinEntryProcessDigit handles one usage code during entry.
func (a *App) pinEntryProcessDigit(usage uint8) {
	switch usage {
	case KeyBackspace, KeyDelete:
		if a.pinLen > 0 {
			a.pinLen--
			a.pinEntryEvent(entryEventBackspace)
		}
	case KeyEscape:
		a.pinLen = 0
		a.pinEntryEvent(entryEventRestart)
	case KeyEnter, KeyKpEnter:
		a.enterKeyCode = usage
	default:
		digit := uint8(0xFF)
		switch {
		case usage == Key0 || usage == KeyKp0:
			digit = 0
		case usage >= Key1 && usage <= Key9:
			digit = usage - Key1 + 1
		case usage >= KeyKp1 && usage <= KeyKp9:
			digit = usage - KeyKp1 + 1
		}
		if digit != 0xFF && a.pinLen < a.maxPinLen {
			a.pinBuf[a.pinLen] = '0' + digit
			a.pinLen++
			a.pinEntryEvent(entryEventChar)
		}
	}
}

// pinEntryComplete hands the collected code to the authenticating transport
// and leaves entry mode.
func (a *App) pinEntryComplete() {
	if a.pinMode == pinEntryLegacy {
		if a.auth != nil {
			a.auth.PinCode(a.pinBuf[:a.pinLen])
		}
	} else {
		a.pinEntryEvent(entryEventStop)
		a.pinBuf[a.pinLen] = 0
		if a.auth != nil {
			a.auth.PassCode(a.pinBuf[:a.pinLen+1])
		}
	}
	a.pinMode = pinEntryNone
	a.FlushUserInput()
}
