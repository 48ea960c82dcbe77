package keyboard

import "github.com/Alia5/KEYPER/transport"

// Per-bond subscription flag bits. The host's client characteristic
// configuration writes set and clear these; they persist across reconnects
// through the host flags store.
const (
	NotifStdRpt      uint16 = 1 << 0
	NotifBitMapRpt   uint16 = 1 << 1
	NotifSlpRpt      uint16 = 1 << 2
	NotifFuncLockRpt uint16 = 1 << 3
	NotifScrollRpt   uint16 = 1 << 4
	NotifBootRpt     uint16 = 1 << 5
	NotifBatteryRpt  uint16 = 1 << 6
	notifNone        uint16 = 0
)

// reportTableEntry describes one report the host can subscribe to. Input
// entries carry the flag bit gating their notification; sendNotification
// caches whether the current host has that bit set.
type reportTableEntry struct {
	reportID         uint8
	kind             transport.ReportKind
	boot             bool
	clientConfigBit  uint16
	sendNotification bool
}

// initReportTables builds the report-mode and boot-mode subscription tables.
func (a *App) initReportTables() {
	a.reportModeTable = []reportTableEntry{
		{a.cfg.StdReportID, transport.ReportKindInput, false, NotifStdRpt, false},
		{a.cfg.StdReportID, transport.ReportKindOutput, false, notifNone, false},
		{a.cfg.BatteryReportID, transport.ReportKindInput, false, NotifBatteryRpt, false},
		{a.cfg.BitReportID, transport.ReportKindInput, false, NotifBitMapRpt, false},
		{a.cfg.SleepReportID, transport.ReportKindInput, false, NotifSlpRpt, false},
		{a.cfg.FuncLockReportID, transport.ReportKindInput, false, NotifFuncLockRpt, false},
		{a.cfg.ScrollReportID, transport.ReportKindInput, false, NotifScrollRpt, false},
	}
	a.bootModeTable = []reportTableEntry{
		{a.cfg.StdReportID, transport.ReportKindInput, true, NotifBootRpt, false},
		{a.cfg.StdReportID, transport.ReportKindOutput, true, notifNone, false},
	}
}

// GetProtocol returns the active protocol.
func (a *App) GetProtocol() Protocol {
	return a.protocol
}

// SetProtocol switches between boot and report protocol. On a switch into
// report protocol the report-mode-only accumulators are cleared so stale
// contents are not sent after the switch, and the func-lock key is marked up
// regardless of its real position.
func (a *App) SetProtocol(p Protocol) error {
	if a.protocol != p && p == ProtocolReport {
		a.bitRptClear()
		a.slpRptClear()
		a.scrollRptClear()
		a.funcLock.keyPosition = funcLockKeyUp
	}
	a.protocol = p
	a.log.Debug("protocol set", "protocol", p.String())
	return nil
}

// SetProtocolFromWrite handles an LE protocol mode characteristic write. The
// subscription cache for the newly active table is rebuilt from the stored
// host flags; the host's subscriptions are not cleared by a mode switch.
func (a *App) SetProtocolFromWrite(payload []byte) error {
	if len(payload) < 1 {
		return ErrInvalidParameter
	}
	if err := a.SetProtocol(Protocol(payload[0])); err != nil {
		return err
	}
	a.updateNotificationFlags(a.notifFlags)
	return nil
}

// GetReport answers a "Get Report" request with the current contents of the
// requested report. Only keyboard input reports and the LED output report are
// served; the payload always carries the report ID.
func (a *App) GetReport(kind transport.ReportKind, reportID uint8) ([]byte, error) {
	switch kind {
	case transport.ReportKindInput:
		switch reportID {
		case a.cfg.StdReportID:
			return a.stdRpt.Bytes(a.stdRptSlots(), true), nil
		case a.cfg.BitReportID:
			return a.bitRpt.Bytes(true), nil
		case a.cfg.FuncLockReportID:
			return a.funcLockRpt.Bytes(true), nil
		case a.cfg.SleepReportID:
			return a.slpRpt.Bytes(true), nil
		case a.cfg.BatteryReportID:
			return a.batRpt.Bytes(true), nil
		}
	case transport.ReportKindOutput:
		if reportID == a.cfg.LEDReportID {
			return a.ledRpt.Bytes(true), nil
		}
	}
	return nil, ErrInvalidParameter
}

// SetReport handles a "Set Report" control request. Only output reports are
// accepted, and of those only the LED report; the payload carries the report
// ID in its first byte.
func (a *App) SetReport(kind transport.ReportKind, payload []byte) error {
	if kind != transport.ReportKindOutput {
		return ErrUnsupportedRequest
	}
	if len(payload) < 2 {
		return ErrInvalidParameter
	}
	if payload[0] != a.cfg.LEDReportID {
		return ErrInvalidReportID
	}
	return a.procLEDRpt(payload[1])
}

// RxData handles an interrupt channel "Data" message, which carries output
// reports. Anything but a well-formed LED report is silently dropped.
func (a *App) RxData(kind transport.ReportKind, payload []byte) {
	if kind != transport.ReportKindOutput {
		return
	}
	if len(payload) >= 2 && payload[0] == a.cfg.LEDReportID {
		_ = a.procLEDRpt(payload[1])
	}
}

// SetReportLE handles an LE output report characteristic write. The report is
// identified by handle so the payload has no report ID byte.
func (a *App) SetReportLE(kind transport.ReportKind, reportID uint8, payload []byte) {
	if kind != transport.ReportKindOutput || len(payload) < 1 {
		return
	}
	if reportID == a.cfg.LEDReportID {
		_ = a.procLEDRpt(payload[0])
	}
}

// procLEDRpt stores the host-controlled LED state and informs the platform.
func (a *App) procLEDRpt(states uint8) error {
	a.ledRpt.LEDStates = states
	a.log.Debug("led report", "states", states)
	if a.LEDCallback != nil {
		a.LEDCallback(states)
	}
	return nil
}

// ControlPointWrite handles a write to the HID control point characteristic.
// The only defined operation is suspend, which we treat as a disconnect
// request.
func (a *App) ControlPointWrite(payload []byte) {
	a.link.Disconnect()
}

// ClientConfWrite handles a client characteristic configuration write for the
// report gated by featureBit. The updated flags are persisted per bond and
// the subscription caches rebuilt.
func (a *App) ClientConfWrite(enable bool, featureBit uint16) {
	flags := a.notifFlags
	if a.hosts != nil {
		flags = a.hosts.SetFlags(a.peer, enable, featureBit)
	} else if enable {
		flags |= featureBit
	} else {
		flags &^= featureBit
	}
	a.updateNotificationFlags(flags)
}

// updateNotificationFlags recomputes the per-report notification gates in
// both subscription tables from the given flag set.
func (a *App) updateNotificationFlags(flags uint16) {
	a.notifFlags = flags

	for i := range a.bootModeTable {
		e := &a.bootModeTable[i]
		if e.kind == transport.ReportKindInput && e.clientConfigBit == NotifBootRpt {
			e.sendNotification = flags&NotifBootRpt == NotifBootRpt
			break
		}
	}

	for i := range a.reportModeTable {
		e := &a.reportModeTable[i]
		if e.kind == transport.ReportKindInput {
			e.sendNotification = flags&e.clientConfigBit == e.clientConfigBit
		}
	}
}

// NotificationEnabled reports whether the host has subscribed to the given
// input report in the active protocol's table.
func (a *App) NotificationEnabled(reportID uint8) bool {
	table := a.reportModeTable
	if a.protocol == ProtocolBoot {
		table = a.bootModeTable
	}
	for i := range table {
		if table[i].reportID == reportID && table[i].kind == transport.ReportKindInput {
			return table[i].sendNotification
		}
	}
	return false
}

// NotificationFlags returns the raw per-bond subscription flag set.
func (a *App) NotificationFlags() uint16 {
	return a.notifFlags
}
