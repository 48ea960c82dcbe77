package keyboard

import "github.com/Alia5/KEYPER/transport"

// txBufferThreshold is the transport buffer utilization percentage above
// which no further reports are generated in a poll.
const txBufferThreshold = 80

// withReportID reports whether outgoing payloads carry the report ID. The
// classic interrupt channel identifies reports by the leading ID byte; LE
// notifications identify them by attribute handle and omit it.
func (a *App) withReportID() bool {
	return a.link.ActiveCarrier() != transport.CarrierLE
}

func (a *App) sendInput(id uint8, payload []byte) {
	if err := a.link.SendReport(id, transport.ReportKindInput, payload); err != nil {
		a.log.Error("send report failed", "reportID", id, "error", err)
	}
}

// txModifiedKeyReports transmits all dirty key reports, unless a recovery is
// in progress, in which case the dirty flags are held until it completes.
// Only the standard report is sent in boot protocol.
func (a *App) txModifiedKeyReports() {
	if a.recoveryInProgress != 0 {
		return
	}

	if a.stdRptChanged {
		a.stdRptSend()
	}

	if a.protocol != ProtocolReport {
		return
	}

	if a.bitRptChanged {
		a.bitRptSend()
	}
	if a.slpRptChanged {
		a.slpRptSend()
	}
	if a.funcLockRptChanged {
		a.funcLockRptSend()
	}
	if a.scrollRptChanged {
		a.scrollRptSend()
	}
}

// stdRptSend transmits the standard report and snaps the BT clock for idle
// rate bookkeeping.
func (a *App) stdRptSend() {
	a.stdRptChanged = false
	a.sendInput(a.stdRpt.ReportID, a.stdRpt.Bytes(a.stdRptSlots(), a.withReportID()))
	a.stdRptTxInstant = a.clock.Now()
}

func (a *App) bitRptSend() {
	a.bitRptChanged = false
	a.sendInput(a.bitRpt.ReportID, a.bitRpt.Bytes(a.withReportID()))
}

func (a *App) slpRptSend() {
	a.slpRptChanged = false
	a.sendInput(a.slpRpt.ReportID, a.slpRpt.Bytes(a.withReportID()))
}

func (a *App) funcLockRptSend() {
	a.funcLockRptChanged = false
	a.sendInput(a.funcLockRpt.ReportID, a.funcLockRpt.Bytes(a.withReportID()))
}

// scrollRptSend transmits the scroll report. The LE report layout has no
// signed motion field; motion is collapsed to a volume up/down usage pulse
// followed by a release.
func (a *App) scrollRptSend() {
	a.scrollRptChanged = false
	a.log.Debug("sending scroll report", "motion", a.scrollRpt.Motion)

	if a.link.ActiveCarrier() == transport.CarrierLE {
		usage := uint8(scrollUsageVolumeDown)
		if a.scrollRpt.Motion > 0 {
			usage = scrollUsageVolumeUp
		}
		a.sendInput(a.scrollRpt.ReportID, []byte{usage})
		a.sendInput(a.scrollRpt.ReportID, []byte{0})
		return
	}

	a.sendInput(a.scrollRpt.ReportID, a.scrollRpt.Bytes(true))
}

func (a *App) batRptSend() {
	a.sendInput(a.batRpt.ReportID, a.batRpt.Bytes(a.withReportID()))
}

// pinRptSend transmits the pin entry progress report over the authenticating
// transport's interrupt channel.
func (a *App) pinRptSend() {
	a.pinRptChanged = false
	a.sendInput(a.pinRpt.ReportID, a.pinRpt.Bytes(a.withReportID()))
}

// GetIdleRate returns the current idle rate in 4ms units; 0 means infinite.
func (a *App) GetIdleRate() uint8 {
	return a.idleRate
}

// SetIdleRate stores the idle rate and precomputes its BT clock equivalent.
func (a *App) SetIdleRate(rate4ms uint8) error {
	a.idleRate = rate4ms
	a.idleRateClocks = idleRateToClocks(rate4ms)
	return nil
}

// idleRateProc retransmits the current standard report when the idle rate
// demands it. The resend only happens when a non-zero idle rate is set, no
// recovery is running, at least one key or modifier is held, no events are
// pending, the transport has room, and the idle period has elapsed since the
// last standard report transmission.
func (a *App) idleRateProc() {
	if a.idleRate != 0 &&
		a.recoveryInProgress == 0 &&
		(a.keysInStdRpt > 0 || a.modKeysInStdRpt > 0) &&
		a.queue.Len() == 0 &&
		a.link.BufferUtilization() < txBufferThreshold &&
		clocksSince(a.clock, a.stdRptTxInstant) >= a.idleRateClocks {
		a.stdRptSend()
	}
}
