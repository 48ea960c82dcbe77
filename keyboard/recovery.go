package keyboard

// stdErrResp is the standard response to an event fault:
//   - all dynamic reports are cleared
//   - the func-lock key is marked up without toggling its state, so the
//     keyboard state including dependent keys reconstructs cleanly afterwards
//   - a rollover report is sent, unless a recovery is already running
//   - the recovery countdown is armed
//   - the standard, bit mapped and sleep reports are marked dirty so the
//     cleared state reaches the host once the recovery completes
//   - the connect button is assumed released
func (a *App) stdErrResp() {
	a.clearAllReports()

	a.funcLock.keyPosition = funcLockKeyUp

	if a.recoveryInProgress == 0 {
		a.stdRptRolloverSend()
	}

	a.recoveryInProgress = a.cfg.RecoveryPollCount

	a.slpRptChanged = true
	a.bitRptChanged = true
	a.stdRptChanged = true

	a.ConnectButton(false)
}

// stdErrRespWithReset is stdErrResp plus a full input reset: pending events
// are flushed and the keyscan hardware reset, for faults where the driver
// state itself is suspect.
func (a *App) stdErrRespWithReset() {
	a.stdErrResp()
	a.queue.Flush()
	if a.KeyscanResetHook != nil {
		a.KeyscanResetHook()
	}
}

// procErrKeyscan handles errors reported by the keyscan hardware, typically
// ghost keys.
func (a *App) procErrKeyscan() {
	a.log.Warn("keyscan error")
	a.stdErrRespWithReset()
}

// procErrEvtQueue handles event queue errors: overflow, unexpected events,
// missing expected events or events out of order.
func (a *App) procErrEvtQueue() {
	a.log.Warn("event queue error")
	a.stdErrRespWithReset()
}

// stdRptRolloverSend transmits the constant rollover report.
func (a *App) stdRptRolloverSend() {
	a.log.Debug("sending rollover report")
	a.sendInput(a.rolloverRpt.ReportID, a.rolloverRpt.Bytes(a.stdRptSlots(), a.withReportID()))
}
