// Package keyboard implements the application core of a dual-mode (BT classic
// and LE) HID keyboard: it classifies raw key and scroll events into HID
// report accumulators, transmits dirty reports over the active transport,
// recovers from event faults, and runs the PIN/passkey entry sub-mode used
// during pairing.
//
// The core is single-threaded and cooperative. Hardware callbacks only
// enqueue events and trigger a poll; every state mutation happens inside one
// PollReportUserActivity cycle, which runs to completion before the next.
package keyboard

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Alia5/KEYPER/hidevent"
	keyperlog "github.com/Alia5/KEYPER/internal/log"
	"github.com/Alia5/KEYPER/transport"
)

// Handshake-level errors surfaced to the HID control channel.
var (
	ErrInvalidReportID    = errors.New("keyboard: invalid report id")
	ErrInvalidParameter   = errors.New("keyboard: invalid parameter")
	ErrUnsupportedRequest = errors.New("keyboard: unsupported request")
	// ErrEntryModeBusy rejects a PIN/passkey entry request while another
	// entry sequence is already active.
	ErrEntryModeBusy = errors.New("keyboard: pin entry already in progress")
)

// HostFlagsStore persists per-bond report subscription flags for the
// connected host.
type HostFlagsStore interface {
	// GetFlags returns the stored flags for peer; ok is false when the peer
	// has no stored entry.
	GetFlags(peer string) (flags uint16, ok bool)
	// SetFlags sets or clears bit for peer and returns the updated flags.
	SetFlags(peer string, enable bool, bit uint16) uint16
}

// Activity classifies what a poll observed, mirroring what the link layer
// needs to decide on reconnection.
type Activity uint8

const (
	ActivityNone Activity = 0
	// ActivityReportable means user input that should reach the host exists.
	ActivityReportable Activity = 1 << 0
	// ActivityNonReportable means local-only activity (e.g. pin entry).
	ActivityNonReportable Activity = 1 << 1
)

// funcLockKeyPosition is the transient physical position of the func-lock key,
// tracked separately from the sticky FuncLockState.
type funcLockKeyPosition uint8

const (
	funcLockKeyUp funcLockKeyPosition = iota
	funcLockKeyDown
)

type funcLockInfo struct {
	state         FuncLockState
	keyPosition   funcLockKeyPosition
	toggleOnKeyUp bool
}

// App is the process-wide keyboard application state. All of it is owned by
// the polling loop; nothing in App is safe for concurrent use.
type App struct {
	cfg         Config
	keyTable    []KeyEntry
	funcLockDep []FuncLockDepEntry

	queue *hidevent.Queue
	link  transport.Link
	auth  transport.AuthSink
	hosts HostFlagsStore
	clock Clock
	log   *slog.Logger

	protocol Protocol
	pollSeqn uint32

	// suppressEndOfCycle drops the end-of-cycle event of a scan cycle whose
	// only content was the connect button, so the button alone never counts
	// as reportable user activity.
	suppressEndOfCycle bool

	stdRpt          StandardReport
	rolloverRpt     StandardReport
	keysInStdRpt    int
	modKeysInStdRpt int
	stdRptChanged   bool
	stdRptTxInstant uint32

	bitRpt        BitMappedReport
	keysInBitRpt  int
	bitRptChanged bool

	slpRpt        SleepReport
	slpRptChanged bool

	funcLock           funcLockInfo
	funcLockRpt        FuncLockReport
	funcLockRptChanged bool

	scrollRpt        ScrollReport
	scrollRptChanged bool
	scrollFractional int16
	pollsSinceScroll uint8

	batRpt BatteryReport
	ledRpt LEDReport

	pinRpt        PinReport
	pinRptChanged bool
	pinMode       pinEntryMode
	pinBuf        [MaxPinSize + 1]byte
	pinLen        int
	maxPinLen     int
	enterKeyCode  uint8 // usage code of the Enter variant that latched, 0 if none

	recoveryInProgress int

	idleRate       uint8
	idleRateClocks uint32

	// UserKeyHook is invoked for KindUserDefined key events. It is the only
	// externally extensible classification point.
	UserKeyHook func(down bool, scanCode, translationCode uint8)

	// LEDCallback is invoked whenever the host updates the LED output report.
	LEDCallback func(states uint8)

	// KeyscanResetHook resets the key event source after a fault that makes
	// its state suspect.
	KeyscanResetHook func()

	notifFlags      uint16
	reportModeTable []reportTableEntry
	bootModeTable   []reportTableEntry

	peer string // address of the bonded peer, for flag persistence

	scrollSource func() int16
}

// Option configures optional App collaborators.
type Option func(*App)

// WithAuthSink wires the authenticating transport receiving completed
// PIN/passkey entry.
func WithAuthSink(a transport.AuthSink) Option {
	return func(app *App) { app.auth = a }
}

// WithHostFlags wires the per-bond subscription flag store.
func WithHostFlags(h HostFlagsStore) Option {
	return func(app *App) { app.hosts = h }
}

// WithClock overrides the BT clock, for tests.
func WithClock(c Clock) Option {
	return func(app *App) { app.clock = c }
}

// WithScrollSource wires the quadrature driver's accumulated-count reader,
// drained once per poll.
func WithScrollSource(fn func() int16) Option {
	return func(app *App) { app.scrollSource = fn }
}

// WithKeyTable replaces the default scan code translation table.
func WithKeyTable(t []KeyEntry) Option {
	return func(app *App) { app.keyTable = t }
}

// WithFuncLockDepTable replaces the default func-lock dependent key table.
func WithFuncLockDepTable(t []FuncLockDepEntry) Option {
	return func(app *App) { app.funcLockDep = t }
}

// New builds the keyboard application around a link and a logger.
func New(cfg Config, link transport.Link, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxKeysInStdReport <= 0 || cfg.MaxKeysInStdReport > MaxKeysInStdReport {
		cfg.MaxKeysInStdReport = MaxKeysInStdReport
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = 24
	}

	app := &App{
		cfg:         cfg,
		keyTable:    DefaultKeyTable(),
		funcLockDep: DefaultFuncLockDepTable(),
		queue:       hidevent.NewQueue(cfg.EventQueueSize),
		link:        link,
		clock:       NewBTClock(),
		log:         logger,
		protocol:    ProtocolReport,
	}
	for _, o := range opts {
		o(app)
	}

	app.funcLock.state = cfg.DefaultFuncLockState
	app.funcLock.keyPosition = funcLockKeyUp

	app.rolloverRpt = newRolloverReport(cfg.StdReportID)
	app.bitRpt = newBitMappedReport(cfg.BitReportID, cfg.NumBitMappedKeys)
	app.batRpt = BatteryReport{ReportID: cfg.BatteryReportID, Level: 100}
	app.ledRpt = LEDReport{ReportID: cfg.LEDReportID, LEDStates: cfg.DefaultLEDState}
	app.funcLockRptInit()
	app.clearAllReports()
	app.initReportTables()

	return app
}

// stdRptSlots returns the configured key slot count of the standard report.
func (a *App) stdRptSlots() int {
	return a.cfg.MaxKeysInStdReport
}

// OnKeyEvent is the keyscan driver callback. It queues the event (connect
// button events bypass the queue) and is safe to call repeatedly before a
// poll; the queue signals overflow to the consumer by marker.
//
// endOfCycle suppression: a scan cycle that contained only the connect button
// does not contribute an end-of-cycle event, mirroring the driver contract.
func (a *App) OnKeyEvent(code uint8, down bool) {
	if code == a.cfg.ConnectButtonScanIndex {
		a.suppressEndOfCycle = true
		if a.recoveryInProgress == 0 {
			a.ConnectButton(down)
		}
		return
	}
	if code == hidevent.EndOfScanCycle {
		if a.suppressEndOfCycle {
			a.suppressEndOfCycle = false
			return
		}
	} else {
		a.suppressEndOfCycle = false
		a.log.Log(context.Background(), keyperlog.LevelTrace, "key event", "code", code, "down", down)
	}
	a.queue.PushWithOverflow(hidevent.KeyEvent(code, down), a.pollSeqn)
}

// OnScrollEvent queues raw scroll motion when the event source pushes deltas
// directly instead of exposing an accumulated counter.
func (a *App) OnScrollEvent(delta int16) {
	a.queue.PushWithOverflow(hidevent.MotionEvent(delta), a.pollSeqn)
}

// PollReportUserActivity is the poll entry point, invoked by hardware
// interrupts and the link layer's poll callback. It drains hardware activity
// into the queue, processes it, and transmits any resulting reports.
func (a *App) PollReportUserActivity() {
	a.pollSeqn++
	if a.pollSeqn%64 == 0 {
		a.log.Debug("polling", "seqn", a.pollSeqn)
	}

	activity := a.pollActivityUser()

	if activity != ActivityNone && !a.link.Connected() {
		a.link.Connect()
	}

	if a.link.Connected() {
		a.generateAndTxReports()
	}
}

// pollActivityUser gathers scroll activity and reports what kind of user
// activity is pending.
func (a *App) pollActivityUser() Activity {
	a.pollActivityScroll()

	if a.pinMode != pinEntryNone {
		a.handlePinEntry()
		// Pin entry always counts as both reportable and non-reportable.
		return ActivityReportable | ActivityNonReportable
	}

	if a.queue.Len() > 0 || a.modKeysInStdRpt > 0 || a.keysInStdRpt > 0 ||
		a.keysInBitRpt > 0 || a.slpRpt.SleepVal != 0 {
		return ActivityReportable
	}
	return ActivityNone
}

// generateAndTxReports drains the event queue into the accumulators and
// transmits dirty reports. During pin entry only the pin report is serviced.
// The recovery countdown is decremented here; when it reaches zero the
// reports hoarded during the fault are flushed before new events are drained.
func (a *App) generateAndTxReports() {
	if a.pinMode != pinEntryNone {
		if a.pinRptChanged {
			a.pinRptSend()
		}
		return
	}

	if a.recoveryInProgress > 0 {
		a.recoveryInProgress--
		if a.recoveryInProgress == 0 {
			a.txModifiedKeyReports()
		}
	}

	for a.link.BufferUtilization() < txBufferThreshold {
		ev := a.queue.Current()
		if ev == nil {
			break
		}
		switch ev.Kind {
		case hidevent.KindKey:
			a.procEvtKey()
		case hidevent.KindMotion:
			a.procEvtScroll()
		case hidevent.KindOverflow:
			a.procErrEvtQueue()
		default:
			a.procEvtUserDefined()
		}
		// Each handler consumes at least the current event.
	}

	a.idleRateProc()
}

// procEvtUserDefined consumes an event of an unknown kind. Deliberately a
// no-op beyond consumption.
func (a *App) procEvtUserDefined() {
	a.queue.RemoveCurrent()
}

// ConnectButton processes the pairing button. Only presses act; a press
// generates a virtual cable unplug and makes the device discoverable.
func (a *App) ConnectButton(down bool) {
	if !down {
		return
	}
	a.log.Info("connect button pressed")
	a.link.VirtualCableUnplug()
	a.link.EnterPairing()
}

// OnLinkState is the link-state observer shared by both carriers. A connected
// link reloads the bonded host's notification flags; everything else only
// logs, since LED/power scheduling belongs to the platform layer.
func (a *App) OnLinkState(carrier transport.Carrier, state transport.LinkState, peer string) {
	switch state {
	case transport.LinkConnected:
		a.log.Info("link connected", "carrier", carrier.String(), "peer", peer)
		a.peer = peer
		if a.hosts != nil {
			if flags, ok := a.hosts.GetFlags(peer); ok {
				a.updateNotificationFlags(flags)
			}
		}
	case transport.LinkDisconnected:
		a.log.Info("link disconnected", "carrier", carrier.String())
	case transport.LinkDiscoverable:
		a.log.Info("link discoverable", "carrier", carrier.String())
	case transport.LinkReconnecting:
		a.log.Info("link reconnecting", "carrier", carrier.String())
	}
}

// ConnectFailed is called when paging the bonded host fails; all pending user
// input is stale by then and gets flushed.
func (a *App) ConnectFailed() {
	a.FlushUserInput()
}

// Shutdown quiesces the application on critical battery. Pending input is
// flushed and the link torn down.
func (a *App) Shutdown() {
	a.log.Info("shutting down")
	a.FlushUserInput()
	if a.link.Connected() {
		a.link.Disconnect()
	}
}

// OnBatteryLevel is the battery monitor observer. Level changes are reported
// to the host immediately, but only in report protocol.
func (a *App) OnBatteryLevel(level uint8) {
	a.log.Debug("battery level changed", "level", level)
	if a.protocol == ProtocolReport {
		a.batRpt.Level = level
		a.batRptSend()
	}
}

// clearAllReports clears every dynamic report (standard, bit mapped, sleep,
// pin, scroll) and marks them all clean. The func-lock report is left alone:
// it reflects the state of func-lock, not of the func-lock key, and has
// nothing to clear.
func (a *App) clearAllReports() {
	a.stdRptClear()
	a.bitRptClear()
	a.slpRptClear()
	a.pinRptClear()
	a.scrollRptClear()

	a.bitRptChanged = false
	a.slpRptChanged = false
	a.stdRptChanged = false
	a.pinRptChanged = false
	a.scrollRptChanged = false
	a.funcLockRptChanged = false
}

// FlushUserInput drops all queued events, fractional scroll and report
// contents, and cancels any recovery in progress.
func (a *App) FlushUserInput() {
	a.scrollFractional = 0
	a.recoveryInProgress = 0
	a.clearAllReports()
	a.queue.Flush()
}

func (a *App) stdRptClear() {
	a.modKeysInStdRpt = 0
	a.keysInStdRpt = 0
	a.stdRpt = StandardReport{ReportID: a.cfg.StdReportID}
}

func (a *App) bitRptClear() {
	a.keysInBitRpt = 0
	a.bitRpt.ReportID = a.cfg.BitReportID
	a.bitRpt.keys.reset()
}

func (a *App) slpRptClear() {
	a.slpRpt = SleepReport{ReportID: a.cfg.SleepReportID}
}

func (a *App) scrollRptClear() {
	a.scrollRpt = ScrollReport{ReportID: a.cfg.ScrollReportID}
	a.scrollRptChanged = false
}

func (a *App) pinRptClear() {
	a.pinRpt = PinReport{ReportID: a.cfg.PinReportID}
}

func (a *App) funcLockRptInit() {
	a.funcLockRpt.ReportID = a.cfg.FuncLockReportID
	a.funcLockRpt.Status = uint8(a.funcLock.state) | funcLockEventFlag
}
