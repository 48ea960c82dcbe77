package keyboard_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/Alia5/KEYPER/hidevent"
	"github.com/Alia5/KEYPER/keyboard"
	"github.com/Alia5/KEYPER/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scan codes from the default key table used throughout the tests.
const (
	scanA          = 0  // KeyA, standard
	scanB          = 1  // KeyB, standard
	scan1          = 26 // Key1, standard
	scan2          = 27 // Key2, standard
	scanEnter      = 36
	scanEscape     = 37
	scanBackspace  = 38
	scanLeftCtrl   = 60 // modifier
	scanLeftShift  = 61 // modifier
	scanFuncLock   = 68
	scanFuncLockF1 = 69 // func-lock dependent, F1 / home
	scanSleep      = 82
	scanMediaA     = 83 // bit mapped, position 1
	scanMediaB     = 84 // bit mapped, position 2
)

type fakeClock struct{ now uint32 }

func (c *fakeClock) Now() uint32 { return c.now }

type controlRec struct {
	connects    int
	disconnects int
	vcUnplugs   int
	pairings    int
}

func (c *controlRec) Connect()            { c.connects++ }
func (c *controlRec) Disconnect()         { c.disconnects++ }
func (c *controlRec) VirtualCableUnplug() { c.vcUnplugs++ }
func (c *controlRec) EnterPairing()       { c.pairings++ }

type authRec struct {
	pins       [][]byte
	passCodes  [][]byte
	keyPresses []uint8
}

func (a *authRec) PinCode(pin []byte) {
	p := make([]byte, len(pin))
	copy(p, pin)
	a.pins = append(a.pins, p)
}

func (a *authRec) PassCode(code []byte) {
	p := make([]byte, len(code))
	copy(p, code)
	a.passCodes = append(a.passCodes, p)
}

func (a *authRec) PassCodeKeyPress(event uint8) {
	a.keyPresses = append(a.keyPresses, event)
}

type testRig struct {
	app     *keyboard.App
	classic *transport.Loopback
	le      *transport.Loopback
	dual    *transport.Dual
	control *controlRec
	auth    *authRec
	clock   *fakeClock
}

func newTestRig(t *testing.T, opts ...keyboard.Option) *testRig {
	t.Helper()
	return newTestRigWithConfig(t, keyboard.DefaultConfig(), opts...)
}

func newTestRigWithConfig(t *testing.T, cfg keyboard.Config, opts ...keyboard.Option) *testRig {
	t.Helper()
	rig := &testRig{
		classic: transport.NewLoopback(),
		le:      transport.NewLoopback(),
		control: &controlRec{},
		auth:    &authRec{},
		clock:   &fakeClock{},
	}
	rig.dual = transport.NewDual(rig.classic, rig.le, rig.control)
	rig.dual.SetActiveCarrier(transport.CarrierClassic)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	all := append([]keyboard.Option{
		keyboard.WithAuthSink(rig.auth),
		keyboard.WithClock(rig.clock),
	}, opts...)
	rig.app = keyboard.New(cfg, rig.dual, logger, all...)
	return rig
}

// pressAndPoll queues down events for the given scan codes, closes the scan
// cycle and runs one poll.
func (r *testRig) pressAndPoll(codes ...uint8) {
	for _, c := range codes {
		r.app.OnKeyEvent(c, true)
	}
	r.app.OnKeyEvent(hidevent.EndOfScanCycle, false)
	r.app.PollReportUserActivity()
}

// releaseAndPoll queues up events for the given scan codes, closes the scan
// cycle and runs one poll.
func (r *testRig) releaseAndPoll(codes ...uint8) {
	for _, c := range codes {
		r.app.OnKeyEvent(c, false)
	}
	r.app.OnKeyEvent(hidevent.EndOfScanCycle, false)
	r.app.PollReportUserActivity()
}

func TestKeyDownProducesStandardReport(t *testing.T) {
	rig := newTestRig(t)
	rig.pressAndPoll(scanA)

	require.Len(t, rig.classic.Sent, 1)
	sent := rig.classic.Sent[0]
	assert.Equal(t, uint8(1), sent.ID)
	assert.Equal(t, transport.ReportKindInput, sent.Kind)
	// report ID, modifiers, reserved, 6 key slots
	assert.Equal(t, []byte{1, 0, 0, keyboard.KeyA, 0, 0, 0, 0, 0}, sent.Payload)
}

func TestKeyUpRemovesFromReport(t *testing.T) {
	rig := newTestRig(t)
	rig.pressAndPoll(scanA, scanB)
	rig.classic.Reset()

	rig.releaseAndPoll(scanA)
	require.Len(t, rig.classic.Sent, 1)
	// KeyB swaps into the freed slot.
	assert.Equal(t, []byte{1, 0, 0, keyboard.KeyB, 0, 0, 0, 0, 0}, rig.classic.Sent[0].Payload)
}

func TestModifierKeysSetMask(t *testing.T) {
	rig := newTestRig(t)
	rig.pressAndPoll(scanLeftCtrl, scanLeftShift, scanA)

	require.Len(t, rig.classic.Sent, 1)
	payload := rig.classic.Sent[0].Payload
	assert.Equal(t, uint8(keyboard.ModLeftCtrl|keyboard.ModLeftShift), payload[1])
	assert.Equal(t, uint8(keyboard.KeyA), payload[3])
}

func TestDuplicateKeyDownIgnored(t *testing.T) {
	rig := newTestRig(t)
	rig.pressAndPoll(scanA)
	rig.classic.Reset()

	// Same key again: report does not change, nothing is sent.
	rig.pressAndPoll(scanA)
	assert.Empty(t, rig.classic.Sent)
}

func TestNoActivityTriggersNoConnect(t *testing.T) {
	rig := newTestRig(t)
	rig.classic.Down = true
	rig.le.Down = true

	rig.app.PollReportUserActivity()
	assert.Zero(t, rig.control.connects)
}

func TestActivityTriggersConnectWhenDisconnected(t *testing.T) {
	rig := newTestRig(t)
	rig.classic.Down = true

	rig.app.OnKeyEvent(scanA, true)
	rig.app.OnKeyEvent(hidevent.EndOfScanCycle, false)
	rig.app.PollReportUserActivity()

	assert.Equal(t, 1, rig.control.connects)
	assert.Empty(t, rig.classic.Sent)
}

func TestConnectButtonUnplugsAndPairs(t *testing.T) {
	rig := newTestRig(t)
	rig.app.OnKeyEvent(255, true)

	assert.Equal(t, 1, rig.control.vcUnplugs)
	assert.Equal(t, 1, rig.control.pairings)

	// Releases do nothing.
	rig.app.OnKeyEvent(255, false)
	assert.Equal(t, 1, rig.control.vcUnplugs)
}

func TestConnectButtonOnlyCycleIsNotActivity(t *testing.T) {
	rig := newTestRig(t)
	rig.classic.Down = true

	// A scan cycle containing only the connect button swallows its
	// end-of-cycle event: pairing starts, but the stale host is not paged.
	rig.app.OnKeyEvent(255, true)
	rig.app.OnKeyEvent(hidevent.EndOfScanCycle, false)
	rig.app.PollReportUserActivity()

	assert.Equal(t, 1, rig.control.pairings)
	assert.Zero(t, rig.control.connects)
}

func TestConnectButtonWithOtherKeysKeepsCycle(t *testing.T) {
	rig := newTestRig(t)

	rig.app.OnKeyEvent(255, true)
	rig.app.OnKeyEvent(scanA, true)
	rig.app.OnKeyEvent(hidevent.EndOfScanCycle, false)
	rig.app.PollReportUserActivity()

	// The real key press cancels the suppression; the cycle closes and the
	// standard report goes out.
	require.Len(t, rig.classic.Sent, 1)
	assert.Equal(t, uint8(keyboard.KeyA), rig.classic.Sent[0].Payload[3])
}

func TestConnectButtonIgnoredDuringRecovery(t *testing.T) {
	rig := newTestRig(t)

	// Seven standard keys overflow the six report slots and arm recovery.
	rig.pressAndPoll(scanA, scanB, scan1, scan2, scanEnter, scanEscape, scanBackspace)
	rig.classic.Reset()

	rig.app.OnKeyEvent(255, true)
	assert.Zero(t, rig.control.vcUnplugs)
	assert.Zero(t, rig.control.pairings)
}

func TestBatteryLevelSentInReportProtocol(t *testing.T) {
	rig := newTestRig(t)
	rig.app.OnBatteryLevel(57)

	require.Len(t, rig.classic.Sent, 1)
	assert.Equal(t, []byte{3, 57}, rig.classic.Sent[0].Payload)
}

func TestBatteryLevelSuppressedInBootProtocol(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.app.SetProtocol(keyboard.ProtocolBoot))

	rig.app.OnBatteryLevel(57)
	assert.Empty(t, rig.classic.Sent)
}

func TestShutdownFlushesAndDisconnects(t *testing.T) {
	rig := newTestRig(t)
	rig.app.OnKeyEvent(scanA, true)

	rig.app.Shutdown()
	assert.Equal(t, 1, rig.control.disconnects)

	// The queued press is gone; a later poll sends nothing.
	rig.app.PollReportUserActivity()
	assert.Empty(t, rig.classic.Sent)
}

func TestConnectFailedFlushesPendingInput(t *testing.T) {
	rig := newTestRig(t)
	rig.app.OnKeyEvent(scanA, true)
	rig.app.OnKeyEvent(hidevent.EndOfScanCycle, false)

	rig.app.ConnectFailed()
	rig.app.PollReportUserActivity()
	assert.Empty(t, rig.classic.Sent)
}

func TestLinkStateReloadsHostFlags(t *testing.T) {
	hosts := &fakeHosts{flags: map[string]uint16{"AA:BB": keyboard.NotifStdRpt | keyboard.NotifScrollRpt}}
	rig := newTestRig(t, keyboard.WithHostFlags(hosts))

	rig.app.OnLinkState(transport.CarrierLE, transport.LinkConnected, "AA:BB")
	assert.True(t, rig.app.NotificationEnabled(1))
	assert.True(t, rig.app.NotificationEnabled(6))
	assert.False(t, rig.app.NotificationEnabled(2))
}

type fakeHosts struct {
	flags map[string]uint16
}

func (f *fakeHosts) GetFlags(peer string) (uint16, bool) {
	v, ok := f.flags[peer]
	return v, ok
}

func (f *fakeHosts) SetFlags(peer string, enable bool, bit uint16) uint16 {
	v := f.flags[peer]
	if enable {
		v |= bit
	} else {
		v &^= bit
	}
	f.flags[peer] = v
	return v
}
