package keyboard_test

import (
	"testing"

	"github.com/Alia5/KEYPER/keyboard"
	"github.com/Alia5/KEYPER/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTransmissionOrder(t *testing.T) {
	rig := newTestRig(t)

	// Dirty every report class in one scan cycle: standard key, bit mapped
	// key, sleep key, func-lock toggle.
	rig.pressAndPoll(scanA, scanMediaA, scanSleep, scanFuncLock)

	require.Len(t, rig.classic.Sent, 4)
	assert.Equal(t, uint8(1), rig.classic.Sent[0].ID)
	assert.Equal(t, uint8(2), rig.classic.Sent[1].ID)
	assert.Equal(t, uint8(4), rig.classic.Sent[2].ID)
	assert.Equal(t, uint8(5), rig.classic.Sent[3].ID)
}

func TestBootProtocolSendsOnlyStandardReport(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.app.SetProtocol(keyboard.ProtocolBoot))

	rig.pressAndPoll(scanA, scanMediaA, scanSleep)

	require.Len(t, rig.classic.Sent, 1)
	assert.Equal(t, uint8(1), rig.classic.Sent[0].ID)
}

func TestLEReportsOmitReportID(t *testing.T) {
	rig := newTestRig(t)
	rig.dual.SetActiveCarrier(transport.CarrierLE)

	rig.pressAndPoll(scanA)

	require.Len(t, rig.le.Sent, 1)
	sent := rig.le.Sent[0]
	assert.Equal(t, uint8(1), sent.ID)
	// modifiers, reserved, 6 key slots; no leading report ID byte
	assert.Equal(t, []byte{0, 0, keyboard.KeyA, 0, 0, 0, 0, 0}, sent.Payload)
}

func TestSaturatedTransportDefersProcessing(t *testing.T) {
	rig := newTestRig(t)
	rig.classic.Utilization = 95

	rig.pressAndPoll(scanA)
	assert.Empty(t, rig.classic.Sent)

	// Once the transport drains, the queued events are processed.
	rig.classic.Utilization = 0
	rig.app.PollReportUserActivity()
	require.Len(t, rig.classic.Sent, 1)
	assert.Equal(t, uint8(keyboard.KeyA), rig.classic.Sent[0].Payload[3])
}

func TestIdleRateResendsHeldKeys(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.app.SetIdleRate(10)) // 10*4ms -> 128 BT clocks

	rig.pressAndPoll(scanA)
	require.Len(t, rig.classic.Sent, 1)

	// Before the idle period elapses, polls do not resend.
	rig.clock.now += 100
	rig.app.PollReportUserActivity()
	assert.Len(t, rig.classic.Sent, 1)

	// Once it elapses, the held report goes out again.
	rig.clock.now += 28
	rig.app.PollReportUserActivity()
	require.Len(t, rig.classic.Sent, 2)
	assert.Equal(t, rig.classic.Sent[0].Payload, rig.classic.Sent[1].Payload)
}

func TestIdleRateZeroNeverResends(t *testing.T) {
	rig := newTestRig(t)

	rig.pressAndPoll(scanA)
	require.Len(t, rig.classic.Sent, 1)

	rig.clock.now += 100000
	rig.app.PollReportUserActivity()
	assert.Len(t, rig.classic.Sent, 1)
}

func TestIdleRateNoResendWithoutHeldKeys(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.app.SetIdleRate(10))

	rig.pressAndPoll(scanA)
	rig.releaseAndPoll(scanA)
	rig.classic.Reset()

	rig.clock.now += 1000
	rig.app.PollReportUserActivity()
	assert.Empty(t, rig.classic.Sent)
}

func TestIdleRateRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	assert.Equal(t, uint8(0), rig.app.GetIdleRate())

	require.NoError(t, rig.app.SetIdleRate(24))
	assert.Equal(t, uint8(24), rig.app.GetIdleRate())
}

func TestModifierOnlyHeldTriggersIdleResend(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.app.SetIdleRate(10))

	rig.pressAndPoll(scanLeftCtrl)
	require.Len(t, rig.classic.Sent, 1)

	rig.clock.now += 200
	rig.app.PollReportUserActivity()
	require.Len(t, rig.classic.Sent, 2)
}
