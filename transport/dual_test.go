package transport_test

import (
	"errors"
	"testing"

	"github.com/Alia5/KEYPER/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlSpy struct {
	connects, disconnects, unplugs, pairings int
}

func (c *controlSpy) Connect()            { c.connects++ }
func (c *controlSpy) Disconnect()         { c.disconnects++ }
func (c *controlSpy) VirtualCableUnplug() { c.unplugs++ }
func (c *controlSpy) EnterPairing()       { c.pairings++ }

func TestDualRoutesToActiveCarrier(t *testing.T) {
	classic := transport.NewLoopback()
	le := transport.NewLoopback()
	dual := transport.NewDual(classic, le, nil)

	dual.SetActiveCarrier(transport.CarrierClassic)
	require.NoError(t, dual.SendReport(1, transport.ReportKindInput, []byte{1, 2}))

	dual.SetActiveCarrier(transport.CarrierLE)
	require.NoError(t, dual.SendReport(2, transport.ReportKindInput, []byte{3}))

	require.Len(t, classic.Sent, 1)
	assert.Equal(t, uint8(1), classic.Sent[0].ID)
	require.Len(t, le.Sent, 1)
	assert.Equal(t, uint8(2), le.Sent[0].ID)
}

func TestDualNoCarrier(t *testing.T) {
	dual := transport.NewDual(transport.NewLoopback(), transport.NewLoopback(), nil)

	assert.Equal(t, transport.CarrierNone, dual.ActiveCarrier())
	assert.False(t, dual.Connected())
	assert.Equal(t, 100, dual.BufferUtilization())

	err := dual.SendReport(1, transport.ReportKindInput, []byte{0})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestDualConnectedFollowsActiveCarrier(t *testing.T) {
	classic := transport.NewLoopback()
	le := transport.NewLoopback()
	le.Down = true
	dual := transport.NewDual(classic, le, nil)

	dual.SetActiveCarrier(transport.CarrierClassic)
	assert.True(t, dual.Connected())

	dual.SetActiveCarrier(transport.CarrierLE)
	assert.False(t, dual.Connected())
}

func TestDualBufferUtilization(t *testing.T) {
	classic := transport.NewLoopback()
	classic.Utilization = 42
	dual := transport.NewDual(classic, transport.NewLoopback(), nil)
	dual.SetActiveCarrier(transport.CarrierClassic)

	assert.Equal(t, 42, dual.BufferUtilization())
}

func TestDualControlDelegation(t *testing.T) {
	control := &controlSpy{}
	dual := transport.NewDual(transport.NewLoopback(), transport.NewLoopback(), control)

	dual.Connect()
	dual.Disconnect()
	dual.VirtualCableUnplug()
	dual.EnterPairing()

	assert.Equal(t, 1, control.connects)
	assert.Equal(t, 1, control.disconnects)
	assert.Equal(t, 1, control.unplugs)
	assert.Equal(t, 1, control.pairings)
}

func TestDualNilControlIsNoOp(t *testing.T) {
	dual := transport.NewDual(transport.NewLoopback(), transport.NewLoopback(), nil)

	dual.Connect()
	dual.Disconnect()
	dual.VirtualCableUnplug()
	dual.EnterPairing()
}

func TestLoopbackCapturesCopies(t *testing.T) {
	lb := transport.NewLoopback()
	payload := []byte{1, 2, 3}
	require.NoError(t, lb.SendReport(1, transport.ReportKindInput, payload))

	payload[0] = 0xFF
	assert.Equal(t, []byte{1, 2, 3}, lb.Sent[0].Payload)

	last := lb.Last()
	require.NotNil(t, last)
	assert.Equal(t, uint8(1), last.ID)

	lb.Reset()
	assert.Empty(t, lb.Sent)
	assert.Nil(t, lb.Last())
}

func TestLoopbackErrors(t *testing.T) {
	lb := transport.NewLoopback()
	lb.Down = true
	assert.ErrorIs(t, lb.SendReport(1, transport.ReportKindInput, nil), transport.ErrNotConnected)
	assert.False(t, lb.Connected())

	lb.Down = false
	sendErr := errors.New("tx ring full")
	lb.SendErr = sendErr
	assert.ErrorIs(t, lb.SendReport(1, transport.ReportKindInput, nil), sendErr)
	assert.Empty(t, lb.Sent)
}
