package server_test

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Alia5/KEYPER/apiclient"
	"github.com/Alia5/KEYPER/internal/server"
	"github.com/Alia5/KEYPER/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "test123"

type linkEvent struct {
	state transport.LinkState
	peer  string
}

type serverRig struct {
	srv    *server.Server
	addr   string
	states chan linkEvent
	output chan []byte
	errCh  chan error
}

func startTestServer(t *testing.T) *serverRig {
	t.Helper()

	cfg := server.Config{
		Addr:              "127.0.0.1:0",
		ConnectionTimeout: 2 * time.Second,
		SendQueueLen:      8,
		Password:          testPassword,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(cfg, logger, nil)
	require.NoError(t, err)

	rig := &serverRig{
		srv:    srv,
		states: make(chan linkEvent, 8),
		output: make(chan []byte, 8),
		errCh:  make(chan error, 1),
	}
	srv.SetStateHandler(func(state transport.LinkState, peer string) {
		rig.states <- linkEvent{state, peer}
	})
	srv.SetOutputHandler(func(kind transport.ReportKind, payload []byte) {
		rig.output <- payload
	})

	go func() { rig.errCh <- srv.ListenAndServe() }()
	select {
	case <-srv.Ready():
	case err := <-rig.errCh:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}

	rig.addr = fmt.Sprintf("127.0.0.1:%d", srv.GetListenPort())
	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case <-rig.errCh:
		case <-time.After(2 * time.Second):
		}
	})
	return rig
}

func (r *serverRig) waitState(t *testing.T, want transport.LinkState) string {
	t.Helper()
	select {
	case ev := <-r.states:
		assert.Equal(t, want, ev.state)
		return ev.peer
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for link state %d", want)
		return ""
	}
}

func TestServerRejectsWithoutPassword(t *testing.T) {
	_, err := server.New(server.Config{Addr: ":0"}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	assert.Error(t, err)
}

func TestNoHostBehaviour(t *testing.T) {
	rig := startTestServer(t)

	assert.False(t, rig.srv.Connected())
	assert.Equal(t, 100, rig.srv.BufferUtilization())
	err := rig.srv.SendReport(1, transport.ReportKindInput, []byte{0})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestHostAttachAndReportDelivery(t *testing.T) {
	rig := startTestServer(t)

	client, err := apiclient.Dial(rig.addr, testPassword)
	require.NoError(t, err)
	defer client.Close()
	rig.waitState(t, transport.LinkConnected)
	assert.True(t, rig.srv.Connected())

	payload := []byte{1, 0, 0, 4, 0, 0, 0, 0, 0}
	require.NoError(t, rig.srv.SendReport(1, transport.ReportKindInput, payload))

	frame, err := client.ReadReport()
	require.NoError(t, err)
	assert.Equal(t, transport.ReportKindInput, frame.Kind)
	assert.Equal(t, uint8(1), frame.ReportID)
	assert.Equal(t, payload, frame.Payload)
}

func TestHostOutputReportReachesHandler(t *testing.T) {
	rig := startTestServer(t)

	client, err := apiclient.Dial(rig.addr, testPassword)
	require.NoError(t, err)
	defer client.Close()
	rig.waitState(t, transport.LinkConnected)

	require.NoError(t, client.SendOutputReport(14, []byte{0x02}))

	select {
	case payload := <-rig.output:
		// The handler receives the report ID prefixed, matching the classic
		// SET_REPORT payload shape.
		assert.Equal(t, []byte{14, 0x02}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for output report")
	}
}

func TestHostDetachNotifies(t *testing.T) {
	rig := startTestServer(t)

	client, err := apiclient.Dial(rig.addr, testPassword)
	require.NoError(t, err)
	peer := rig.waitState(t, transport.LinkConnected)

	require.NoError(t, client.Close())
	gone := rig.waitState(t, transport.LinkDisconnected)
	assert.Equal(t, peer, gone)

	// Eventually reports fail again.
	require.Eventually(t, func() bool {
		return !rig.srv.Connected()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSecondHostRejected(t *testing.T) {
	rig := startTestServer(t)

	first, err := apiclient.Dial(rig.addr, testPassword)
	require.NoError(t, err)
	defer first.Close()
	rig.waitState(t, transport.LinkConnected)

	second, err := apiclient.Dial(rig.addr, testPassword)
	if err == nil {
		// The handshake may complete before the server drops the extra host;
		// the connection must then close without ever carrying a report.
		defer second.Close()
		_, readErr := second.ReadReport()
		assert.Error(t, readErr)
	}

	// The first host is unaffected.
	require.NoError(t, rig.srv.SendReport(4, transport.ReportKindInput, []byte{4, 1}))
	frame, err := first.ReadReport()
	require.NoError(t, err)
	assert.Equal(t, uint8(4), frame.ReportID)
}

func TestWrongPasswordRejected(t *testing.T) {
	rig := startTestServer(t)

	client, err := apiclient.Dial(rig.addr, "not-the-password")
	if err == nil {
		// The server closes the link after the failed handshake; the first
		// read must fail.
		defer client.Close()
		_, readErr := client.ReadReport()
		assert.Error(t, readErr)
	}

	select {
	case ev := <-rig.states:
		t.Fatalf("unexpected link state %d for unauthenticated host", ev.state)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendQueueBackpressure(t *testing.T) {
	rig := startTestServer(t)

	client, err := apiclient.Dial(rig.addr, testPassword)
	require.NoError(t, err)
	rig.waitState(t, transport.LinkConnected)

	// A client that never reads lets the queue fill once the socket buffers
	// are saturated; SendReport must fail with ErrCongested instead of
	// blocking the poll loop.
	var sawCongested bool
	for i := 0; i < 100000; i++ {
		err := rig.srv.SendReport(1, transport.ReportKindInput, make([]byte, 256))
		if err != nil {
			require.ErrorIs(t, err, server.ErrCongested)
			sawCongested = true
			break
		}
	}
	if sawCongested {
		assert.GreaterOrEqual(t, rig.srv.BufferUtilization(), 80)
	}
	_ = client.Close()
}
