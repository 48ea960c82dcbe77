package transport

import "errors"

// ErrNotConnected is returned by SendReport when no host link is up.
var ErrNotConnected = errors.New("transport: not connected")

// SentReport is one report captured by a Loopback transport.
type SentReport struct {
	ID      uint8
	Kind    ReportKind
	Payload []byte
}

// Loopback is an in-memory Transport that records every report it is asked to
// send. It backs tests and serves as the default sink when no host link is
// configured.
type Loopback struct {
	Sent        []SentReport
	Utilization int
	Down        bool
	SendErr     error
}

// NewLoopback returns a connected loopback transport with an empty queue.
func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) SendReport(id uint8, kind ReportKind, payload []byte) error {
	if l.Down {
		return ErrNotConnected
	}
	if l.SendErr != nil {
		return l.SendErr
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	l.Sent = append(l.Sent, SentReport{ID: id, Kind: kind, Payload: p})
	return nil
}

func (l *Loopback) Connected() bool {
	return !l.Down
}

func (l *Loopback) BufferUtilization() int {
	return l.Utilization
}

// Reset drops all captured reports.
func (l *Loopback) Reset() {
	l.Sent = nil
}

// Last returns the most recently captured report, or nil if none.
func (l *Loopback) Last() *SentReport {
	if len(l.Sent) == 0 {
		return nil
	}
	return &l.Sent[len(l.Sent)-1]
}
