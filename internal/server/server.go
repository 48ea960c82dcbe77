// Package server implements the encrypted TCP host link. It stands in for the
// Bluetooth radio: the keyboard core hands it HID reports through the
// transport.Transport interface, a remote host attaches with the shared key,
// and LED output reports flow back to the core.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	keyperlog "github.com/Alia5/KEYPER/internal/log"
	"github.com/Alia5/KEYPER/internal/server/auth"
	"github.com/Alia5/KEYPER/transport"
)

// ErrCongested is returned by SendReport when the per-host send queue is full.
// The keyboard core treats a saturated link as a reason to stop generating, so
// steady-state operation never sees this.
var ErrCongested = errors.New("server: send queue full")

// Config is the host link server configuration.
type Config struct {
	Addr              string        `help:"Host link listen address" default:":3242" env:"KEYPER_ADDR"`
	ConnectionTimeout time.Duration `help:"Handshake timeout per connection" default:"30s" env:"KEYPER_CONNECTION_TIMEOUT"`
	SendQueueLen      int           `help:"Report send queue length" default:"32" env:"KEYPER_SEND_QUEUE"`
	Password          string        `kong:"-"`
}

// OutputFunc receives output reports (LED state) sent by the attached host.
type OutputFunc func(kind transport.ReportKind, payload []byte)

// StateFunc receives host attach/detach notifications.
type StateFunc func(state transport.LinkState, peer string)

// Server accepts one authenticated host at a time and shuttles report frames
// both ways. It implements transport.Transport for the keyboard core.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	rawLogger keyperlog.RawLogger
	key       []byte

	output OutputFunc
	state  StateFunc

	ready     chan struct{}
	readyOnce sync.Once
	ln        net.Listener

	mu   sync.Mutex
	host *hostConn
}

type hostConn struct {
	conn  net.Conn
	peer  string
	sendQ chan []byte
	done  chan struct{}
}

// New builds a host link server. The configured password is stretched to the
// handshake key up front so a bad configuration fails at startup.
func New(cfg Config, logger *slog.Logger, rawLogger keyperlog.RawLogger) (*Server, error) {
	key, err := auth.DeriveKey(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("derive host link key: %w", err)
	}
	if cfg.SendQueueLen < 1 {
		cfg.SendQueueLen = 32
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		rawLogger: rawLogger,
		key:       key,
		ready:     make(chan struct{}),
	}, nil
}

// SetOutputHandler installs the sink for host output reports. Must be called
// before ListenAndServe.
func (s *Server) SetOutputHandler(fn OutputFunc) { s.output = fn }

// SetStateHandler installs the host attach/detach observer. Must be called
// before ListenAndServe.
func (s *Server) SetStateHandler(fn StateFunc) { s.state = fn }

// ListenAndServe binds the listen address and serves hosts until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("Host link listening", "addr", s.cfg.Addr)
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || strings.Contains(strings.ToLower(err.Error()), "use of closed network connection") {
				s.logger.Info("Host link stopped")
				return nil
			}
			s.logger.Error("Accept error", "error", err)
			continue
		}
		s.logger.Info("Host connecting", "remote", c.RemoteAddr())
		go func() {
			if err := s.handleConn(c); err != nil {
				s.logger.Warn("Host connection closed", "remote", c.RemoteAddr(), "error", err)
			} else {
				s.logger.Info("Host disconnected", "remote", c.RemoteAddr())
			}
		}()
	}
}

// Ready returns a channel that is closed once the server has bound its listen
// address.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Close stops the server and detaches the current host, if any.
func (s *Server) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host != nil {
		_ = host.conn.Close()
	}
	return err
}

// DisconnectHost closes the attached host connection, if any. The read loop
// notices the closed socket and emits the detach notification.
func (s *Server) DisconnectHost() {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host != nil {
		_ = host.conn.Close()
	}
}

// GetListenPort extracts and returns the port number from the server's listen address.
func (s *Server) GetListenPort() uint16 {
	addr := s.cfg.Addr
	if s.ln != nil {
		addr = s.ln.Addr().String()
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port)
}

// SendReport queues an input report frame for the attached host. It never
// blocks; without a host it returns transport.ErrNotConnected and with a full
// queue ErrCongested.
func (s *Server) SendReport(id uint8, kind transport.ReportKind, payload []byte) error {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host == nil {
		return transport.ErrNotConnected
	}

	data, err := Frame{Kind: kind, ReportID: id, Payload: payload}.Encode(nil)
	if err != nil {
		return err
	}
	if s.rawLogger != nil {
		s.rawLogger.Log(false, data)
	}
	select {
	case host.sendQ <- data:
		return nil
	default:
		return ErrCongested
	}
}

// Connected reports whether a host is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host != nil
}

// BufferUtilization reports the send queue fill level in percent. Without a
// host the link counts as saturated.
func (s *Server) BufferUtilization() int {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host == nil {
		return 100
	}
	return len(host.sendQ) * 100 / cap(host.sendQ)
}

// --

func (s *Server) handleConn(conn net.Conn) error {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(s.cfg.ConnectionTimeout)); err != nil {
		s.logger.Warn("Failed to set deadline", "error", err)
	}

	r := bufio.NewReader(conn)
	ok, err := auth.IsAuthHandshake(r)
	if err != nil {
		return fmt.Errorf("peek handshake: %w", err)
	}
	if !ok {
		return errors.New("protocol violation: connection without handshake")
	}
	clientNonce, serverNonce, err := auth.HandleAuthHandshake(r, conn, s.key, false)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	sessionKey := auth.DeriveSessionKey(s.key, serverNonce, clientNonce)
	sealed, err := auth.WrapConn(conn, sessionKey)
	if err != nil {
		return fmt.Errorf("seal connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	host := &hostConn{
		conn:  conn,
		peer:  conn.RemoteAddr().String(),
		sendQ: make(chan []byte, s.cfg.SendQueueLen),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.host != nil {
		s.mu.Unlock()
		return errors.New("host already attached")
	}
	s.host = host
	s.mu.Unlock()

	s.logger.Info("Host attached", "peer", host.peer)
	if s.state != nil {
		s.state(transport.LinkConnected, host.peer)
	}

	go s.writeLoop(sealed, host)
	readErr := s.readLoop(sealed, host)

	close(host.done)
	s.mu.Lock()
	if s.host == host {
		s.host = nil
	}
	s.mu.Unlock()
	if s.state != nil {
		s.state(transport.LinkDisconnected, host.peer)
	}
	if isHostDisconnect(readErr) {
		return nil
	}
	return readErr
}

func (s *Server) writeLoop(sealed net.Conn, host *hostConn) {
	for {
		select {
		case data := <-host.sendQ:
			if _, err := sealed.Write(data); err != nil {
				s.logger.Warn("Host link write failed", "peer", host.peer, "error", err)
				_ = host.conn.Close()
				return
			}
		case <-host.done:
			return
		}
	}
}

func (s *Server) readLoop(sealed net.Conn, host *hostConn) error {
	for {
		frame, err := ReadFrame(sealed)
		if err != nil {
			return err
		}
		if s.rawLogger != nil {
			raw, _ := frame.Encode(nil)
			s.rawLogger.Log(true, raw)
		}
		if frame.Kind != transport.ReportKindOutput {
			s.logger.Debug("Ignoring non-output frame from host", "kind", frame.Kind.String(), "id", frame.ReportID)
			continue
		}
		if s.output != nil {
			payload := append([]byte{frame.ReportID}, frame.Payload...)
			s.output(frame.Kind, payload)
		}
	}
}

// isHostDisconnect tests whether an error represents a normal host detach.
func isHostDisconnect(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "eof") ||
		strings.Contains(e, "connection reset by peer") ||
		strings.Contains(e, "use of closed network connection") ||
		strings.Contains(e, "forcibly closed")
}
