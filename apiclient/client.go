// Package apiclient implements the host side of the KEYPER host link. It is
// what `keyper attach` uses: dial the server, authenticate with the shared
// key, then stream input report frames and send LED output reports back.
package apiclient

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/Alia5/KEYPER/internal/server"
	"github.com/Alia5/KEYPER/internal/server/auth"
	"github.com/Alia5/KEYPER/transport"
)

// Config controls low-level transport behavior such as timeouts.
type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Password     string
}

func defaultConfig() Config {
	return Config{
		DialTimeout:  3 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Client is an authenticated host link connection. Reads and writes may be
// used from different goroutines; the sealed connection serializes writes.
type Client struct {
	conn net.Conn
	cfg  Config
}

// Dial connects and authenticates to a KEYPER server.
func Dial(addr, password string) (*Client, error) {
	cfg := defaultConfig()
	cfg.Password = password
	return DialWithConfig(addr, cfg)
}

// DialWithConfig is Dial with explicit timeouts.
func DialWithConfig(addr string, cfg Config) (*Client, error) {
	key, err := auth.DeriveKey(cfg.Password)
	if err != nil {
		return nil, err
	}

	d := &net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			slog.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}

	if cfg.WriteTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.WriteTimeout))
	}
	r := bufio.NewReader(conn)
	clientNonce, serverNonce, err := auth.HandleAuthHandshake(r, conn, key, true)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "read handshake response: EOF") {
			return nil, auth.ErrInvalidPassword
		}
		return nil, err
	}
	sessionKey := auth.DeriveSessionKey(key, serverNonce, clientNonce)
	sealed, err := auth.WrapConn(conn, sessionKey)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{conn: sealed, cfg: cfg}, nil
}

// ReadReport blocks until the next input report frame arrives.
func (c *Client) ReadReport() (server.Frame, error) {
	return server.ReadFrame(c.conn)
}

// SendOutputReport sends an output report (LED state) to the keyboard.
func (c *Client) SendOutputReport(reportID uint8, payload []byte) error {
	data, err := server.Frame{
		Kind:     transport.ReportKindOutput,
		ReportID: reportID,
		Payload:  payload,
	}.Encode(nil)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write output report: %w", err)
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
