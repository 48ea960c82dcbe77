package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/Alia5/KEYPER/hidevent"
	"github.com/Alia5/KEYPER/hostlist"
	"github.com/Alia5/KEYPER/internal/configpaths"
	"github.com/Alia5/KEYPER/internal/log"
	"github.com/Alia5/KEYPER/internal/server"
	"github.com/Alia5/KEYPER/internal/server/auth"
	"github.com/Alia5/KEYPER/internal/util"
	"github.com/Alia5/KEYPER/keyboard"
	"github.com/Alia5/KEYPER/transport"

	"golang.org/x/term"
)

const keyFileName = "keyper.key.txt"

// Run starts the keyboard engine with the host link server attached as the
// classic transport. Typed input on a terminal stdin is translated to scan
// codes and fed through the full event pipeline.
type Run struct {
	ServerConfig server.Config   `embed:"" prefix:"link."`
	Keyboard     keyboard.Config `embed:"" prefix:"kb."`

	PollInterval time.Duration `help:"Report poll interval" default:"10ms" env:"KEYPER_POLL_INTERVAL"`
	Stdin        bool          `help:"Feed terminal input through the keyboard engine" default:"true" negatable:""`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Start(ctx, logger, rawLogger)
}

func (r *Run) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("Starting KEYPER host link", "addr", r.ServerConfig.Addr)

	password, err := loadOrCreateKey(logger)
	if err != nil {
		return err
	}
	r.ServerConfig.Password = password

	srv, err := server.New(r.ServerConfig, logger, rawLogger)
	if err != nil {
		return err
	}

	hostsPath, err := configpaths.DefaultHostListPath()
	if err != nil {
		return fmt.Errorf("resolve host list path: %w", err)
	}
	hosts, err := hostlist.Open(hostsPath, logger)
	if err != nil {
		return fmt.Errorf("open host list: %w", err)
	}

	le := transport.NewLoopback()
	dual := transport.NewDual(srv, le, &linkControl{srv: srv, logger: logger})
	app := keyboard.New(r.Keyboard, dual, logger, keyboard.WithHostFlags(hosts))
	app.LEDCallback = func(states uint8) {
		logger.Info("LED state changed", "states", fmt.Sprintf("%#02x", states))
	}

	// The app is single-threaded; server callbacks and stdin input post
	// closures that the poll loop below executes between polls.
	calls := make(chan func(), 64)
	post := func(fn func()) { calls <- fn }

	srv.SetOutputHandler(func(kind transport.ReportKind, payload []byte) {
		post(func() { app.RxData(kind, payload) })
	})
	srv.SetStateHandler(func(state transport.LinkState, peer string) {
		post(func() {
			if state == transport.LinkConnected {
				dual.SetActiveCarrier(transport.CarrierClassic)
			} else {
				dual.SetActiveCarrier(transport.CarrierNone)
			}
			app.OnLinkState(transport.CarrierClassic, state, peer)
		})
	})

	srvErrCh := make(chan error, 1)
	go func() { srvErrCh <- srv.ListenAndServe() }()
	select {
	case err := <-srvErrCh:
		return err
	case <-srv.Ready():
	}

	var restoreStdin func()
	if r.Stdin {
		restoreStdin, err = startStdinFeed(ctx, cancel, app, post, logger)
		if err != nil {
			logger.Warn("Terminal input unavailable", "error", err)
		}
	}
	if restoreStdin != nil {
		defer restoreStdin()
	}

	if util.IsRunFromGUI() {
		go func() {
			time.Sleep(250 * time.Millisecond)
			util.HideConsoleWindow()
		}()
	}

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			app.Shutdown()
			_ = srv.Close()
			<-srvErrCh
			return nil
		case err := <-srvErrCh:
			app.Shutdown()
			return err
		case fn := <-calls:
			fn()
		case <-ticker.C:
			app.PollReportUserActivity()
		}
	}
}

// linkControl adapts the host link server to the keyboard's link control
// surface. The server is passive (hosts connect to us), so Connect and
// EnterPairing only log.
type linkControl struct {
	srv    *server.Server
	logger *slog.Logger
}

func (l *linkControl) Connect() {
	l.logger.Debug("Reconnect requested; waiting for host to attach")
}

func (l *linkControl) Disconnect() {
	l.srv.DisconnectHost()
}

func (l *linkControl) VirtualCableUnplug() {
	l.logger.Info("Virtual cable unplug")
	l.srv.DisconnectHost()
}

func (l *linkControl) EnterPairing() {
	l.logger.Info("Discoverable; waiting for a host to attach")
}

// loadOrCreateKey reads the shared host link key, generating and persisting a
// fresh one on first run.
func loadOrCreateKey(logger *slog.Logger) (string, error) {
	keyFileDir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve key file path: %w", err)
	}
	keyFilePath := path.Join(keyFileDir, keyFileName)
	if pwd, err := os.ReadFile(keyFilePath); err == nil {
		return strings.TrimSpace(string(pwd)), nil
	}

	newPwd, err := auth.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate new host link key: %w", err)
	}
	if err := os.MkdirAll(keyFileDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config dir for key file: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(newPwd), 0o600); err != nil {
		return "", fmt.Errorf("failed to write new host link key to file: %w", err)
	}
	logger.Info("Generated host link key", "path", keyFilePath)
	logger.Info("-------------------------------------")
	logger.Info("Your KEYPER host link key is:")
	logger.Info("-------------------------------------")
	logger.Info(newPwd)
	logger.Info("-------------------------------------")
	logger.Info("You can change this key at any time by editing the file")
	return newPwd, nil
}

// startStdinFeed puts the terminal into raw mode and feeds typed characters
// through the keyboard engine as scan code press/release pairs. Returns a
// restore function for the terminal state.
func startStdinFeed(ctx context.Context, cancel context.CancelFunc, app *keyboard.App, post func(func()), logger *slog.Logger) (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	restore := func() { _ = term.Restore(fd, oldState) }

	scanFor := buildScanCodeIndex()
	logger.Info("Terminal input active; Ctrl-C quits")

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || ctx.Err() != nil {
				return
			}
			if n == 0 {
				continue
			}
			ch := buf[0]
			if ch == 0x03 { // Ctrl-C in raw mode
				cancel()
				return
			}
			usage, ok := keyboard.CharToKey[ch]
			if !ok {
				continue
			}
			scan, ok := scanFor[usage]
			if !ok {
				continue
			}
			shifted := keyboard.ShiftChars[ch]
			post(func() {
				if shifted {
					app.OnKeyEvent(scanLeftShift, true)
				}
				app.OnKeyEvent(scan, true)
				app.OnKeyEvent(hidevent.EndOfScanCycle, false)
				app.OnKeyEvent(scan, false)
				if shifted {
					app.OnKeyEvent(scanLeftShift, false)
				}
				app.OnKeyEvent(hidevent.EndOfScanCycle, false)
			})
		}
	}()

	return restore, nil
}

// scanLeftShift is the left shift position in the stock key table.
const scanLeftShift uint8 = 61

// buildScanCodeIndex inverts the stock key table: usage code to scan code, for
// standard keys only.
func buildScanCodeIndex() map[uint8]uint8 {
	idx := make(map[uint8]uint8)
	for scan, entry := range keyboard.DefaultKeyTable() {
		if entry.Kind != keyboard.KindStandard {
			continue
		}
		if _, seen := idx[entry.Code]; !seen {
			idx[entry.Code] = uint8(scan)
		}
	}
	return idx
}
