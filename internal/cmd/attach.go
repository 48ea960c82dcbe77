package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Alia5/KEYPER/apiclient"
	"github.com/Alia5/KEYPER/transport"

	"golang.org/x/term"
)

// Attach connects to a running KEYPER server as the host and streams the
// keyboard's input reports to stdout.
type Attach struct {
	Addr     string `help:"KEYPER server address" default:"localhost:3242" env:"KEYPER_SERVER"`
	Password string `help:"Host link key (prompted for when omitted)" env:"KEYPER_PASSWORD"`

	Led uint8 `help:"Send this LED state once after attaching" default:"0"`
}

// Run is called by Kong when the attach command is executed.
func (a *Attach) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	password := a.Password
	if password == "" {
		fmt.Fprint(os.Stderr, "Host link key: ")
		entered, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		password = strings.TrimSpace(string(entered))
	}

	client, err := apiclient.Dial(a.Addr, password)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("Attached", "addr", a.Addr)

	if a.Led != 0 {
		if err := client.SendOutputReport(14, []byte{a.Led}); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = client.Close()
	}()

	for {
		frame, err := client.ReadReport()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read report: %w", err)
		}
		printFrame(frame.Kind, frame.ReportID, frame.Payload)
	}
}

func printFrame(kind transport.ReportKind, id uint8, payload []byte) {
	var hex strings.Builder
	for i, b := range payload {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02x", b)
	}
	fmt.Printf("%-7s id=%-3d %s\n", kind.String(), id, hex.String())
}
