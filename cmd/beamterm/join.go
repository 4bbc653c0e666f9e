package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/viewer"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

func joinCmd() *cobra.Command {
	var passcode, label string
	cmd := &cobra.Command{
		Use:   "join <session-server>",
		Short: "Join a shared terminal session as a viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd.Context(), args[0], passcode, label)
		},
	}
	cmd.Flags().StringVar(&passcode, "passcode", "", "Passcode token presented by the host")
	cmd.Flags().StringVar(&label, "label", "", "Display label for this viewer")
	return cmd
}

func runJoin(ctx context.Context, sessionServer, passcode, label string) error {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("join requires an interactive terminal")
	}

	conn, _, err := websocket.Dial(ctx, sessionServer, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sessionServer, err)
	}
	peer := transport.NewWebSocketPeer(conn)
	defer peer.Close()

	client := viewer.NewClient(peer, viewer.Config{})
	renderer := viewer.NewRenderer(os.Stdout)
	client.OnHello(func(wire.Hello) { renderer.Reset() })

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- client.Run(runCtx) }()

	if err := client.Join(runCtx, label, passcode, nil); err != nil {
		return err
	}
	client.SetControlling(true)

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	if cols, rows, err := term.GetSize(stdinFd); err == nil {
		client.SendResize(runCtx, cols, rows)
		client.SendViewport(runCtx, 0, rows, 0, 0, true)
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			if cols, rows, err := term.GetSize(stdinFd); err == nil {
				client.SendResize(runCtx, cols, rows)
			}
		}
	}()

	inputErrCh := make(chan error, 1)
	go pumpStdin(runCtx, client, inputErrCh)

	draw := time.NewTicker(33 * time.Millisecond)
	defer draw.Stop()

	for {
		select {
		case <-draw.C:
			redraw(renderer, client)
		case err := <-runErrCh:
			return err
		case err := <-inputErrCh:
			return err
		case status := <-client.StatusCh():
			fmt.Fprintf(os.Stderr, "\r\n[beamterm] %s\r\n", status)
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}
}

func redraw(renderer *viewer.Renderer, client *viewer.Client) {
	cache := client.Cache()
	rows := cache.ViewportRows()
	if rows == 0 {
		return
	}
	top := cache.LatestRow() - int64(rows) + 1
	if top < cache.BaseRow() {
		top = cache.BaseRow()
	}
	renderer.Draw(cache, client.Predictions(), top, rows)
}

func pumpStdin(ctx context.Context, client *viewer.Client, errCh chan<- error) {
	buf := make([]byte, 256)
	for {
		n, err := os.Stdin.Read(buf)
		if bytes.IndexByte(buf[:n], 0x1b) >= 0 {
			// Escape sequences (arrows, function keys) are sent unpredicted.
			if sendErr := client.SendInput(ctx, append([]byte(nil), buf[:n]...)); sendErr != nil {
				errCh <- sendErr
				return
			}
			n = 0
		}
		for _, b := range buf[:n] {
			if sendErr := client.TypeRune(ctx, rune(b)); sendErr != nil {
				errCh <- sendErr
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}
