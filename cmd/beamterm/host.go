package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/beamterm/internal/bootstrap"
	"github.com/ehrlich-b/beamterm/internal/config"
	"github.com/ehrlich-b/beamterm/internal/hostrt"
	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/viewersync"
)

func hostCmd() *cobra.Command {
	var commandArgs []string
	var bootstrapOutput string
	var listenAddr string
	var passcode string
	var askApproval bool

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start hosting a shared terminal session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), commandArgs, bootstrapOutput, listenAddr, passcode, askApproval)
		},
	}
	cmd.Flags().StringArrayVar(&commandArgs, "command", nil, "Shell command to run as the hosted process (default: $SHELL)")
	cmd.Flags().StringVar(&bootstrapOutput, "bootstrap-output", "", `Print the bootstrap handshake ("json" for machine-readable, "text" for a banner)`)
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:0", "Direct-mode listen address")
	cmd.Flags().StringVar(&passcode, "passcode", "", "Require a signed passcode token for viewers to join")
	cmd.Flags().BoolVar(&askApproval, "ask", false, "Prompt on this terminal before approving each join")
	return cmd
}

func runHost(ctx context.Context, commandArgs []string, bootstrapOutput, listenAddr, passcode string, askApproval bool) error {
	userDir, err := config.GetUserConfigDir()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDirs(userDir, userDir); err != nil {
		return err
	}
	watcher, err := config.NewWatcher(userDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer watcher.Close()
	cfg := watcher.Config()

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	name := shell
	var args []string
	if len(commandArgs) > 0 {
		name = commandArgs[0]
		args = commandArgs[1:]
	}

	cols, rows := cfg.Cols, cfg.ViewportRows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	p, err := hostrt.StartPTY(ctx, name, args, os.Environ(), "", cols, rows)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer p.Close()

	sessionID := uuid.NewString()

	var authorizer hostrt.Authorizer
	switch {
	case passcode != "":
		pa := &hostrt.PasscodeAuthorizer{SessionID: sessionID, Secret: []byte(passcode)}
		authorizer = pa
	case askApproval:
		authorizer = &hostrt.PromptAuthorizer{Prompt: promptApprove}
	case cfg.AuthPolicy == "ask":
		authorizer = &hostrt.PromptAuthorizer{Prompt: promptApprove}
	default:
		authorizer = hostrt.AllowAllAuthorizer{}
	}

	syncCfg := viewersync.Config{
		PrefetchBefore:    cfg.PrefetchBefore,
		PrefetchAfter:     cfg.PrefetchAfter,
		HeartbeatInterval: time.Duration(cfg.HeartbeatMillis) * time.Millisecond,
		HighWatermark:     cfg.HighWatermark,
	}
	host := hostrt.NewHost(p, cols, rows, cfg.HistoryCap, hostrt.Config{Authorizer: authorizer, SyncConfig: syncCfg})

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			logger.Warn("host: websocket accept failed", "err", err)
			return
		}
		conn.SetReadLimit(4 << 20)
		peer := transport.NewWebSocketPeer(conn)
		if err := host.AttachViewer(r.Context(), peer); err != nil {
			logger.Info("host: viewer detached", "err", err)
		}
	})
	mux.HandleFunc("GET /debug", func(w http.ResponseWriter, r *http.Request) {
		writeDebugSnapshot(w, host)
	})
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Warn("host: http server stopped", "err", err)
		}
	}()
	defer srv.Close()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	sessionServer := fmt.Sprintf("ws://127.0.0.1:%s/ws", port)

	var joinCode *string
	if pa, ok := authorizer.(*hostrt.PasscodeAuthorizer); ok {
		tok, err := pa.MintToken(24 * time.Hour)
		if err != nil {
			return fmt.Errorf("mint passcode token: %w", err)
		}
		joinCode = &tok
	}

	hs := bootstrap.Handshake{
		Schema:             bootstrap.Schema,
		SessionID:          sessionID,
		JoinCode:           joinCode,
		SessionServer:      sessionServer,
		ActiveTransport:    "direct",
		Transports:         []string{"direct"},
		PreferredTransport: "direct",
		HostBinary:         "beamterm",
		HostVersion:        Version,
		Timestamp:          time.Now().Unix(),
		Command:            append([]string{name}, args...),
	}
	if err := printBootstrap(hs, bootstrapOutput); err != nil {
		return err
	}

	return host.Run(ctx)
}

func printBootstrap(hs bootstrap.Handshake, mode string) error {
	switch mode {
	case "json":
		b, err := bootstrap.Encode(hs)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	default:
		fmt.Printf("beamterm: hosting session %s at %s\n", hs.SessionID, hs.SessionServer)
		if hs.JoinCode != nil {
			fmt.Printf("  join with: beamterm join %s --passcode %s\n", hs.SessionServer, *hs.JoinCode)
		} else {
			fmt.Printf("  join with: beamterm join %s\n", hs.SessionServer)
		}
	}
	return nil
}

func promptApprove(ctx context.Context, meta hostrt.JoinMeta) (bool, error) {
	fmt.Fprintf(os.Stderr, "beamterm: %q wants to join. Allow? [y/N] ", meta.Label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}
	return line == "y\n" || line == "Y\n" || line == "yes\n", nil
}

type debugViewer struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	QueueDepth string `json:"queue_depth"`
}

type debugSnapshot struct {
	PID           int           `json:"pid"`
	ViewerCount   int           `json:"viewer_count"`
	TransportMode string        `json:"transport_mode"`
	Viewers       []debugViewer `json:"viewers"`
}

func writeDebugSnapshot(w http.ResponseWriter, host *hostrt.Host) {
	viewers := host.Viewers()
	snap := debugSnapshot{
		PID:           host.PTYPid(),
		ViewerCount:   len(viewers),
		TransportMode: "direct",
	}
	for _, v := range viewers {
		snap.Viewers = append(snap.Viewers, debugViewer{
			ID:         v.ID,
			Label:      v.Label,
			QueueDepth: humanize.Comma(int64(v.Sync.QueueDepth())),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
