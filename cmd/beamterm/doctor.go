package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/beamterm/internal/config"
)

func doctorCmd() *cobra.Command {
	var attach string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local environment, and optionally a running host's session health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(attach)
		},
	}
	cmd.Flags().StringVar(&attach, "attach", "", "A running host's session server (ws://... from its bootstrap banner) to query for live session health")
	return cmd
}

func runDoctor(attach string) error {
	fmt.Println("beamterm doctor")
	fmt.Println()

	fmt.Println("Environment:")
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "(unset, falling back to /bin/sh)"
	}
	fmt.Printf("  SHELL:        %s\n", shell)
	if _, err := exec.LookPath("ssh"); err != nil {
		fmt.Println("  ssh:          not found on PATH (the ssh subcommand needs it)")
	} else {
		fmt.Println("  ssh:          found on PATH")
	}
	fmt.Printf("  stdin is tty: %v\n", term.IsTerminal(int(os.Stdin.Fd())))
	fmt.Println()

	fmt.Println("Config:")
	userDir, err := config.GetUserConfigDir()
	if err != nil {
		return err
	}
	fmt.Printf("  user config dir: %s\n", userDir)
	cfg, err := config.LoadHostConfig(userDir)
	if err != nil {
		return err
	}
	fmt.Printf("  connection_mode: %s\n", cfg.ConnectionMode)
	fmt.Printf("  auth_policy:     %s\n", cfg.AuthPolicy)
	fmt.Printf("  allow_keys:      %d entries\n", len(cfg.AllowKeys))
	fmt.Println()

	if attach == "" {
		return nil
	}
	return doctorAttach(attach)
}

func doctorAttach(sessionServer string) error {
	debugURL, err := debugURLFromSessionServer(sessionServer)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(debugURL)
	if err != nil {
		return fmt.Errorf("reach %s: %w", debugURL, err)
	}
	defer resp.Body.Close()

	var snap debugSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode debug snapshot: %w", err)
	}

	fmt.Println("Attached host:")
	fmt.Printf("  pid:            %d\n", snap.PID)
	fmt.Printf("  transport_mode: %s\n", snap.TransportMode)
	fmt.Printf("  viewers:        %d\n", snap.ViewerCount)
	for _, v := range snap.Viewers {
		label := v.Label
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Printf("    %-12s %-20s queue_depth=%s\n", v.ID, label, v.QueueDepth)
	}
	return nil
}

// debugURLFromSessionServer turns a "ws://host:port/ws" bootstrap session
// server URL into the matching "http://host:port/debug" the host also
// serves from the same listener.
func debugURLFromSessionServer(sessionServer string) (string, error) {
	u := sessionServer
	switch {
	case strings.HasPrefix(u, "ws://"):
		u = "http://" + strings.TrimPrefix(u, "ws://")
	case strings.HasPrefix(u, "wss://"):
		u = "https://" + strings.TrimPrefix(u, "wss://")
	default:
		return "", fmt.Errorf("unrecognized session server scheme: %s", sessionServer)
	}
	u = strings.TrimSuffix(u, "/ws")
	return u + "/debug", nil
}
