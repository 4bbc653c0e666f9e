package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/beamterm/internal/bootstrap"
)

// execRunner shells out to the system `ssh` binary, the collaborator
// bootstrap.Runner expects. Key management, known_hosts, and agent
// forwarding are entirely the user's own ssh config's concern.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, target string, args []string) ([]byte, error) {
	cmdArgs := append([]string{target}, args...)
	cmd := exec.CommandContext(ctx, "ssh", cmdArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("ssh %s: %w", target, err)
	}
	return out.Bytes(), nil
}

func sshCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "ssh <target> [-- <host-args>]",
		Short: "Start a host on a remote machine over SSH and join it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			hostArgs := args[1:]
			h, err := bootstrap.Discover(cmd.Context(), execRunner{}, target, hostArgs)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			fmt.Printf("beamterm: discovered session %s at %s\n", h.SessionID, h.SessionServer)

			passcode := ""
			if h.JoinCode != nil {
				passcode = *h.JoinCode
			}
			return runJoin(cmd.Context(), h.SessionServer, passcode, label)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Display label for this viewer")
	return cmd
}
