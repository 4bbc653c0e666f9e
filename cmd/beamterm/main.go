package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/beamterm/internal/logger"
)

// Version is stamped by CI builds; "dev" is what a developer build reports.
var Version = "dev"

func main() {
	if err := logger.Init("info", ""); err != nil {
		fmt.Fprintf(os.Stderr, "beamterm: logger init: %v\n", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:   "beamterm",
		Short: "Share a live terminal session peer-to-peer",
		Long: "beamterm hosts or joins a shared terminal session: a host PTY drives an\n" +
			"authoritative grid, viewers attach over a direct websocket and see a synced,\n" +
			"predictive-echo view of the same session.",
		SilenceUsage: true,
	}

	root.AddCommand(hostCmd(), joinCmd(), sshCmd(), doctorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "beamterm: %v\n", err)
		os.Exit(1)
	}
}
