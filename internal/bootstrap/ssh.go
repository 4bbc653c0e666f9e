package bootstrap

import "context"

// Runner is the SSH collaborator `ssh <target>` uses to execute a remote
// `host --bootstrap-output=json` and capture its stdout. The core treats the
// SSH transport itself as external (key management, known_hosts, agent
// forwarding are all the collaborator's concern); Runner only needs to hand
// back the bytes the remote command printed.
type Runner interface {
	// Run executes args on target over SSH and returns the remote command's
	// combined stdout+stderr, so a parse failure can still report what the
	// remote side actually said.
	Run(ctx context.Context, target string, args []string) ([]byte, error)
}

// RemoteHostArgs builds the argv for the remote `host` invocation: the
// bootstrap output flag plus whatever host-side flags (e.g. --command) were
// passed after `--` on the local `ssh` invocation.
func RemoteHostArgs(hostArgs []string) []string {
	args := []string{"host", "--bootstrap-output=json"}
	return append(args, hostArgs...)
}

// Discover runs the remote host process via r and parses its handshake
// object out of the captured output.
func Discover(ctx context.Context, r Runner, target string, hostArgs []string) (*Handshake, error) {
	out, err := r.Run(ctx, target, RemoteHostArgs(hostArgs))
	if err != nil {
		return nil, err
	}
	return Parse(out)
}

// JoinArgs builds the local `join` argv from a discovered handshake, so
// `ssh <target>` can hand off into the same join path `join <session-id>`
// uses directly.
func JoinArgs(h *Handshake, label string) []string {
	args := []string{"join", h.SessionID}
	if h.JoinCode != nil && *h.JoinCode != "" {
		args = append(args, "--passcode", *h.JoinCode)
	}
	if label != "" {
		args = append(args, "--label", label)
	}
	return args
}
