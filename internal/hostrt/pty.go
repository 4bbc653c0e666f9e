package hostrt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// PTY wraps a single spawned child process's pseudo-terminal, generalizing
// egg.Server.RunSession's process-spawn path (creack/pty.StartWithSize,
// graceful SIGTERM cancel, pty.Setsize) to a transport-agnostic host that no
// longer assumes a single gRPC-attached client.
type PTY struct {
	writeMu sync.Mutex
	f       *os.File
	cmd     *exec.Cmd
}

// StartPTY spawns name with args under a pty of the given size. The process
// receives SIGTERM (not SIGKILL) on context cancellation, with a grace
// period before the context's Done() actually tears down the process tree.
func StartPTY(ctx context.Context, name string, args, env []string, dir string, cols, rows int) (*PTY, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	return &PTY{f: f, cmd: cmd}, nil
}

// Read reads raw PTY output. Only the emulator-owner task may call this.
func (p *PTY) Read(buf []byte) (int, error) {
	return p.f.Read(buf)
}

// Write sends bytes to the child's stdin. Safe for concurrent callers; the
// input serializer is what actually guarantees a single logical writer.
func (p *PTY) Write(b []byte) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.f.Write(b)
}

// Resize changes the PTY's window size. The caller is responsible for
// resizing the matching term.Adapter/grid.Grid to the same dimensions.
func (p *PTY) Resize(cols, rows int) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Pid returns the child process ID, for diagnostics (cmd/beamterm doctor).
func (p *PTY) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the child exits and returns its error (nil on a clean
// exit), mirroring exec.Cmd.Wait's contract.
func (p *PTY) Wait() error {
	return p.cmd.Wait()
}

// Close closes the PTY file descriptor. It does not itself signal the
// child; callers should cancel the context used in StartPTY for that.
func (p *PTY) Close() error {
	return p.f.Close()
}
