// Package hostrt implements the host-side runtime of §4.5: it owns the
// single authoritative PTY, drives the terminal emulator from its output,
// serializes input from every attached viewer into one global order, and
// supervises the fixed task set of §5 (emulator owner, input writer, and
// one pair of tasks per attached viewer) with golang.org/x/sync/errgroup.
// Generalizes egg.Server/egg.Session's single-client gRPC session to a
// transport-agnostic, multi-viewer runtime.
package hostrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/beamterm/internal/grid"
	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/term"
	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/viewersync"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// Config configures a Host's join-authorization and per-viewer sync policy.
// Grid dimensions and history depth are fixed at NewHost and changed only
// through Resize.
type Config struct {
	Authorizer Authorizer
	SyncConfig viewersync.Config
}

// Host owns one authoritative PTY-backed terminal session.
type Host struct {
	cfg Config

	pty *PTY
	g   *grid.Grid
	adp *term.Adapter

	input *InputSerializer

	mu      sync.Mutex
	viewers map[string]*ViewerConn

	nextViewerID atomic.Uint64
}

// NewHost wires a PTY to a fresh grid and emulator adapter and returns a
// Host ready to accept viewers via AttachViewer and to run via Run.
func NewHost(p *PTY, cols, viewportRows, historyCap int, cfg Config) *Host {
	if cfg.Authorizer == nil {
		cfg.Authorizer = AllowAllAuthorizer{}
	}
	g := grid.New(cols, viewportRows, historyCap)
	h := &Host{
		cfg:     cfg,
		pty:     p,
		g:       g,
		input:   newInputSerializer(),
		viewers: make(map[string]*ViewerConn),
	}
	h.adp = term.New(g, cols, viewportRows, h.broadcastCursor)
	h.adp.SetDamageCallback(h.broadcastDamage)
	g.SetTrimHook(h.broadcastTrim)
	return h
}

func (h *Host) snapshotViewers() []*ViewerConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	vs := make([]*ViewerConn, 0, len(h.viewers))
	for _, v := range h.viewers {
		vs = append(vs, v)
	}
	return vs
}

func (h *Host) broadcastDamage(damage []grid.Damage, watermark uint64) {
	for _, v := range h.snapshotViewers() {
		v.Sync.OnDamage(damage, watermark)
	}
}

func (h *Host) broadcastCursor(f term.CursorFrame) {
	for _, v := range h.snapshotViewers() {
		v.Sync.OnCursor(f.Row, f.Col, f.Visible, f.Seq)
	}
}

func (h *Host) broadcastTrim(newBaseRow int64) {
	for _, v := range h.snapshotViewers() {
		v.Sync.OnTrim(newBaseRow)
	}
}

// AttachViewer registers a new viewer's transport peer, starts its
// synchronizer's send loop, and starts the join-authorization + inbound
// pump for it. It returns once the viewer detaches or ctx is cancelled.
func (h *Host) AttachViewer(ctx context.Context, peer transport.Peer) error {
	id := fmt.Sprintf("viewer-%d", h.nextViewerID.Add(1))
	sync := viewersync.New(h.g, peer, h.cfg.SyncConfig)
	vc := &ViewerConn{ID: id, Peer: peer, Sync: sync, host: h}

	h.mu.Lock()
	h.viewers[id] = vc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.viewers, id)
		h.mu.Unlock()
		h.input.Forget(id)
	}()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return sync.Run(ctx) })
	grp.Go(func() error { return vc.attach(ctx) })
	return grp.Wait()
}

// handleInput is the single entry point for viewer keystrokes: it enforces
// the controlling-viewer lease and the base_seq/client_seq staleness drop
// via InputSerializer, writes accepted bytes to the PTY, and always acks
// the sending viewer — with the assigned global_input_seq on acceptance,
// or with the current global_input_seq and no PTY write on rejection, so a
// rejected viewer learns the true state instead of being left to guess
// why its keystrokes never echoed (§4.5 point 2, §7 StaleInput).
func (h *Host) handleInput(viewerID string, in wire.Input) {
	h.mu.Lock()
	vc := h.viewers[viewerID]
	h.mu.Unlock()

	if !h.input.Acquire(viewerID) {
		h.nak(vc, in.ClientSeq) // another viewer holds the controlling lease
		return
	}
	globalSeq, ok := h.input.Submit(viewerID, in.ClientSeq, in.BaseSeq)
	if !ok {
		h.nak(vc, in.ClientSeq) // stale base_seq or duplicate/reordered client_seq
		return
	}
	if _, err := h.pty.Write(in.Bytes); err != nil {
		logger.Warn("hostrt: pty write failed", "err", err)
		return
	}
	if vc != nil {
		vc.Sync.OnInputAck(wire.InputAck{ClientSeq: in.ClientSeq, GlobalSeq: globalSeq, Watermark: h.g.Watermark()})
	}
}

// nak acks a rejected Input frame with the host's current global_input_seq
// and no advancement, so the viewer can recompute base_seq for its next
// attempt rather than silently losing the keystroke.
func (h *Host) nak(vc *ViewerConn, clientSeq uint64) {
	if vc == nil {
		return
	}
	vc.Sync.OnInputAck(wire.InputAck{ClientSeq: clientSeq, GlobalSeq: h.input.Watermark(), Watermark: h.g.Watermark()})
}

// handleResize applies a resize requested by the controlling viewer to the
// PTY, the emulator, and the grid. A viewer with no lease yet may acquire
// it here, same as on first Input; a viewer that already lost the lease to
// someone else is ignored, since only the terminal's designated owner may
// change its authoritative dimensions.
func (h *Host) handleResize(viewerID string, r wire.Resize) {
	if !h.input.Acquire(viewerID) {
		return
	}
	if err := h.pty.Resize(r.Cols, r.ViewportRows); err != nil {
		logger.Warn("hostrt: pty resize failed", "err", err)
		return
	}
	h.adp.Resize(r.Cols, r.ViewportRows)
}

// Run drives the emulator-owner task: it reads PTY output, feeds it to the
// adapter (which applies damage to the grid and fans it out via the
// callbacks registered in NewHost), until the PTY closes or ctx ends.
func (h *Host) Run(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := h.pty.Read(buf)
		if n > 0 {
			if _, feedErr := h.adp.Feed(buf[:n]); feedErr != nil {
				logger.Warn("hostrt: emulator feed error", "err", feedErr)
			}
		}
		if err != nil {
			return err
		}
	}
}

// Grid exposes the authoritative grid, e.g. for cmd/beamterm's local
// host-side terminal rendering.
func (h *Host) Grid() *grid.Grid { return h.g }

// Viewers returns a snapshot of currently attached viewers, e.g. for
// cmd/beamterm's doctor command to report per-viewer queue depth.
func (h *Host) Viewers() []*ViewerConn { return h.snapshotViewers() }

// PTYPid returns the hosted process's PID, for doctor diagnostics.
func (h *Host) PTYPid() int { return h.pty.Pid() }
