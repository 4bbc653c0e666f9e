package viewer

import (
	"context"
	"fmt"
	"time"

	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// Config tunes the client's prediction grace window; a zero value falls
// back to the same default PredictionEngine applies.
type Config struct {
	PredictionGrace time.Duration
}

// Client is the viewer-side counterpart to hostrt.Host: it owns one peer
// connection's inbound pump, the GridCache + PredictionEngine pair, and the
// outbound Input/Viewport/Backfill/Resize frames a local UI drives it with.
// A Renderer reads Client's state to paint a real terminal; Client itself
// never touches the screen.
type Client struct {
	peer transport.Peer
	cfg  Config

	cache *GridCache
	pred  *PredictionEngine

	nextClientSeq    uint64
	globalSeqObserved uint64

	helloReceived chan struct{}
	statusCh      chan string
	controlling   bool

	onHello func(wire.Hello)
}

// NewClient wires a fresh GridCache + PredictionEngine to peer. Call Run to
// start pumping inbound frames; call Join to send the handshake.
func NewClient(peer transport.Peer, cfg Config) *Client {
	c := &Client{
		peer:          peer,
		cfg:           cfg,
		cache:         NewGridCache(),
		pred:          NewPredictionEngine(cfg.PredictionGrace),
		helloReceived: make(chan struct{}),
		statusCh:      make(chan string, 8),
	}
	c.cache.SetCellWriteHook(func(row int64, col int, ch rune) {
		c.pred.ConfirmOrDiverge(row, col, ch)
	})
	return c
}

func (c *Client) Cache() *GridCache          { return c.cache }
func (c *Client) Predictions() *PredictionEngine { return c.pred }

// Join sends the Viewer→Host Join frame and blocks until Hello arrives (the
// only success path), a Status(approval_denied) arrives, or ctx ends.
func (c *Client) Join(ctx context.Context, label, passcode string, features []string) error {
	control, err := c.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	frame := &wire.ViewerFrame{Type: wire.FrameJoin, Join: &wire.Join{
		ProtocolVersion:   ProtocolVersion,
		ViewerLabel:       label,
		RequestedFeatures: features,
		Passcode:          passcode,
	}}
	b, err := wire.EncodeViewer(frame)
	if err != nil {
		return err
	}
	if err := control.Send(ctx, b); err != nil {
		return err
	}
	for {
		select {
		case <-c.helloReceived:
			return nil
		case status := <-c.statusCh:
			if status == "approval_denied" {
				return fmt.Errorf("join denied by host")
			}
			// approval_pending or other informational status: keep waiting
			// for Hello without re-sending Join.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ProtocolVersion is sent in every Join frame; the host does not check it,
// and Hello carries no version back. Bump it on any breaking wire-format
// change.
const ProtocolVersion = 1

// Run pumps inbound host frames from both channels until ctx ends or the
// peer errors. It applies Hello/Snapshot/SnapshotRange/Delta/HistoryInfo to
// the GridCache and forwards Status text on StatusCh.
func (c *Client) Run(ctx context.Context) error {
	control, err := c.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	bulk, bulkErr := c.peer.Channel(transport.Bulk)
	errCh := make(chan error, 2)
	go c.pump(ctx, control, errCh)
	if bulkErr == nil {
		go c.pump(ctx, bulk, errCh)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) pump(ctx context.Context, ch transport.Channel, errCh chan<- error) {
	for {
		b, err := ch.Recv(ctx)
		if err != nil {
			errCh <- err
			return
		}
		frame, err := wire.DecodeHost(b)
		if err != nil {
			logger.Warn("viewer: bad host frame", "err", err)
			continue
		}
		c.applyHostFrame(*frame)
	}
}

func (c *Client) applyHostFrame(f wire.HostFrame) {
	switch f.Type {
	case wire.FrameHello:
		if f.Hello == nil {
			return
		}
		c.cache.ApplyHello(*f.Hello)
		c.globalSeqObserved = f.Hello.GlobalSeq
		c.pred.DiscardAll()
		if c.onHello != nil {
			c.onHello(*f.Hello)
		}
		select {
		case <-c.helloReceived:
		default:
			close(c.helloReceived)
		}
	case wire.FrameSnapshot:
		if f.Snapshot != nil {
			c.cache.ApplySnapshot(*f.Snapshot)
		}
	case wire.FrameSnapshotRange:
		if f.SnapshotRange != nil {
			c.cache.ApplySnapshotRange(*f.SnapshotRange)
		}
	case wire.FrameDelta:
		if f.Delta != nil {
			c.cache.ApplyDelta(*f.Delta)
		}
	case wire.FrameHistoryInfo:
		if f.HistoryInfo != nil {
			c.cache.ApplyHistoryInfo(*f.HistoryInfo)
		}
	case wire.FrameInputAck:
		if f.InputAck != nil {
			c.globalSeqObserved = f.InputAck.GlobalSeq
			c.pred.AckClientSeq(f.InputAck.ClientSeq)
		}
	case wire.FrameHeartbeat:
		// liveness only; nothing to apply.
	case wire.FrameStatus:
		if f.Status != nil {
			select {
			case c.statusCh <- f.Status.Text:
			default:
			}
		}
	}
}

// StatusCh delivers pre-Hello (and any later informational) Status text.
func (c *Client) StatusCh() <-chan string { return c.statusCh }

// predictable reports whether r is a printable, single-width rune worth
// predicting (§4.7 rule 7: arrows/function/control keys are never predicted).
func predictable(r rune) bool {
	return r >= 0x20 && r != 0x7f
}

// TypeRune registers a local prediction (if r is printable) and sends the
// corresponding Input frame, per §4.7 rules 1-2.
func (c *Client) TypeRune(ctx context.Context, r rune) error {
	if predictable(r) {
		sc := c.cache.ServerCursor()
		c.pred.SeedCursor(sc.Row, sc.Col)
		c.pred.Register(c.nextClientSeq+1, r, 0, c.cache.Cols())
	}
	return c.SendInput(ctx, []byte(string(r)))
}

// SendInput sends raw bytes (e.g. a multi-byte escape sequence for a
// non-printable key) without registering a prediction.
func (c *Client) SendInput(ctx context.Context, b []byte) error {
	control, err := c.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	c.nextClientSeq++
	frame := &wire.ViewerFrame{Type: wire.FrameInput, Input: &wire.Input{
		ClientSeq: c.nextClientSeq,
		BaseSeq:   c.globalSeqObserved,
		Bytes:     b,
	}}
	wb, err := wire.EncodeViewer(frame)
	if err != nil {
		return err
	}
	return control.Send(ctx, wb)
}

// SendViewport reports a scroll/resize of the locally displayed range.
func (c *Client) SendViewport(ctx context.Context, topRow int64, rows, prefetchBefore, prefetchAfter int, followTail bool) error {
	control, err := c.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	frame := &wire.ViewerFrame{Type: wire.FrameViewport, Viewport: &wire.Viewport{
		TopRow: topRow, Rows: rows, PrefetchBefore: prefetchBefore, PrefetchAfter: prefetchAfter, FollowTail: followTail,
	}}
	b, err := wire.EncodeViewer(frame)
	if err != nil {
		return err
	}
	return control.Send(ctx, b)
}

// SendBackfill explicitly requests a history range not yet materialized.
func (c *Client) SendBackfill(ctx context.Context, startRow int64, count int) error {
	control, err := c.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	frame := &wire.ViewerFrame{Type: wire.FrameBackfill, Backfill: &wire.Backfill{StartRow: startRow, Count: count}}
	b, err := wire.EncodeViewer(frame)
	if err != nil {
		return err
	}
	return control.Send(ctx, b)
}

// SendResize requests a change to the host's authoritative width. Only the
// controlling viewer's request is honored by the host (§4.7 Resize); a
// non-controlling viewer should call SendViewport instead.
func (c *Client) SendResize(ctx context.Context, cols, viewportRows int) error {
	control, err := c.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	frame := &wire.ViewerFrame{Type: wire.FrameResize, Resize: &wire.Resize{Cols: cols, ViewportRows: viewportRows}}
	b, err := wire.EncodeViewer(frame)
	if err != nil {
		return err
	}
	return control.Send(ctx, b)
}

// SetControlling records whether this client is the controlling viewer, as
// reported by IsControlling; SendResize does not consult it, and the host
// enforces the real lease.
func (c *Client) SetControlling(v bool) { c.controlling = v }
func (c *Client) IsControlling() bool   { return c.controlling }

// OnHello registers a callback fired whenever a Hello frame is applied,
// e.g. so cmd/beamterm can (re)size the local terminal window.
func (c *Client) OnHello(fn func(wire.Hello)) { c.onHello = fn }
