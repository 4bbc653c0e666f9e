package hostrt

import (
	"context"

	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/viewersync"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// ViewerConn is one attached viewer: its transport peer, its per-viewer
// synchronizer, and the join metadata used for authorization and the
// controlling-viewer lease.
type ViewerConn struct {
	ID    string
	Peer  transport.Peer
	Sync  *viewersync.Synchronizer
	Label string

	host *Host
}

// attach runs the join-authorization gate (§4.5 point 4): it reads the
// viewer's Join frame, asks the configured Authorizer, emits Status frames
// reflecting the decision, and only then lets the synchronizer send Hello.
// It then pumps inbound viewer frames until ctx is cancelled or the
// transport errors.
func (v *ViewerConn) attach(ctx context.Context) error {
	control, err := v.Peer.Channel(transport.Control)
	if err != nil {
		return err
	}

	b, err := control.Recv(ctx)
	if err != nil {
		return err
	}
	frame, err := wire.DecodeViewer(b)
	if err != nil {
		return err
	}
	if frame.Type != wire.FrameJoin || frame.Join == nil {
		v.Sync.OnStatus("protocol_violation: expected join")
		return v.runHeartbeatOnlyLoop(ctx, control)
	}
	v.Label = frame.Join.ViewerLabel

	meta := JoinMeta{Label: v.Label, RequestedFeatures: frame.Join.RequestedFeatures, Passcode: frame.Join.Passcode}
	v.Sync.OnStatus("approval_pending")

	decision, err := v.host.cfg.Authorizer.Authorize(ctx, meta)
	if err != nil {
		logger.Warn("hostrt: authorizer error", "viewer", v.ID, "err", err)
		decision = Denied
	}
	if decision != Approved {
		v.Sync.OnStatus("approval_denied")
		return nil
	}
	v.Sync.OnStatus("approval_granted")
	v.Sync.Attach(frame.Join.RequestedFeatures)

	return v.pumpInbound(ctx, control)
}

// pumpInbound reads viewer frames and routes each to the synchronizer or
// the host's input serializer, until the channel closes or ctx ends.
func (v *ViewerConn) pumpInbound(ctx context.Context, control transport.Channel) error {
	for {
		b, err := control.Recv(ctx)
		if err != nil {
			return err
		}
		frame, err := wire.DecodeViewer(b)
		if err != nil {
			logger.Warn("hostrt: bad viewer frame", "viewer", v.ID, "err", err)
			continue
		}
		switch frame.Type {
		case wire.FrameInput:
			if frame.Input != nil {
				v.host.handleInput(v.ID, *frame.Input)
			}
		case wire.FrameResize:
			if frame.Resize != nil {
				v.host.handleResize(v.ID, *frame.Resize)
			}
		case wire.FrameViewport:
			if frame.Viewport != nil {
				v.Sync.OnViewport(*frame.Viewport)
			}
		case wire.FrameBackfill:
			if frame.Backfill != nil {
				v.Sync.OnBackfill(*frame.Backfill)
			}
		case wire.FrameAck, wire.FrameViewerHeartbt:
			// no-op: presence of traffic is enough to keep liveness; ack
			// watermarks are informational until flow-control needs them.
		}
	}
}

// runHeartbeatOnlyLoop keeps reading (and discarding) frames from a viewer
// that never completed Join, so a buggy or adversarial peer can't wedge the
// Recv loop; it exits once the transport errors or ctx ends.
func (v *ViewerConn) runHeartbeatOnlyLoop(ctx context.Context, control transport.Channel) error {
	for {
		if _, err := control.Recv(ctx); err != nil {
			return err
		}
	}
}
