package hostrt

import (
	"context"
	"testing"
	"time"

	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// newTestHost builds a Host with no PTY attached, sufficient for exercising
// the viewer-attach / join-authorization / synchronizer wiring in isolation
// from the emulator-owner task.
func newTestHost(cfg Config) *Host {
	return NewHost(nil, 10, 3, 100, cfg)
}

func TestJoinGateEmitsStatusBeforeHello(t *testing.T) {
	h := newTestHost(Config{Authorizer: AllowAllAuthorizer{}})
	hostPeer, viewerPeer := transport.NewMemoryPeerPair(16)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go h.AttachViewer(ctx, hostPeer)

	control, _ := viewerPeer.Channel(transport.Control)
	join, err := wire.EncodeViewer(&wire.ViewerFrame{Type: wire.FrameJoin, Join: &wire.Join{ProtocolVersion: 1, ViewerLabel: "laptop"}})
	if err != nil {
		t.Fatalf("encode join: %v", err)
	}
	if err := control.Send(ctx, join); err != nil {
		t.Fatalf("send join: %v", err)
	}

	var sawPending, sawGranted, sawHello bool
	for i := 0; i < 6; i++ {
		b, err := control.Recv(ctx)
		if err != nil {
			t.Fatalf("recv frame %d: %v", i, err)
		}
		f, err := wire.DecodeHost(b)
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		switch f.Type {
		case wire.FrameStatus:
			if f.Status.Text == "approval_pending" {
				sawPending = true
			}
			if f.Status.Text == "approval_granted" {
				sawGranted = true
				if sawHello {
					t.Fatal("approval_granted must precede Hello")
				}
			}
		case wire.FrameHello:
			sawHello = true
			if !sawGranted {
				t.Fatal("Hello arrived before approval_granted")
			}
			return
		}
	}
	if !sawPending || !sawGranted || !sawHello {
		t.Fatalf("missing expected frames: pending=%v granted=%v hello=%v", sawPending, sawGranted, sawHello)
	}
}

func TestJoinGateDeniesWhenAuthorizerRejects(t *testing.T) {
	deny := &PromptAuthorizer{Prompt: func(context.Context, JoinMeta) (bool, error) { return false, nil }}
	h := newTestHost(Config{Authorizer: deny})
	hostPeer, viewerPeer := transport.NewMemoryPeerPair(16)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go h.AttachViewer(ctx, hostPeer)

	control, _ := viewerPeer.Channel(transport.Control)
	join, _ := wire.EncodeViewer(&wire.ViewerFrame{Type: wire.FrameJoin, Join: &wire.Join{ProtocolVersion: 1}})
	control.Send(ctx, join)

	for i := 0; i < 4; i++ {
		b, err := control.Recv(ctx)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		f, err := wire.DecodeHost(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if f.Type == wire.FrameHello {
			t.Fatal("denied viewer must never receive Hello")
		}
		if f.Type == wire.FrameStatus && f.Status.Text == "approval_denied" {
			return
		}
	}
	t.Fatal("never saw approval_denied")
}

// TestHandleResizeIgnoresNonControllingViewer covers the fix for the
// controlling-viewer gate: once one viewer holds the input lease, another
// viewer's resize request must be a no-op, not reach the PTY.
func TestHandleResizeIgnoresNonControllingViewer(t *testing.T) {
	h := newTestHost(Config{Authorizer: AllowAllAuthorizer{}})
	if !h.input.Acquire("a") {
		t.Fatal("expected a to acquire the lease")
	}
	// b is not controlling; handleResize must return before touching the
	// (nil, in this test) PTY, or this call would panic.
	h.handleResize("b", wire.Resize{Cols: 80, ViewportRows: 24})
	if h.input.Controlling() != "a" {
		t.Fatalf("non-controlling resize must not change the lease holder, got %q", h.input.Controlling())
	}
}

// TestHandleInputAcksRejectionWhenLeaseHeldElsewhere covers the fix for the
// silent-drop bug: a viewer whose Input is rejected because another viewer
// holds the controlling lease must still receive an InputAck reporting the
// current global_input_seq, not silence.
func TestHandleInputAcksRejectionWhenLeaseHeldElsewhere(t *testing.T) {
	h := newTestHost(Config{Authorizer: AllowAllAuthorizer{}})
	h.input.Acquire("someone-else") // lease held by a viewer not in this test

	hostPeer, viewerPeer := transport.NewMemoryPeerPair(32)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go h.AttachViewer(ctx, hostPeer)

	control, _ := viewerPeer.Channel(transport.Control)
	join, _ := wire.EncodeViewer(&wire.ViewerFrame{Type: wire.FrameJoin, Join: &wire.Join{ProtocolVersion: 1}})
	control.Send(ctx, join)

	// Drain Status/Hello/Snapshot frames before sending Input.
	for i := 0; i < 4; i++ {
		b, err := control.Recv(ctx)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		f, _ := wire.DecodeHost(b)
		if f != nil && f.Type == wire.FrameSnapshot {
			break
		}
	}

	input, _ := wire.EncodeViewer(&wire.ViewerFrame{Type: wire.FrameInput, Input: &wire.Input{ClientSeq: 1, BaseSeq: 0, Bytes: []byte("x")}})
	if err := control.Send(ctx, input); err != nil {
		t.Fatalf("send input: %v", err)
	}

	b, err := control.Recv(ctx)
	if err != nil {
		t.Fatalf("recv ack: %v", err)
	}
	f, err := wire.DecodeHost(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != wire.FrameInputAck || f.InputAck == nil {
		t.Fatalf("expected InputAck for rejected input, got %v", f.Type)
	}
	if f.InputAck.ClientSeq != 1 {
		t.Fatalf("ack must echo the rejected frame's client_seq, got %d", f.InputAck.ClientSeq)
	}
	if f.InputAck.GlobalSeq != 0 {
		t.Fatalf("rejected input must not advance global_input_seq, got %d", f.InputAck.GlobalSeq)
	}
}

func TestBroadcastDamageReachesAttachedViewer(t *testing.T) {
	h := newTestHost(Config{Authorizer: AllowAllAuthorizer{}})
	hostPeer, viewerPeer := transport.NewMemoryPeerPair(32)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go h.AttachViewer(ctx, hostPeer)

	control, _ := viewerPeer.Channel(transport.Control)
	join, _ := wire.EncodeViewer(&wire.ViewerFrame{Type: wire.FrameJoin, Join: &wire.Join{ProtocolVersion: 1}})
	control.Send(ctx, join)

	// Drain Status/Hello/Snapshot frames.
	for i := 0; i < 4; i++ {
		b, err := control.Recv(ctx)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		f, _ := wire.DecodeHost(b)
		if f != nil && f.Type == wire.FrameSnapshot {
			break
		}
	}

	if _, err := h.adp.Feed([]byte("hi")); err != nil {
		t.Fatalf("feed: %v", err)
	}

	bulk, err := viewerPeer.Channel(transport.Bulk)
	if err != nil {
		t.Fatalf("bulk channel: %v", err)
	}
	b, err := bulk.Recv(ctx)
	if err != nil {
		t.Fatalf("recv delta: %v", err)
	}
	f, err := wire.DecodeHost(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != wire.FrameDelta {
		t.Fatalf("expected delta after feed, got %v", f.Type)
	}
}
