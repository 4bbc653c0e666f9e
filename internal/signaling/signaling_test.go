package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/ehrlich-b/beamterm/internal/transport"
)

// loopbackTransport hands every Send straight to the other side's
// HandleBlob, mimicking a relay that just forwards opaque bytes.
type loopbackTransport struct {
	other func(Blob)
}

func (t *loopbackTransport) Send(ctx context.Context, b Blob) error {
	t.other(b)
	return nil
}

func TestLoopbackHandshake(t *testing.T) {
	hostSealer, err := NewBoxSealer()
	if err != nil {
		t.Fatalf("host sealer: %v", err)
	}
	viewerSealer, err := NewBoxSealer()
	if err != nil {
		t.Fatalf("viewer sealer: %v", err)
	}
	hostSealer.SetPeerPublicKey(viewerSealer.PublicKey())
	viewerSealer.SetPeerPublicKey(hostSealer.PublicKey())

	attached := make(chan transport.Peer, 2)

	var hostBridge, viewerBridge *Bridge
	hostTr := &loopbackTransport{other: func(b Blob) {
		go viewerBridge.HandleBlob(context.Background(), b, viewerSealer)
	}}
	viewerTr := &loopbackTransport{other: func(b Blob) {
		go hostBridge.HandleBlob(context.Background(), b, hostSealer)
	}}

	hostBridge = New(hostTr, Config{Timeout: 5 * time.Second}, func(handshakeID, peerID string, peer transport.Peer) {
		attached <- peer
	})
	viewerBridge = New(viewerTr, Config{Timeout: 5 * time.Second}, func(handshakeID, peerID string, peer transport.Peer) {
		attached <- peer
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := viewerBridge.Offer(ctx, "sess-1", "host-1", "viewer", viewerSealer); err != nil {
		t.Fatalf("offer: %v", err)
	}

	var peers []transport.Peer
	for i := 0; i < 2; i++ {
		select {
		case p := <-attached:
			peers = append(peers, p)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for both sides to attach")
		}
	}

	for i, p := range peers {
		ch, err := p.Channel(transport.Control)
		if err != nil {
			t.Fatalf("peer %d: control channel: %v", i, err)
		}
		if !ch.Reliable() {
			t.Errorf("peer %d: control channel should be reliable", i)
		}
	}

	if hostBridge.Pending() != 0 || viewerBridge.Pending() != 0 {
		t.Errorf("expected no pending handshakes after attach, host=%d viewer=%d", hostBridge.Pending(), viewerBridge.Pending())
	}
}

func TestHandleBlobUnknownKind(t *testing.T) {
	b := New(&loopbackTransport{other: func(Blob) {}}, Config{}, nil)
	err := b.HandleBlob(context.Background(), Blob{Kind: "bogus"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown blob kind")
	}
}
