// Package signaling implements the peer-connection negotiation that sits
// between a rendezvous service (external, opaque, and out of scope here) and
// a ready internal/transport.Peer. Every negotiation is scoped by a
// handshake_id so that a second viewer joining while a first is mid-handshake
// never preempts it, and each handshake is bounded by a timeout so a peer
// that vanishes mid-dance doesn't leak state forever.
package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/transport"
)

// Kind distinguishes the two blob shapes a rendezvous service forwards.
// Candidates are not used here: negotiation waits for
// webrtc.GatheringCompletePromise and ships a complete SDP instead of
// trickling candidates, the same non-trickle approach the teacher's
// PeerManager.HandleOffer used.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
)

// Blob is one opaque negotiation message forwarded by the external
// rendezvous collaborator. Payload is a sealed envelope; HandshakeID is sent
// in the clear so a relay can route it without being able to read it.
type Blob struct {
	HandshakeID string
	SessionID   string
	FromPeer    string
	ToPeer      string
	Kind        Kind
	Payload     []byte
}

// Transport is the collaborator that actually moves Blobs between peers.
// Its implementation (a relay WebSocket, an SSH-tunneled pipe, whatever) is
// out of scope here; Bridge only needs to hand it outbound blobs and receive
// inbound ones via HandleBlob.
type Transport interface {
	Send(ctx context.Context, b Blob) error
}

// AttachFunc is invoked once a handshake's data channels are open, handing
// over a ready Peer for the caller to pass to hostrt.Host.AttachViewer (or,
// on the joining side, to viewer.NewClient).
type AttachFunc func(handshakeID, peerID string, peer transport.Peer)

// DefaultTimeout bounds how long a single handshake may stay pending before
// its state is discarded and the peer connection closed.
const DefaultTimeout = 30 * time.Second

type Config struct {
	Timeout    time.Duration
	ICEServers []webrtc.ICEServer
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Bridge negotiates WebRTC peer connections scoped by handshake_id. One
// Bridge serves every concurrent handshake for a host (or a viewer dialing
// out); each handshake_id gets its own pion PeerConnection and its own
// timeout, so handshakes never block or preempt one another.
type Bridge struct {
	cfg Config
	tr  Transport

	mu      sync.Mutex
	pending map[string]*handshake

	onAttach AttachFunc
}

type handshake struct {
	id     string
	peerID string
	pc     *webrtc.PeerConnection
	sealer Sealer
	cancel context.CancelFunc
	done   bool
}

func New(tr Transport, cfg Config, onAttach AttachFunc) *Bridge {
	cfg.setDefaults()
	return &Bridge{cfg: cfg, tr: tr, pending: make(map[string]*handshake), onAttach: onAttach}
}

// Offer begins a new handshake toward peerID (the joining/viewer side):
// generates a handshake_id, creates a PeerConnection with the label's two
// data channels already wired (mirroring NewWebRTCPeer's offering-side
// convention), waits for ICE gathering, and sends the sealed offer via tr.
// The returned handshake_id must be passed back into HandleBlob when the
// matching answer arrives.
func (b *Bridge) Offer(ctx context.Context, sessionID, peerID, label string, sealer Sealer) (string, error) {
	id := uuid.NewString()
	hctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: b.cfg.ICEServers})
	if err != nil {
		cancel()
		return "", fmt.Errorf("signaling: new peer connection: %w", err)
	}

	wp, err := transport.NewWebRTCPeer(hctx, pc, label)
	if err != nil {
		pc.Close()
		cancel()
		return "", fmt.Errorf("signaling: create data channels: %w", err)
	}

	h := &handshake{id: id, peerID: peerID, pc: pc, sealer: sealer, cancel: cancel}
	b.registerLifecycle(h, wp)

	b.mu.Lock()
	b.pending[id] = h
	b.mu.Unlock()

	go b.expire(hctx, id)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		b.fail(id, err)
		return "", fmt.Errorf("signaling: create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		b.fail(id, err)
		return "", fmt.Errorf("signaling: set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-hctx.Done():
		b.fail(id, hctx.Err())
		return "", hctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		b.fail(id, fmt.Errorf("no local description after gathering"))
		return "", fmt.Errorf("signaling: no local description after gathering")
	}
	sealed, err := sealer.Seal([]byte(local.SDP), []byte(id))
	if err != nil {
		b.fail(id, err)
		return "", fmt.Errorf("signaling: seal offer: %w", err)
	}
	if err := b.tr.Send(ctx, Blob{HandshakeID: id, SessionID: sessionID, ToPeer: peerID, Kind: KindOffer, Payload: sealed}); err != nil {
		b.fail(id, err)
		return "", err
	}
	return id, nil
}

// HandleBlob processes one inbound Blob, dispatched by the caller's own
// receive loop over whatever carries Blobs from the rendezvous service. An
// offer with an unseen handshake_id starts a fresh answering-side
// negotiation (concurrent offers get distinct PeerConnections, so a second
// viewer's handshake never preempts a first one still in flight); an answer
// completes the matching pending handshake started by Offer.
func (b *Bridge) HandleBlob(ctx context.Context, blob Blob, sealer Sealer) error {
	switch blob.Kind {
	case KindOffer:
		return b.handleOffer(ctx, blob, sealer)
	case KindAnswer:
		return b.handleAnswer(blob, sealer)
	default:
		return fmt.Errorf("signaling: unknown blob kind %q", blob.Kind)
	}
}

func (b *Bridge) handleOffer(ctx context.Context, blob Blob, sealer Sealer) error {
	b.mu.Lock()
	if _, exists := b.pending[blob.HandshakeID]; exists {
		b.mu.Unlock()
		return nil // already answering this handshake; a duplicate delivery, not a new one
	}
	b.mu.Unlock()

	plaintext, err := sealer.Open(blob.Payload, []byte(blob.HandshakeID))
	if err != nil {
		return fmt.Errorf("signaling: open offer: %w", err)
	}

	hctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: b.cfg.ICEServers})
	if err != nil {
		cancel()
		return fmt.Errorf("signaling: new peer connection: %w", err)
	}

	h := &handshake{id: blob.HandshakeID, peerID: blob.FromPeer, pc: pc, sealer: sealer, cancel: cancel}

	var control, bulk *webrtc.DataChannel
	var dcMu sync.Mutex
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		label := dc.Label()
		dcMu.Lock()
		switch {
		case len(label) >= 8 && label[len(label)-8:] == ":control":
			control = dc
		case len(label) >= 5 && label[len(label)-5:] == ":bulk":
			bulk = dc
		}
		c, blk := control, bulk
		dcMu.Unlock()
		if c == nil || blk == nil {
			return
		}
		wp := transport.WrapWebRTCChannels(c, blk)
		b.complete(blob.HandshakeID, wp)
	})
	b.registerLifecycle(h, nil)

	b.mu.Lock()
	b.pending[blob.HandshakeID] = h
	b.mu.Unlock()
	go b.expire(hctx, blob.HandshakeID)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(plaintext)}); err != nil {
		b.fail(blob.HandshakeID, err)
		return fmt.Errorf("signaling: set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		b.fail(blob.HandshakeID, err)
		return fmt.Errorf("signaling: create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		b.fail(blob.HandshakeID, err)
		return fmt.Errorf("signaling: set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-hctx.Done():
		b.fail(blob.HandshakeID, hctx.Err())
		return hctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		b.fail(blob.HandshakeID, fmt.Errorf("no local description after gathering"))
		return fmt.Errorf("signaling: no local description after gathering")
	}
	sealed, err := sealer.Seal([]byte(local.SDP), []byte(blob.HandshakeID))
	if err != nil {
		b.fail(blob.HandshakeID, err)
		return fmt.Errorf("signaling: seal answer: %w", err)
	}
	return b.tr.Send(ctx, Blob{HandshakeID: blob.HandshakeID, SessionID: blob.SessionID, ToPeer: blob.FromPeer, Kind: KindAnswer, Payload: sealed})
}

func (b *Bridge) handleAnswer(blob Blob, sealer Sealer) error {
	b.mu.Lock()
	h, ok := b.pending[blob.HandshakeID]
	b.mu.Unlock()
	if !ok {
		return nil // late or duplicate answer for a handshake we've already given up on
	}
	plaintext, err := sealer.Open(blob.Payload, []byte(blob.HandshakeID))
	if err != nil {
		return fmt.Errorf("signaling: open answer: %w", err)
	}
	if err := h.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(plaintext)}); err != nil {
		b.fail(blob.HandshakeID, err)
		return fmt.Errorf("signaling: set remote description: %w", err)
	}
	return nil
}

// registerLifecycle wires connection-state teardown; wp is non-nil only on
// the offering side, where the data channels (and thus the Peer) already
// exist at Offer-call time and only need their open state reported.
func (b *Bridge) registerLifecycle(h *handshake, wp *transport.WebRTCPeer) {
	h.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("signaling: connection state", "handshake_id", h.id, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if wp != nil {
				b.complete(h.id, wp)
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			b.fail(h.id, fmt.Errorf("connection %s", state))
		}
	})
}

func (b *Bridge) complete(id string, peer transport.Peer) {
	b.mu.Lock()
	h, ok := b.pending[id]
	if !ok || h.done {
		b.mu.Unlock()
		return
	}
	h.done = true
	peerID := h.peerID
	delete(b.pending, id)
	b.mu.Unlock()
	h.cancel()
	if b.onAttach != nil {
		b.onAttach(id, peerID, peer)
	}
}

func (b *Bridge) fail(id string, cause error) {
	b.mu.Lock()
	h, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	logger.Warn("signaling: handshake failed", "handshake_id", id, "err", cause)
	h.cancel()
	h.pc.Close()
}

func (b *Bridge) expire(ctx context.Context, id string) {
	<-ctx.Done()
	b.mu.Lock()
	h, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if ok && !h.done {
		h.pc.Close()
	}
}

// Pending reports how many handshakes are currently in flight, e.g. for the
// doctor command.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
