package transport

import (
	"context"
	"sync"
)

// Mode reports which underlying channel a SwappableChannel is currently
// writing through.
type Mode string

const (
	ModeRelay Mode = "relay"
	ModeP2P   Mode = "p2p"
)

// SwappableChannel lets a peer start on a relay (websocket) transport and
// migrate to a direct P2P (webrtc) channel once negotiated, or fall back to
// relay again if the P2P path degrades — without the caller needing to know
// which is active. This mirrors the atomic-swap relay/DC pattern used
// elsewhere in this codebase for live transport migration, generalized here
// from a single write-only path to a full Channel (Send+Recv).
type SwappableChannel struct {
	mu    sync.Mutex
	relay Channel
	p2p   Channel
	mode  Mode
}

func NewSwappableChannel(relay Channel) *SwappableChannel {
	return &SwappableChannel{relay: relay, mode: ModeRelay}
}

func (s *SwappableChannel) active() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeP2P && s.p2p != nil {
		return s.p2p
	}
	return s.relay
}

func (s *SwappableChannel) Send(ctx context.Context, msg []byte) error {
	return s.active().Send(ctx, msg)
}

func (s *SwappableChannel) Recv(ctx context.Context) ([]byte, error) {
	return s.active().Recv(ctx)
}

func (s *SwappableChannel) Reliable() bool { return s.active().Reliable() }

func (s *SwappableChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p2p != nil {
		s.p2p.Close()
	}
	return s.relay.Close()
}

// MigrateToP2P switches outbound/inbound traffic to a newly connected P2P
// channel. Safe to call once the webrtc channel has reported open.
func (s *SwappableChannel) MigrateToP2P(p2p Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p2p = p2p
	s.mode = ModeP2P
}

// FallbackToRelay reverts to the relay channel, e.g. after the P2P path's
// heartbeat has gone silent past threshold.
func (s *SwappableChannel) FallbackToRelay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeRelay
}

func (s *SwappableChannel) ModeNow() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
