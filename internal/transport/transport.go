// Package transport implements the named logical channel abstraction of
// §4.6: a Control channel (reliable, ordered) and a Bulk channel (unordered,
// droppable), each carrying whole self-delimited wire-protocol messages.
// Concrete implementations sit on top of pion/webrtc data channels or a
// coder/websocket fallback; a SwappableChannel lets a peer migrate from one
// to the other without the caller noticing.
package transport

import (
	"context"
	"errors"
)

// Purpose names a logical channel. The router treats Control as mandatory;
// Bulk is optional — a transport that can only offer one reliable channel
// reports Bulk unavailable and callers fall back to Control for everything.
type Purpose int

const (
	Control Purpose = iota
	Bulk
)

func (p Purpose) String() string {
	if p == Bulk {
		return "bulk"
	}
	return "control"
}

// ErrChannelUnavailable is returned by Peer.Channel when the transport
// cannot provide the requested purpose (e.g. a single-channel websocket
// fallback asked for Bulk).
var ErrChannelUnavailable = errors.New("transport: channel unavailable")

// ErrClosed is returned from Send/Recv once a channel has been closed.
var ErrClosed = errors.New("transport: channel closed")

// Channel delivers whole, self-delimited messages. Reliable channels never
// drop; unreliable channels may drop individual messages but never deliver
// a partial one.
type Channel interface {
	Send(ctx context.Context, msg []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Reliable() bool
	Close() error
}

// Peer is one remote party's set of logical channels. A transport may
// present multiple peers (one host, many viewers); the core treats each
// peer's channels independently.
type Peer interface {
	Channel(purpose Purpose) (Channel, error)
	Close() error
}
