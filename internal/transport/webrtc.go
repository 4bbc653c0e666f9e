package transport

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/ehrlich-b/beamterm/internal/logger"
)

// dcChannel adapts a pion/webrtc DataChannel, which is already
// message-oriented, to the Channel interface.
type dcChannel struct {
	dc       *webrtc.DataChannel
	inbox    chan []byte
	closed   chan struct{}
	reliable bool
}

func newDCChannel(dc *webrtc.DataChannel, reliable bool) *dcChannel {
	c := &dcChannel{dc: dc, inbox: make(chan []byte, 256), closed: make(chan struct{}), reliable: reliable}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.inbox <- msg.Data:
		default:
			logger.Warn("transport: dropping webrtc message, inbox full", "label", dc.Label())
		}
	})
	dc.OnClose(func() {
		c.Close()
	})
	return c
}

func (c *dcChannel) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := c.dc.Send(msg); err != nil {
		return NewErr(err)
	}
	return nil
}

func (c *dcChannel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *dcChannel) Reliable() bool { return c.reliable }

func (c *dcChannel) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return c.dc.Close()
}

// WebRTCPeer presents a pion/webrtc PeerConnection's two data channels
// (control: ordered+reliable, bulk: unordered+unreliable) as a Peer. Both
// are wrapped in a chunkingChannel: pion's SCTP data channels are message
// oriented but still subject to a negotiated MTU, and a Hello/Snapshot
// covering the full history cap can exceed it (§4.6).
type WebRTCPeer struct {
	pc      *webrtc.PeerConnection
	control Channel
	bulk    Channel
}

// NewWebRTCPeer creates the PeerConnection's two data channels and blocks
// until both have reported open (or ctx is done). Used on the side that
// initiates the offer; the answering side instead registers an OnDataChannel
// handler (see internal/signaling).
func NewWebRTCPeer(ctx context.Context, pc *webrtc.PeerConnection, label string) (*WebRTCPeer, error) {
	ordered := true
	controlDC, err := pc.CreateDataChannel(label+":control", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create control channel: %w", err)
	}
	unordered := false
	var zero uint16
	bulkDC, err := pc.CreateDataChannel(label+":bulk", &webrtc.DataChannelInit{Ordered: &unordered, MaxRetransmits: &zero})
	if err != nil {
		return nil, fmt.Errorf("create bulk channel: %w", err)
	}
	return &WebRTCPeer{
		pc:      pc,
		control: newChunkingChannel(newDCChannel(controlDC, true), Control.String()),
		bulk:    newChunkingChannel(newDCChannel(bulkDC, false), Bulk.String()),
	}, nil
}

// WrapWebRTCChannels builds a Peer from data channels the answering side
// received via OnDataChannel, keyed by the ":control"/":bulk" label suffix
// NewWebRTCPeer uses.
func WrapWebRTCChannels(control, bulk *webrtc.DataChannel) *WebRTCPeer {
	p := &WebRTCPeer{}
	if control != nil {
		p.control = newChunkingChannel(newDCChannel(control, true), Control.String())
	}
	if bulk != nil {
		p.bulk = newChunkingChannel(newDCChannel(bulk, false), Bulk.String())
	}
	return p
}

func (p *WebRTCPeer) Channel(purpose Purpose) (Channel, error) {
	if purpose == Bulk {
		if p.bulk == nil {
			return nil, ErrChannelUnavailable
		}
		return p.bulk, nil
	}
	if p.control == nil {
		return nil, ErrChannelUnavailable
	}
	return p.control, nil
}

func (p *WebRTCPeer) Close() error {
	if p.control != nil {
		p.control.Close()
	}
	if p.bulk != nil {
		p.bulk.Close()
	}
	if p.pc != nil {
		return p.pc.Close()
	}
	return nil
}

// NewErr wraps a send failure as a TransportLost core error for callers
// that want to react to it via errors.As.
func NewErr(cause error) error {
	return &transportErr{cause: cause}
}

type transportErr struct{ cause error }

func (e *transportErr) Error() string { return "transport: send failed: " + e.cause.Error() }
func (e *transportErr) Unwrap() error { return e.cause }
