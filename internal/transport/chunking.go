package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// chunkingChannel wraps a Channel whose underlying medium has a message-size
// ceiling (WebRTC data channels, a websocket frame size a proxy will enforce)
// and transparently splits outbound messages exceeding wire.DefaultChunkSize
// into wire.ChunkEnvelope chunks, reassembling them on the inbound side
// (§4.6). Every message — chunked or not — travels as at least one
// ChunkEnvelope, so Recv never needs to distinguish framing styles.
type chunkingChannel struct {
	inner     Channel
	purpose   string
	chunkSize int

	nextMsgID atomic.Uint64

	mu    sync.Mutex
	reasm *wire.Reassembler
}

func newChunkingChannel(inner Channel, purpose string) *chunkingChannel {
	return &chunkingChannel{
		inner:     inner,
		purpose:   purpose,
		chunkSize: wire.DefaultChunkSize,
		reasm:     wire.NewReassembler(wire.DefaultReassemblyTimeout),
	}
}

func (c *chunkingChannel) Send(ctx context.Context, msg []byte) error {
	id := c.nextMsgID.Add(1)
	for _, chunk := range wire.Split(c.purpose, "frame", id, msg, c.chunkSize) {
		b, err := wire.EncodeChunk(chunk)
		if err != nil {
			return err
		}
		if err := c.inner.Send(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Recv blocks until a complete message has been reassembled, discarding
// corrupt or malformed chunks (logged, not fatal: a retransmit or a later
// chunk may still complete the message, or the partial sweep will reclaim
// it after DefaultReassemblyTimeout).
func (c *chunkingChannel) Recv(ctx context.Context) ([]byte, error) {
	for {
		b, err := c.inner.Recv(ctx)
		if err != nil {
			return nil, err
		}
		chunk, err := wire.DecodeChunk(b)
		if err != nil {
			logger.Warn("transport: dropping malformed chunk envelope", "purpose", c.purpose, "err", err)
			continue
		}
		c.mu.Lock()
		if dropped := c.reasm.Sweep(time.Now()); dropped > 0 {
			logger.Warn("transport: reassembly timeout dropped partial messages", "purpose", c.purpose, "count", dropped)
		}
		payload, done, err := c.reasm.Put(time.Now(), chunk)
		c.mu.Unlock()
		if err != nil {
			logger.Warn("transport: chunk failed crc, awaiting retransmit", "purpose", c.purpose, "err", err)
			continue
		}
		if done {
			return payload, nil
		}
	}
}

func (c *chunkingChannel) Reliable() bool { return c.inner.Reliable() }
func (c *chunkingChannel) Close() error   { return c.inner.Close() }
