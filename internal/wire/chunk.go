package wire

import (
	"fmt"
	"hash/crc32"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ChunkEnvelope is the transport-layer wrapper used whenever a message
// exceeds the underlying channel MTU (§4.6). Every chunk is self-delimited
// and carries enough to reassemble or detect corruption independently of
// message content.
type ChunkEnvelope struct {
	Namespace  string `cbor:"ns"`
	Kind       string `cbor:"k"`
	MsgID      uint64 `cbor:"id"`
	ChunkIdx   int    `cbor:"i"`
	ChunkCount int    `cbor:"n"`
	Payload    []byte `cbor:"p"`
	CRC        uint32 `cbor:"crc"`
}

// DefaultChunkSize matches the "typical limit" the design calls out for
// transport MTUs (§4.6): roughly 16 KiB per chunk, leaving headroom for the
// envelope's own encoding overhead.
const DefaultChunkSize = 16*1024 - 256

// DefaultReassemblyTimeout is the age after which a partially-received
// message is dropped (§4.6).
const DefaultReassemblyTimeout = 5 * time.Second

// Split breaks payload into one or more ChunkEnvelopes of at most
// chunkSize bytes each, all sharing msgID, namespace, and kind.
func Split(namespace, kind string, msgID uint64, payload []byte, chunkSize int) []ChunkEnvelope {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	count := (len(payload) + chunkSize - 1) / chunkSize
	if count == 0 {
		count = 1
	}
	out := make([]ChunkEnvelope, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]
		out = append(out, ChunkEnvelope{
			Namespace:  namespace,
			Kind:       kind,
			MsgID:      msgID,
			ChunkIdx:   i,
			ChunkCount: count,
			Payload:    chunk,
			CRC:        crc32.ChecksumIEEE(chunk),
		})
	}
	return out
}

// EncodeChunk/DecodeChunk serialize a single ChunkEnvelope for wire
// transmission; each is sent as its own transport message.
func EncodeChunk(c ChunkEnvelope) ([]byte, error) {
	b, err := encMode.Marshal(c)
	if err != nil {
		return nil, NewError(EncodeOverflow, err)
	}
	return b, nil
}

func DecodeChunk(b []byte) (ChunkEnvelope, error) {
	var c ChunkEnvelope
	if err := cbor.Unmarshal(b, &c); err != nil {
		return ChunkEnvelope{}, NewError(ProtocolViolation, err)
	}
	return c, nil
}

type partial struct {
	total     int
	chunks    [][]byte
	received  int
	namespace string
	kind      string
	firstSeen time.Time
}

// Reassembler accumulates chunks across possibly-out-of-order arrival and
// reconstructs the original payload once all chunks for a msgID have been
// seen. It also drops (and reports) partial messages older than timeout.
type Reassembler struct {
	timeout time.Duration
	msgs    map[uint64]*partial
}

func NewReassembler(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	return &Reassembler{timeout: timeout, msgs: make(map[uint64]*partial)}
}

// Put ingests one chunk. When it completes a message, the full payload is
// returned with done=true. CRC mismatches are reported as an error but do
// not abandon the in-flight reassembly (a retransmit may still arrive).
func (r *Reassembler) Put(now time.Time, c ChunkEnvelope) (payload []byte, done bool, err error) {
	if crc32.ChecksumIEEE(c.Payload) != c.CRC {
		return nil, false, NewError(ProtocolViolation, fmt.Errorf("chunk %d/%d of msg %d failed crc", c.ChunkIdx, c.ChunkCount, c.MsgID))
	}
	p, ok := r.msgs[c.MsgID]
	if !ok {
		p = &partial{total: c.ChunkCount, chunks: make([][]byte, c.ChunkCount), namespace: c.Namespace, kind: c.Kind, firstSeen: now}
		r.msgs[c.MsgID] = p
	}
	if c.ChunkIdx < 0 || c.ChunkIdx >= p.total {
		return nil, false, NewError(ProtocolViolation, fmt.Errorf("chunk index %d out of range [0,%d)", c.ChunkIdx, p.total))
	}
	if p.chunks[c.ChunkIdx] == nil {
		p.chunks[c.ChunkIdx] = c.Payload
		p.received++
	}
	if p.received < p.total {
		return nil, false, nil
	}
	delete(r.msgs, c.MsgID)
	total := 0
	for _, ch := range p.chunks {
		total += len(ch)
	}
	out := make([]byte, 0, total)
	for _, ch := range p.chunks {
		out = append(out, ch...)
	}
	return out, true, nil
}

// Sweep removes partial messages older than the reassembly timeout,
// returning the number dropped (reported to telemetry by the caller).
func (r *Reassembler) Sweep(now time.Time) int {
	dropped := 0
	for id, p := range r.msgs {
		if now.Sub(p.firstSeen) > r.timeout {
			delete(r.msgs, id)
			dropped++
		}
	}
	return dropped
}
