package transport

import "context"

// memChannel is an in-process, buffered-channel-backed Channel used by
// tests. It is always "reliable" in the sense that nothing drops it; it
// does not simulate Bulk's loss characteristics.
type memChannel struct {
	out    chan []byte
	in     chan []byte
	closed chan struct{}
}

// NewMemoryPipe returns a connected pair of Channels: messages sent on a
// arrive via Recv on b, and vice versa.
func NewMemoryPipe(buf int) (a, b Channel) {
	c1 := make(chan []byte, buf)
	c2 := make(chan []byte, buf)
	closed := make(chan struct{})
	return &memChannel{out: c1, in: c2, closed: closed},
		&memChannel{out: c2, in: c1, closed: closed}
}

func (m *memChannel) Send(ctx context.Context, msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	select {
	case m.out <- cp:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memChannel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-m.in:
		return msg, nil
	case <-m.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memChannel) Reliable() bool { return true }

func (m *memChannel) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// memPeer exposes a fixed Control/Bulk pair of memory channels, for tests
// that need the full Peer interface rather than a bare Channel pair.
type memPeer struct {
	control, bulk Channel
}

func NewMemoryPeerPair(buf int) (host, viewer Peer) {
	hc, vc := NewMemoryPipe(buf)
	hb, vb := NewMemoryPipe(buf)
	return &memPeer{control: hc, bulk: hb}, &memPeer{control: vc, bulk: vb}
}

func (p *memPeer) Channel(purpose Purpose) (Channel, error) {
	if purpose == Bulk {
		return p.bulk, nil
	}
	return p.control, nil
}

func (p *memPeer) Close() error {
	p.control.Close()
	p.bulk.Close()
	return nil
}
