package hostrt

import "sync"

// InputSerializer assigns each accepted Input frame the next value of a
// single monotonic counter (global_input_seq, §4.5 point 2) so that bytes
// from any number of viewers are written to the PTY in one total order
// (§8 property 4), and enforces the controlling-viewer lease plus the
// base_seq staleness check (§4.5 point 2, §7 StaleInput, §8 scenario C).
//
// Only one viewer at a time holds the lease and may submit input; frames
// from any other viewer are rejected outright. A frame also carries
// base_seq, the global_input_seq the viewer last observed when it composed
// the frame; if that has since fallen behind the current counter, the
// frame was raced against another already-serialized write and is dropped
// rather than applied out of the order the viewer thought it was in. Within
// the lease holder's own stream, a frame whose client_seq does not
// strictly increase past the last accepted value is a retransmission or
// reorder artifact and is dropped the same way.
type InputSerializer struct {
	mu sync.Mutex

	globalSeq uint64

	controlling    string
	lastClientSeq  map[string]uint64
}

func newInputSerializer() *InputSerializer {
	return &InputSerializer{lastClientSeq: make(map[string]uint64)}
}

// Acquire grants the controlling-viewer lease to viewerID if it is free or
// already held by viewerID. Returns false if another viewer holds it.
func (s *InputSerializer) Acquire(viewerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controlling == "" || s.controlling == viewerID {
		s.controlling = viewerID
		return true
	}
	return false
}

// Release drops the lease if viewerID currently holds it (e.g. on detach),
// letting the next viewer to send Input or Resize claim it.
func (s *InputSerializer) Release(viewerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controlling == viewerID {
		s.controlling = ""
	}
}

// Controlling reports the current lease holder, or "" if unleased.
func (s *InputSerializer) Controlling() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlling
}

// Submit validates and admits one Input frame: the caller must hold the
// lease, baseSeq must not have fallen behind the current global_input_seq,
// and clientSeq must exceed every clientSeq previously accepted from this
// viewer. On acceptance it returns the newly assigned global_input_seq and
// true; the caller writes the bytes to the PTY and acks with that value.
// On rejection it returns (current global_input_seq, false); the caller
// must not write the bytes to the PTY, but should still ack the viewer
// with the returned global_input_seq so it can recompute base_seq for its
// next attempt instead of spinning against a counter it no longer sees.
func (s *InputSerializer) Submit(viewerID string, clientSeq, baseSeq uint64) (globalSeq uint64, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controlling != viewerID {
		return s.globalSeq, false
	}
	if baseSeq < s.globalSeq {
		return s.globalSeq, false // stale: raced against a write already serialized since this frame was composed
	}
	if last, ok := s.lastClientSeq[viewerID]; ok && clientSeq <= last {
		return s.globalSeq, false // stale or duplicate: already-processed or reordered frame
	}
	s.lastClientSeq[viewerID] = clientSeq
	s.globalSeq++
	return s.globalSeq, true
}

// Watermark returns the most recently assigned global_input_seq.
func (s *InputSerializer) Watermark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalSeq
}

// Forget removes a disconnected viewer's dedup state and, if it held the
// lease, releases it.
func (s *InputSerializer) Forget(viewerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastClientSeq, viewerID)
	if s.controlling == viewerID {
		s.controlling = ""
	}
}
