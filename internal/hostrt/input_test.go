package hostrt

import "testing"

func TestLeaseGrantedToFirstAndHeldExclusively(t *testing.T) {
	s := newInputSerializer()
	if !s.Acquire("a") {
		t.Fatal("expected first acquire to succeed")
	}
	if s.Acquire("b") {
		t.Fatal("expected second viewer's acquire to fail while a holds the lease")
	}
	s.Release("a")
	if !s.Acquire("b") {
		t.Fatal("expected b to acquire the lease once a released it")
	}
}

func TestSubmitAssignsMonotonicGlobalSeq(t *testing.T) {
	s := newInputSerializer()
	s.Acquire("a")
	g1, ok := s.Submit("a", 1, s.Watermark())
	if !ok || g1 != 1 {
		t.Fatalf("want (1,true), got (%d,%v)", g1, ok)
	}
	g2, ok := s.Submit("a", 2, s.Watermark())
	if !ok || g2 != 2 {
		t.Fatalf("want (2,true), got (%d,%v)", g2, ok)
	}
}

func TestSubmitDropsStaleOrDuplicateClientSeq(t *testing.T) {
	s := newInputSerializer()
	s.Acquire("a")
	s.Submit("a", 5, s.Watermark())
	if _, ok := s.Submit("a", 5, s.Watermark()); ok {
		t.Fatal("expected duplicate client_seq to be rejected")
	}
	if _, ok := s.Submit("a", 3, s.Watermark()); ok {
		t.Fatal("expected stale (lower) client_seq to be rejected")
	}
	if _, ok := s.Submit("a", 6, s.Watermark()); !ok {
		t.Fatal("expected a strictly greater client_seq to be accepted")
	}
}

func TestSubmitRejectsNonControllingViewer(t *testing.T) {
	s := newInputSerializer()
	s.Acquire("a")
	if _, ok := s.Submit("b", 1, s.Watermark()); ok {
		t.Fatal("expected non-leased viewer's input to be rejected")
	}
}

// TestSubmitRejectsStaleBaseSeq covers §4.5 point 2 / §7 StaleInput: a frame
// whose base_seq has fallen behind the global_input_seq already assigned to
// another write must be dropped, even from the lease holder, since the
// viewer composed it against state the host has since moved past.
func TestSubmitRejectsStaleBaseSeq(t *testing.T) {
	s := newInputSerializer()
	s.Acquire("a")
	g1, ok := s.Submit("a", 1, 0)
	if !ok || g1 != 1 {
		t.Fatalf("want (1,true) for first submit against base_seq 0, got (%d,%v)", g1, ok)
	}
	// This frame was composed before g1 was assigned (base_seq still 0), but
	// arrives after global_input_seq has already advanced to 1.
	g2, ok := s.Submit("a", 2, 0)
	if ok {
		t.Fatal("expected stale base_seq to be rejected")
	}
	if g2 != 1 {
		t.Fatalf("rejection must report the current global_input_seq so the viewer can recompute base_seq, got %d", g2)
	}
}

// TestTotalOrderAcrossTwoViewersRacingForLease covers §8 scenario C: two
// viewers race to submit input against the same host. Only the lease
// holder's frames are admitted, each admitted frame gets the next seq in
// one global order, and the other viewer's input is rejected outright
// regardless of its base_seq.
func TestTotalOrderAcrossTwoViewersRacingForLease(t *testing.T) {
	s := newInputSerializer()
	if !s.Acquire("a") {
		t.Fatal("a should win the race, acquiring first")
	}
	if s.Acquire("b") {
		t.Fatal("b must not acquire while a holds the lease")
	}
	seqs := []uint64{}
	for _, cs := range []uint64{1, 2, 3} {
		if g, ok := s.Submit("a", cs, s.Watermark()); ok {
			seqs = append(seqs, g)
		}
	}
	if _, ok := s.Submit("b", 1, s.Watermark()); ok {
		t.Fatal("b's input must still be rejected")
	}
	for i, v := range seqs {
		if v != uint64(i+1) {
			t.Fatalf("expected strictly increasing global seq, got %v", seqs)
		}
	}
}
