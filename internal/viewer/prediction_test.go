package viewer

import "testing"

// TestPredictionConfirmsInOrder covers spec §8 property 6 / scenario B: two
// keystrokes predicted in order, each confirmed as its matching authoritative
// cell arrives, leaving no pending predictions once both echo back.
func TestPredictionConfirmsInOrder(t *testing.T) {
	p := NewPredictionEngine(0)
	p.SeedCursor(0, 0)
	p.Register(1, 'a', 0, 80)
	p.Register(2, 'b', 0, 80)

	if !p.Pending() {
		t.Fatalf("expected pending predictions after Register")
	}

	p.ConfirmOrDiverge(0, 0, 'a')
	if _, _, ok := p.At(0, 0); ok {
		t.Fatalf("confirmed prediction at (0,0) should be cleared")
	}
	if _, _, ok := p.At(0, 1); !ok {
		t.Fatalf("second prediction at (0,1) should still be pending")
	}

	p.ConfirmOrDiverge(0, 1, 'b')
	if p.Pending() {
		t.Fatalf("expected no pending predictions after both confirmed")
	}
}

// TestPredictionDiscardOnMismatch covers spec §8 property 7: an authoritative
// write that disagrees with a prediction discards every pending prediction,
// not just the mismatched one.
func TestPredictionDiscardOnMismatch(t *testing.T) {
	p := NewPredictionEngine(0)
	p.SeedCursor(0, 0)
	p.Register(1, 'a', 0, 80)
	p.Register(2, 'b', 0, 80)

	// Authoritative cell at (0,0) disagrees with the predicted 'a'.
	p.ConfirmOrDiverge(0, 0, 'x')

	if p.Pending() {
		t.Fatalf("a mismatch must discard all predictions, including later ones")
	}
	if _, _, ok := p.At(0, 1); ok {
		t.Fatalf("later prediction at (0,1) should have been discarded too")
	}
}

func TestPredictionCursorAdvancesAndWraps(t *testing.T) {
	p := NewPredictionEngine(0)
	p.SeedCursor(5, 8)
	p.Register(1, 'a', 0, 10)
	row, col := p.Cursor()
	if row != 5 || col != 9 {
		t.Fatalf("cursor should advance by one column: got (%d,%d)", row, col)
	}
	p.Register(2, 'b', 0, 10)
	row, col = p.Cursor()
	if row != 6 || col != 0 {
		t.Fatalf("cursor should wrap to next row at cols boundary: got (%d,%d)", row, col)
	}
}

func TestAckClientSeqDoesNotClearPrediction(t *testing.T) {
	p := NewPredictionEngine(0)
	p.SeedCursor(0, 0)
	p.Register(1, 'a', 0, 80)
	p.AckClientSeq(1)
	// §4.7 rule 4: an ack alone is not enough to clear a prediction; only a
	// matching authoritative write does that.
	if !p.Pending() {
		t.Fatalf("ack alone must not clear a pending prediction")
	}
	pr, _, ok := p.At(0, 0)
	if !ok || pr.AckedAt == nil {
		t.Fatalf("prediction should be marked acked: %+v ok=%v", pr, ok)
	}
}
