package grid

import "testing"

// TestSafeCutStopsAtNonWrappedRow is a focused unit test for the lookahead
// search itself: given a candidate cut point whose row is not a wrap
// continuation, safeCut must return that row's index unchanged, not the
// index after it (which may itself be a wrap continuation of the row just
// selected as the new base).
func TestSafeCutStopsAtNonWrappedRow(t *testing.T) {
	h := &History{
		rows: []Row{
			{Abs: 0, Wrapped: false},
			{Abs: 1, Wrapped: false}, // candidate cut point: not a continuation
			{Abs: 2, Wrapped: true},  // continuation of row 1; must stay attached
			{Abs: 3, Wrapped: false},
			{Abs: 4, Wrapped: false},
		},
		base: 0,
		cap:  5,
	}
	if cut := h.safeCut(1); cut != 1 {
		t.Fatalf("safeCut(1) = %d, want 1 (row 1 is not wrapped, must become the cut point itself)", cut)
	}
}

// TestSafeCutSkipsWrappedContinuations verifies the lookahead skips past a
// run of wrap continuations to find the next clean logical-line boundary.
func TestSafeCutSkipsWrappedContinuations(t *testing.T) {
	h := &History{
		rows: []Row{
			{Abs: 0, Wrapped: false},
			{Abs: 1, Wrapped: false}, // head of a wrapped line
			{Abs: 2, Wrapped: true},  // continuation of row 1
			{Abs: 3, Wrapped: true},  // continuation of row 1
			{Abs: 4, Wrapped: false}, // next clean boundary
		},
		base: 0,
		cap:  5,
	}
	if cut := h.safeCut(2); cut != 4 {
		t.Fatalf("safeCut(2) = %d, want 4 (rows 2-3 are continuations of row 1, must stay attached)", cut)
	}
}
