package viewer

import (
	"testing"

	"github.com/ehrlich-b/beamterm/internal/wire"
)

// TestDisplayCursorPrefersPredictionWhilePending exercises §9's core
// convergence rule: the display cursor is a computed value, never a shared
// mutable field both systems write, so it must reflect the predicted
// position while predictions are outstanding and fall back to the server's
// authoritative cursor once they drain.
func TestDisplayCursorPrefersPredictionWhilePending(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 10, ViewportRows: 1})
	c.ApplyDelta(wire.Delta{Updates: []wire.Update{
		{Kind: wire.UpdateCursor, Row: 0, Col: 3, Visible: true, Seq: 1},
	}})

	p := NewPredictionEngine(0)
	p.SeedCursor(0, 3)
	p.Register(1, 'x', 0, 10)

	row, col, visible := DisplayCursor(c, p)
	if row != 0 || col != 4 || !visible {
		t.Fatalf("expected predicted cursor (0,4), got (%d,%d,%v)", row, col, visible)
	}

	p.ConfirmOrDiverge(0, 3, 'x')
	row, col, _ = DisplayCursor(c, p)
	if row != 0 || col != 3 {
		t.Fatalf("expected fallback to server cursor (0,3) once predictions drain, got (%d,%d)", row, col)
	}
}

func TestDisplayRowMergesPredictionOverlay(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	c.ApplySnapshot(wire.Snapshot{Rows: []wire.WireRow{wireRow(0, "abcde")}})

	p := NewPredictionEngine(0)
	p.SeedCursor(0, 1)
	p.Register(1, 'Z', 0, 5)

	row := DisplayRow(c, p, 0)
	if row[1].Char != 'Z' || !row[1].Predicted {
		t.Fatalf("expected predicted overlay 'Z' at col 1, got %+v", row[1])
	}
	if row[0].Char != 'a' || row[0].Predicted {
		t.Fatalf("col 0 should remain the authoritative cell, got %+v", row[0])
	}
}
