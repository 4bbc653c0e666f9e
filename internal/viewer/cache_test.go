package viewer

import (
	"testing"

	"github.com/ehrlich-b/beamterm/internal/wire"
)

func wireRow(abs int64, chars string) wire.WireRow {
	cells := make([]wire.WireCell, len(chars))
	for i, ch := range chars {
		cells[i] = wire.WireCell{Char: ch, Width: 1, Seq: uint64(i + 1)}
	}
	return wire.WireRow{Abs: abs, Cells: cells}
}

func TestApplySnapshotInstallsRows(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 3, BaseRow: 0, LatestRow: 0, HistoryCap: 100})
	c.ApplySnapshot(wire.Snapshot{
		Watermark: 5,
		BaseRow:   0,
		Rows:      []wire.WireRow{wireRow(0, "hello")},
		Cursor:    wire.WireCursor{Row: 1, Col: 0, Visible: true},
	})
	row := c.Row(0)
	if row == nil {
		t.Fatalf("row 0 not installed")
	}
	if string(row.Cells[0].Char) != "h" {
		t.Fatalf("unexpected first cell: %+v", row.Cells[0])
	}
	if c.Watermark() != 5 {
		t.Fatalf("watermark not applied: got %d", c.Watermark())
	}
	if c.ServerCursor().Row != 1 {
		t.Fatalf("cursor not applied: %+v", c.ServerCursor())
	}
}

// TestDeltaIdempotentUnderReorder covers spec §8 property 1: deltas applied
// out of order must converge to the state implied by the highest seq, never
// regress to a lower one that happens to arrive later.
func TestDeltaIdempotentUnderReorder(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	c.ApplySnapshot(wire.Snapshot{Rows: []wire.WireRow{{Abs: 0, Cells: make([]wire.WireCell, 5)}}})

	newer := wire.Delta{Watermark: 2, Updates: []wire.Update{
		{Kind: wire.UpdateCell, Row: 0, StartCol: 0, Cell: wire.WireCell{Char: 'b', Width: 1, Seq: 2}},
	}}
	older := wire.Delta{Watermark: 1, Updates: []wire.Update{
		{Kind: wire.UpdateCell, Row: 0, StartCol: 0, Cell: wire.WireCell{Char: 'a', Width: 1, Seq: 1}},
	}}
	// Apply the higher-seq update first, then the stale one arrives late.
	c.ApplyDelta(newer)
	c.ApplyDelta(older)

	if got := c.Row(0).Cells[0].Char; got != 'b' {
		t.Fatalf("stale delta regressed cell: got %q, want 'b'", got)
	}
}

func TestWriteCellDropsUnobservedRow(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	// Row 7 was never snapshotted, so a delta referencing it must be dropped
	// rather than materializing a row the viewer never asked for.
	c.ApplyDelta(wire.Delta{Updates: []wire.Update{
		{Kind: wire.UpdateCell, Row: 7, StartCol: 0, Cell: wire.WireCell{Char: 'x', Seq: 1}},
	}})
	if c.Row(7) != nil {
		t.Fatalf("row 7 should remain uncached")
	}
}

func TestTrimBelowDropsOldRows(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	c.ApplySnapshot(wire.Snapshot{Rows: []wire.WireRow{wireRow(0, "aaaaa"), wireRow(1, "bbbbb")}})
	c.TrimBelow(1)
	if c.Row(0) != nil {
		t.Fatalf("row below new base_row should be dropped")
	}
	if c.Row(1) == nil {
		t.Fatalf("row at new base_row should be retained")
	}
	if c.BaseRow() != 1 {
		t.Fatalf("base row not advanced: got %d", c.BaseRow())
	}
}

func TestCursorUpdateIgnoresOutOfOrderSeq(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	c.ApplyDelta(wire.Delta{Updates: []wire.Update{
		{Kind: wire.UpdateCursor, Row: 3, Col: 2, Visible: true, Seq: 5},
	}})
	c.ApplyDelta(wire.Delta{Updates: []wire.Update{
		{Kind: wire.UpdateCursor, Row: 1, Col: 0, Visible: true, Seq: 4},
	}})
	if c.ServerCursor().Row != 3 {
		t.Fatalf("out-of-order cursor update should not regress position: got row %d", c.ServerCursor().Row)
	}
}
