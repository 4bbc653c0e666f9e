package grid

import "testing"

func TestInvariantsAfterScroll(t *testing.T) {
	g := New(10, 3, 5)
	for i := 0; i < 20; i++ {
		g.ScrollUp(1)
	}
	base, latest := g.BaseRow(), g.LatestRow()
	if latest-base+1 > int64(g.HistoryCap()) {
		t.Fatalf("history_rows exceeds cap: base=%d latest=%d cap=%d", base, latest, g.HistoryCap())
	}
	cur := g.Cursor()
	if cur.Row < base || cur.Row > latest+1 {
		t.Fatalf("cursor row %d out of [%d, %d+1]", cur.Row, base, latest)
	}
}

func TestApplyDamageStampsSeq(t *testing.T) {
	g := New(10, 3, 100)
	before := g.Watermark()
	g.ApplyDamage([]Damage{{Row: 0, ColStart: 0, Cells: []Cell{{Char: 'h', Width: 1}, {Char: 'i', Width: 1}}}})
	snap := g.SnapshotRange(0, 0)
	if len(snap.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(snap.Rows))
	}
	row := snap.Rows[0]
	if row.Cells[0].Char != 'h' || row.Cells[1].Char != 'i' {
		t.Fatalf("unexpected cells: %+v", row.Cells[:2])
	}
	if row.Cells[0].Seq <= before {
		t.Fatalf("seq not stamped above previous watermark: %d <= %d", row.Cells[0].Seq, before)
	}
	if snap.Watermark <= before {
		t.Fatalf("watermark did not advance: %d <= %d", snap.Watermark, before)
	}
}

func TestStaleDamageDiscarded(t *testing.T) {
	g := New(10, 3, 5)
	for i := 0; i < 20; i++ {
		g.ScrollUp(1)
	}
	base := g.BaseRow()
	g.ApplyDamage([]Damage{{Row: base - 1, ColStart: 0, Cells: []Cell{{Char: 'x', Width: 1}}}})
	if g.StaleDamageCount() != 1 {
		t.Fatalf("expected 1 stale damage entry, got %d", g.StaleDamageCount())
	}
}

func TestSnapshotRangeClampsAndIsConsistent(t *testing.T) {
	g := New(10, 3, 50)
	for i := 0; i < 10; i++ {
		g.ScrollUp(1)
	}
	base, latest := g.BaseRow(), g.LatestRow()
	snap := g.SnapshotRange(base-100, latest+100)
	if snap.Rows[0].Abs != base || snap.Rows[len(snap.Rows)-1].Abs != latest {
		t.Fatalf("snapshot not clamped to [%d, %d]: got [%d, %d]", base, latest, snap.Rows[0].Abs, snap.Rows[len(snap.Rows)-1].Abs)
	}
}

// TestTrimNeverSplitsWrappedLine covers the safe-cut trimming guarantee: a
// trim must never leave a wrap-continuation row as the new base_row without
// the logical line's head that precedes it.
func TestTrimNeverSplitsWrappedLine(t *testing.T) {
	g := New(5, 1, 5)
	for i := 0; i < 4; i++ {
		g.ScrollUp(1) // rows 0..4 now retained, history at cap
	}
	// Row 2 is a soft-wrap continuation of row 1.
	g.ApplyDamage([]Damage{{Row: 2, ColStart: 0, Cells: []Cell{{Char: 'x', Width: 1}}, Wrapped: true}})

	g.ScrollUp(1) // forces a trim: row 0 must go, but row 2 must not become base alone
	base := g.BaseRow()
	snap := g.FullSnapshot()
	if len(snap.Rows) == 0 || snap.Rows[0].Abs != base {
		t.Fatalf("snapshot does not start at base_row: %+v (base=%d)", snap.Rows, base)
	}
	if snap.Rows[0].Wrapped {
		t.Fatalf("base_row %d is a wrap continuation: a trim split a wrapped line across base_row", base)
	}
}

func TestUniformRowWidth(t *testing.T) {
	g := New(10, 3, 50)
	snap := g.FullSnapshot()
	for _, r := range snap.Rows {
		if len(r.Cells) != g.Cols() {
			t.Fatalf("row %d has width %d, want %d", r.Abs, len(r.Cells), g.Cols())
		}
	}
}
