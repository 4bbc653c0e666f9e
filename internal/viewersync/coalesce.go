package viewersync

import (
	"github.com/ehrlich-b/beamterm/internal/grid"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

func toWireCell(c grid.Cell) wire.WireCell {
	return wire.WireCell{Char: c.Char, Width: c.Width, StyleID: uint32(c.StyleID), Seq: c.Seq}
}

func toWireRow(r grid.Row) wire.WireRow {
	cells := make([]wire.WireCell, len(r.Cells))
	for i, c := range r.Cells {
		cells[i] = toWireCell(c)
	}
	return wire.WireRow{Abs: r.Abs, Cells: cells}
}

// coalesceDamage collapses a single-row damage run into the smallest update
// variant that represents it: Cell for a single changed cell, RowSegment for
// a partial run, Row for a run covering the full row width (§4.4
// coalescing rules).
func coalesceDamage(d grid.Damage, cols int, seq uint64) wire.Update {
	if len(d.Cells) == 1 {
		return wire.Update{
			Kind: wire.UpdateCell, Row: d.Row, StartCol: d.ColStart,
			Cell: toWireCell(d.Cells[0]), Seq: seq,
		}
	}
	cells := make([]wire.WireCell, len(d.Cells))
	for i, c := range d.Cells {
		cells[i] = toWireCell(c)
	}
	if d.ColStart == 0 && len(d.Cells) == cols {
		return wire.Update{Kind: wire.UpdateRow, Row: d.Row, Cells: cells, Seq: seq}
	}
	return wire.Update{Kind: wire.UpdateRowSegment, Row: d.Row, StartCol: d.ColStart, Cells: cells, Seq: seq}
}
