package grid

// Row is a single line of cells together with its absolute line number.
// Absolute line numbers are assigned monotonically by the Grid from a
// counter that never resets during a session, so a Row can be addressed
// unambiguously regardless of scrolling or trimming.
type Row struct {
	Abs     int64
	Cells   []Cell
	Wrapped bool // true if this row is a soft-wrap continuation of Abs-1
}

// clone returns a deep copy suitable for handing to a reader across a
// channel without risking a data race with the writer.
func (r Row) clone() Row {
	cells := make([]Cell, len(r.Cells))
	copy(cells, r.Cells)
	return Row{Abs: r.Abs, Cells: cells, Wrapped: r.Wrapped}
}

func newBlankRow(abs int64, cols int, seq uint64) Row {
	cells := make([]Cell, cols)
	for i := range cells {
		cells[i] = blankCell(seq)
	}
	return Row{Abs: abs, Cells: cells}
}

// maxSeq returns the highest Seq among the row's cells, used by viewers to
// track per_row_seq for idempotent delta application.
func (r Row) maxSeq() uint64 {
	var m uint64
	for _, c := range r.Cells {
		if c.Seq > m {
			m = c.Seq
		}
	}
	return m
}
