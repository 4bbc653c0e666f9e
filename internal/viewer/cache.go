// Package viewer implements the viewer-side runtime of §4.7: a sparse
// mirror of the host's grid populated from wire frames, a Mosh-style local
// echo prediction engine, a display cursor computed from the two without
// mutating either, and a terminal renderer.
package viewer

import "github.com/ehrlich-b/beamterm/internal/wire"

// Cell mirrors wire.WireCell; kept as a distinct type (rather than reusing
// internal/grid's) because the viewer never holds an internal/grid.Grid —
// it only ever sees what the wire protocol hands it, and predicted cells
// (never sent by the host) need to live in the same shape.
type Cell struct {
	Char    rune
	Width   uint8
	StyleID uint32
	Seq     uint64
}

func cellFromWire(w wire.WireCell) Cell {
	return Cell{Char: w.Char, Width: w.Width, StyleID: w.StyleID, Seq: w.Seq}
}

// Row is one cached absolute row. A nil entry in GridCache.rows means the
// viewer has never observed that row; an empty Cells slice is not the same
// as absent — it means the row was snapshotted as blank.
type Row struct {
	Abs   int64
	Cells []Cell
}

func (r *Row) ensureWidth(cols int) {
	if len(r.Cells) >= cols {
		return
	}
	grown := make([]Cell, cols)
	copy(grown, r.Cells)
	r.Cells = grown
}

// Style mirrors grid.Style for the viewer's local style table.
type Style struct {
	FG, BG uint32
	Attrs  uint16
}

// Cursor is the server-authoritative cursor, updated only by Snapshot frames
// and Update{Kind: UpdateCursor} — never by prediction (see display.go for the computed,
// merged view shown to the user).
type Cursor struct {
	Row     int64
	Col     int
	Visible bool
	Seq     uint64
}

// GridCache is the viewer-side sparse mirror of the host's authoritative
// grid (§4.7): unlike grid.Grid it need not hold every row between base_row
// and latest_row, only what Snapshot/SnapshotRange/Delta have actually
// delivered.
type GridCache struct {
	cols         int
	viewportRows int

	rows map[int64]*Row

	baseRow, latestRow int64
	historyCap         int
	watermark          uint64

	cursor Cursor
	styles map[uint32]Style

	onCellWrite func(row int64, col int, ch rune)
}

// SetCellWriteHook registers a callback fired after every authoritative
// cell write (from Snapshot, SnapshotRange, or Delta), so the prediction
// engine can confirm or discard a prediction covering that cell.
func (c *GridCache) SetCellWriteHook(fn func(row int64, col int, ch rune)) {
	c.onCellWrite = fn
}

func NewGridCache() *GridCache {
	return &GridCache{rows: make(map[int64]*Row), styles: map[uint32]Style{0: {}}}
}

// ApplyHello initializes dimensions and the retained-history window from
// the handshake frame. It does not itself populate any rows — the
// synchronizer always follows Hello with an initial Snapshot.
func (c *GridCache) ApplyHello(h wire.Hello) {
	c.cols = h.Cols
	c.viewportRows = h.ViewportRows
	c.historyCap = h.HistoryCap
	c.baseRow = h.BaseRow
	c.latestRow = h.LatestRow
	c.watermark = h.GlobalSeq
}

func (c *GridCache) applyWireRow(wr wire.WireRow) {
	cells := make([]Cell, len(wr.Cells))
	for i, wc := range wr.Cells {
		cells[i] = cellFromWire(wc)
	}
	c.rows[wr.Abs] = &Row{Abs: wr.Abs, Cells: cells}
	if c.onCellWrite != nil {
		for col, cell := range cells {
			c.onCellWrite(wr.Abs, col, cell.Char)
		}
	}
}

// ApplySnapshot replaces the cached view's cursor and installs every row in
// the snapshot outright (a snapshot is already internally consistent, so no
// idempotence check is needed the way Delta updates require one).
func (c *GridCache) ApplySnapshot(s wire.Snapshot) {
	for _, wr := range s.Rows {
		c.applyWireRow(wr)
	}
	c.watermark = s.Watermark
	c.cursor = Cursor{Row: s.Cursor.Row, Col: s.Cursor.Col, Visible: s.Cursor.Visible}
	if len(s.Rows) > 0 {
		if s.BaseRow < c.baseRow || c.baseRow == 0 {
			c.baseRow = s.BaseRow
		}
		last := s.Rows[len(s.Rows)-1].Abs
		if last > c.latestRow {
			c.latestRow = last
		}
	}
}

// ApplySnapshotRange installs a backfilled range (§4.4 P2) the same way.
func (c *GridCache) ApplySnapshotRange(sr wire.SnapshotRange) {
	for _, wr := range sr.Rows {
		c.applyWireRow(wr)
	}
	if sr.Watermark > c.watermark {
		c.watermark = sr.Watermark
	}
}

// ApplyDelta applies each update idempotently: a cell write is only
// committed if its Seq exceeds the seq already recorded for that exact
// cell, so a duplicate or reordered delta (possible over the unordered
// Bulk channel) can never regress state written by a later frame that
// happened to arrive first.
func (c *GridCache) ApplyDelta(d wire.Delta) {
	for _, u := range d.Updates {
		c.applyUpdate(u)
	}
	if d.Watermark > c.watermark {
		c.watermark = d.Watermark
	}
}

func (c *GridCache) applyUpdate(u wire.Update) {
	switch u.Kind {
	case wire.UpdateCell:
		c.writeCell(u.Row, u.StartCol, cellFromWire(u.Cell))
	case wire.UpdateRowSegment, wire.UpdateRow:
		for i, wc := range u.Cells {
			c.writeCell(u.Row, u.StartCol+i, cellFromWire(wc))
		}
	case wire.UpdateRect:
		for row := u.RowStart; row <= u.RowEnd; row++ {
			for col := u.ColStart; col <= u.ColEnd; col++ {
				c.writeCell(row, col, cellFromWire(u.Fill))
			}
		}
	case wire.UpdateCursor:
		if u.Seq >= c.cursor.Seq {
			c.cursor = Cursor{Row: u.Row, Col: u.Col, Visible: u.Visible, Seq: u.Seq}
		}
	case wire.UpdateTrim:
		c.TrimBelow(u.NewBaseRow)
	case wire.UpdateStyle:
		c.styles[u.StyleID] = Style{FG: u.FG, BG: u.BG, Attrs: u.Attrs}
	}
}

func (c *GridCache) writeCell(abs int64, col int, cell Cell) {
	r, ok := c.rows[abs]
	if !ok {
		return // row never observed: the viewer isn't tracking it, drop
	}
	r.ensureWidth(col + 1)
	if cell.Seq != 0 && r.Cells[col].Seq != 0 && cell.Seq <= r.Cells[col].Seq {
		return // stale relative to what's already recorded for this cell
	}
	r.Cells[col] = cell
	if abs > c.latestRow {
		c.latestRow = abs
	}
	if c.onCellWrite != nil {
		c.onCellWrite(abs, col, cell.Char)
	}
}

// ApplyHistoryInfo reconciles the cache's known base/latest row after a
// trim notification or an out-of-range backfill response.
func (c *GridCache) ApplyHistoryInfo(h wire.HistoryInfo) {
	c.baseRow = h.BaseRow
	c.latestRow = h.LatestRow
	c.TrimBelow(h.BaseRow)
}

// TrimBelow drops every cached row below newBaseRow, mirroring the host's
// own front-trim (§4.5 point 5).
func (c *GridCache) TrimBelow(newBaseRow int64) {
	if newBaseRow <= c.baseRow {
		return
	}
	for abs := range c.rows {
		if abs < newBaseRow {
			delete(c.rows, abs)
		}
	}
	c.baseRow = newBaseRow
}

// Row returns the cached row at abs, or nil if never observed.
func (c *GridCache) Row(abs int64) *Row { return c.rows[abs] }

func (c *GridCache) Cols() int           { return c.cols }
func (c *GridCache) ViewportRows() int   { return c.viewportRows }
func (c *GridCache) BaseRow() int64      { return c.baseRow }
func (c *GridCache) LatestRow() int64    { return c.latestRow }
func (c *GridCache) Watermark() uint64   { return c.watermark }
func (c *GridCache) ServerCursor() Cursor { return c.cursor }
func (c *GridCache) Style(id uint32) Style { return c.styles[id] }
