package grid

import "sync"

// Cursor is the authoritative cursor position. Row is an absolute line
// number; Col is 0-based.
type Cursor struct {
	Row     int64
	Col     int
	Visible bool
	Style   StyleID
}

// Damage describes a contiguous run of cells changed by the emulator since
// the last observation: (row, col_range, cells).
type Damage struct {
	Row      int64
	ColStart int
	Cells    []Cell
	Wrapped  bool // set when this write also establishes row's wrap flag
}

// Grid is the authoritative terminal state: the history ring (which doubles
// as the addressable scrollback + screen, since the screen is simply the
// tail viewport_rows rows of history) plus cursor and watermark. All
// mutation happens through a single writer (see internal/hostrt's emulator
// owner task); the mutex here exists so Grid can also be driven safely from
// unit tests and so snapshot hand-off never blocks the writer across I/O.
type Grid struct {
	mu sync.Mutex

	cols         int
	viewportRows int
	historyCap   int

	hist *History

	cursor Cursor

	globalSeq uint64 // monotonic; every mutation claims the next value
	watermark uint64 // == globalSeq at last observation point

	styles map[StyleID]Style

	staleDamage uint64 // count of damage discarded as referencing trimmed rows

	onTrim func(newBaseRow int64)
}

// New creates a Grid with viewport_rows blank screen rows already present,
// so base_row/latest_row/cursor are well-defined from the start.
func New(cols, viewportRows, historyCap int) *Grid {
	if historyCap < viewportRows {
		historyCap = viewportRows
	}
	g := &Grid{
		cols:         cols,
		viewportRows: viewportRows,
		historyCap:   historyCap,
		hist:         newHistory(historyCap),
		styles:       map[StyleID]Style{0: {}},
	}
	for i := 0; i < viewportRows; i++ {
		g.globalSeq++
		g.hist.append(newBlankRow(int64(i), cols, g.globalSeq))
	}
	g.watermark = g.globalSeq
	g.cursor = Cursor{Row: 0, Col: 0, Visible: true}
	return g
}

// Resize mutates authoritative width/height. Existing rows are not reflowed
// here; reflow is the emulator adapter's job, which will re-feed damage for
// the new dimensions immediately after calling Resize.
func (g *Grid) Resize(cols, viewportRows int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cols = cols
	g.viewportRows = viewportRows
}

// ApplyDamage writes a batch of damage tuples, stamping each written cell
// with the next global sequence number and advancing the watermark.
// Damage referencing rows below base_row is stale and discarded.
func (g *Grid) ApplyDamage(damage []Damage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range damage {
		row := g.hist.mutate(d.Row)
		if row == nil {
			g.staleDamage++
			continue
		}
		g.globalSeq++
		seq := g.globalSeq
		for i, c := range d.Cells {
			col := d.ColStart + i
			if col < 0 || col >= len(row.Cells) {
				continue
			}
			c.Seq = seq
			row.Cells[col] = c
		}
		if d.Wrapped {
			row.Wrapped = true
		}
	}
	g.watermark = g.globalSeq
}

// ScrollUp moves n rows from the top of the viewport into history by
// appending n fresh blank rows to the ring, trimming the front if the
// history cap would be exceeded.
func (g *Grid) ScrollUp(n int) {
	g.mu.Lock()
	trimmedAny := false
	var newBase int64
	for i := 0; i < n; i++ {
		g.globalSeq++
		trimmed, base := g.hist.append(newBlankRow(g.hist.latestRow()+1, g.cols, g.globalSeq))
		if trimmed > 0 {
			trimmedAny = true
			newBase = base
		}
	}
	g.watermark = g.globalSeq
	if base := g.hist.baseRow(); g.cursor.Row < base {
		g.cursor.Row = base
	}
	hook := g.onTrim
	g.mu.Unlock()
	if trimmedAny && hook != nil {
		hook(newBase)
	}
}

// SetTrimHook registers a callback invoked (outside the grid's lock)
// whenever a scroll trims rows off the front of history, so subscribers
// (one per attached viewer) can fan out Trim + HistoryInfo (§4.5 point 5).
func (g *Grid) SetTrimHook(fn func(newBaseRow int64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTrim = fn
}

// SetCursor updates the authoritative cursor position.
func (g *Grid) SetCursor(c Cursor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cursor = c
}

// Cursor returns the current authoritative cursor.
func (g *Grid) Cursor() Cursor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursor
}

// DefineStyle records or updates a style-table entry.
func (g *Grid) DefineStyle(id StyleID, s Style) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.styles[id] = s
}

// Style looks up a style-table entry, e.g. for a synchronizer deciding
// whether a viewer has already been sent this StyleID.
func (g *Grid) Style(id StyleID) Style {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.styles[id]
}

// Snapshot is a consistent, point-in-time copy of a row range plus the
// watermark at capture time, satisfying §4.1's snapshot_range contract.
type Snapshot struct {
	Watermark uint64
	StartRow  int64
	Rows      []Row
	Cursor    Cursor
}

// SnapshotRange returns rows in [start, end] clamped to retained history,
// together with the watermark at the moment of capture.
func (g *Grid) SnapshotRange(start, end int64) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	rows := g.hist.rangeRows(start, end)
	startRow := start
	if len(rows) > 0 {
		startRow = rows[0].Abs
	}
	return Snapshot{Watermark: g.watermark, StartRow: startRow, Rows: rows, Cursor: g.cursor}
}

// FullSnapshot returns the entire retained range, i.e. [base_row, latest_row].
func (g *Grid) FullSnapshot() Snapshot {
	g.mu.Lock()
	base, latest := g.hist.baseRow(), g.hist.latestRow()
	g.mu.Unlock()
	return g.SnapshotRange(base, latest)
}

// ViewportSnapshot returns the tail viewport_rows rows, i.e. the live screen.
func (g *Grid) ViewportSnapshot() Snapshot {
	g.mu.Lock()
	latest := g.hist.latestRow()
	vr := g.viewportRows
	g.mu.Unlock()
	start := latest - int64(vr) + 1
	return g.SnapshotRange(start, latest)
}

func (g *Grid) BaseRow() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hist.baseRow()
}

func (g *Grid) LatestRow() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hist.latestRow()
}

func (g *Grid) Watermark() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watermark
}

func (g *Grid) Cols() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cols
}

func (g *Grid) ViewportRows() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewportRows
}

func (g *Grid) HistoryCap() int {
	return g.historyCap
}

func (g *Grid) HistoryRows() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hist.len()
}

// StaleDamageCount reports how many damage tuples were discarded because
// they referenced rows below base_row (see §4.1 failure modes).
func (g *Grid) StaleDamageCount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.staleDamage
}
