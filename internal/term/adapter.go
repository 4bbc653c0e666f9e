// Package term adapts a VT terminal emulator to the grid package's damage
// contract (§4.2 of the terminal-sync design): it feeds PTY bytes to the
// emulator, diffs the rendered screen against what was last observed, and
// turns the result into grid.Damage batches plus cursor frames.
package term

import (
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"

	"github.com/ehrlich-b/beamterm/internal/grid"
)

// CursorFrame is emitted after every Feed call with a dedicated sequence
// number so viewers can update the displayed cursor independently of cell
// writes (§4.2).
type CursorFrame struct {
	Seq     uint64
	Row     int64
	Col     int
	Visible bool
}

// Adapter drives a vt.Emulator from PTY bytes and applies the resulting
// damage to a grid.Grid. It owns the emulator exclusively; Feed must only
// be called from the grid's single-writer task.
type Adapter struct {
	mu  sync.Mutex
	emu *vt.Emulator

	g *grid.Grid

	cols, rows int
	lastCells  [][]uv.Cell // previous frame, for diffing; lastCells[y][x]

	altScreen    bool
	cursorHidden bool

	cursorSeq uint64
	onCursor  func(CursorFrame)
	onDamage  func([]grid.Damage, uint64)
}

// New creates an Adapter driving a fresh emulator over g, whose dimensions
// must already match cols/rows.
func New(g *grid.Grid, cols, rows int, onCursor func(CursorFrame)) *Adapter {
	a := &Adapter{g: g, cols: cols, rows: rows, onCursor: onCursor}
	a.emu = vt.NewEmulator(cols, rows)
	a.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			a.g.ScrollUp(len(lines))
		},
		ScrollbackClear: func() {},
		AltScreen: func(on bool) {
			a.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			a.cursorHidden = !visible
		},
	})
	a.lastCells = make([][]uv.Cell, rows)
	for y := range a.lastCells {
		a.lastCells[y] = make([]uv.Cell, cols)
	}
	return a
}

// Feed consumes PTY output: it updates the emulator, diffs the screen
// against the previous frame to produce minimal damage, applies that damage
// to the grid, and emits a cursor frame. If a callback was registered with
// SetDamageCallback, every non-empty
// damage batch is also handed to it alongside the grid's watermark after
// the write, so a host runtime can fan it out to attached viewers without
// re-diffing.
func (a *Adapter) Feed(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, err := a.emu.Write(p)

	latest := a.g.LatestRow()
	screenTop := latest - int64(a.rows) + 1

	var batch []grid.Damage
	for y := 0; y < a.rows; y++ {
		cur := a.emu.Line(y)
		damage, wrapped := diffLine(a.lastCells[y], cur, a.cols)
		if len(damage.cells()) > 0 || wrapped {
			d := grid.Damage{
				Row:      screenTop + int64(y),
				ColStart: damage.start(),
				Cells:    damage.cells(),
				Wrapped:  wrapped,
			}
			batch = append(batch, d)
		}
		a.lastCells[y] = snapshotLine(cur, a.cols)
	}
	if len(batch) > 0 {
		a.g.ApplyDamage(batch)
		if a.onDamage != nil {
			a.onDamage(batch, a.g.Watermark())
		}
	}

	pos := a.emu.CursorPosition()
	a.g.SetCursor(grid.Cursor{
		Row:     screenTop + int64(pos.Y),
		Col:     pos.X,
		Visible: !a.cursorHidden,
	})
	if a.onCursor != nil {
		a.cursorSeq++
		a.onCursor(CursorFrame{Seq: a.cursorSeq, Row: screenTop + int64(pos.Y), Col: pos.X, Visible: !a.cursorHidden})
	}

	return n, err
}

// SetDamageCallback registers a callback invoked after every Feed call that
// produced at least one damage tuple, so a host runtime can fan damage out
// to attached viewers' synchronizers.
func (a *Adapter) SetDamageCallback(fn func([]grid.Damage, uint64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDamage = fn
}

// Resize changes both the emulator's and the grid's dimensions.
func (a *Adapter) Resize(cols, rows int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emu.Resize(cols, rows)
	a.cols, a.rows = cols, rows
	a.g.Resize(cols, rows)
	a.lastCells = make([][]uv.Cell, rows)
	for y := range a.lastCells {
		a.lastCells[y] = make([]uv.Cell, cols)
	}
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emu.Close()
}

// cellRun is a contiguous run of changed cells starting at a column.
type cellRun struct {
	startCol int
	cs       []grid.Cell
}

func (r cellRun) start() int         { return r.startCol }
func (r cellRun) cells() []grid.Cell { return r.cs }

func snapshotLine(l uv.Line, cols int) []uv.Cell {
	out := make([]uv.Cell, cols)
	for x := 0; x < cols; x++ {
		out[x] = l.At(x)
	}
	return out
}

// diffLine compares the previously observed cells for a row against the
// emulator's current line, returning the minimal damage run covering every
// changed cell (from the first change to the last) and whether the line is
// a soft-wrap continuation of the row above it.
func diffLine(prev []uv.Cell, cur uv.Line, cols int) (cellRun, bool) {
	first, last := -1, -1
	for x := 0; x < cols; x++ {
		c := cur.At(x)
		if x >= len(prev) || !sameCell(prev[x], c) {
			if first == -1 {
				first = x
			}
			last = x
		}
	}
	if first == -1 {
		return cellRun{}, cur.WrapContinuation()
	}
	cells := make([]grid.Cell, last-first+1)
	for x := first; x <= last; x++ {
		cells[x-first] = toGridCell(cur.At(x))
	}
	return cellRun{startCol: first, cs: cells}, cur.WrapContinuation()
}

func sameCell(a, b uv.Cell) bool {
	return a.Rune == b.Rune && a.Width == b.Width && a.StyleID == b.StyleID
}

func toGridCell(c uv.Cell) grid.Cell {
	return grid.Cell{Char: c.Rune, Width: uint8(c.Width), StyleID: grid.StyleID(c.StyleID)}
}
