package viewer

import (
	"bytes"
	"fmt"
	"io"
)

// Attribute bits for Style.Attrs, this project's own encoding as carried by
// UpdateStyle updates (internal/term does not emit any); not tied to any
// particular terminal library's enum.
const (
	AttrBold uint16 = 1 << iota
	AttrFaint
	AttrItalic
	AttrUnderline
	AttrReverse
)

// Renderer paints a GridCache + PredictionEngine pair to a real terminal via
// plain ANSI escapes, diffing against the previously drawn frame so unchanged
// cells are not repainted (the cursor escapes are written on every Draw).
// It owns no network or grid-mutation state —
// display.go's DisplayRow/DisplayCursor already merge authoritative and
// predicted cells; Renderer only turns that merged view into bytes.
type Renderer struct {
	out  io.Writer
	prev [][]DisplayCell // last frame drawn, by viewport row
	rows int
	cols int
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Draw paints viewportRows rows starting at topRow (the live screen, or
// wherever the viewer has scrolled to), plus the display cursor. It
// redraws only cells that changed since the last Draw call.
func (r *Renderer) Draw(cache *GridCache, pred *PredictionEngine, topRow int64, viewportRows int) error {
	cols := cache.Cols()
	if cols == 0 || viewportRows == 0 {
		return nil
	}
	if r.rows != viewportRows || r.cols != cols {
		r.prev = make([][]DisplayCell, viewportRows)
		r.rows, r.cols = viewportRows, cols
	}

	var buf bytes.Buffer
	for y := 0; y < viewportRows; y++ {
		abs := topRow + int64(y)
		row := DisplayRow(cache, pred, abs)
		if len(row) > cols {
			row = row[:cols]
		}
		if r.prev[y] != nil && sameRow(r.prev[y], row) {
			continue
		}
		r.prev[y] = row
		buf.WriteString(cup(y+1, 1))
		buf.WriteString("\x1b[K")
		writeRow(&buf, cache, row)
	}

	crow, ccol, cvis := DisplayCursor(cache, pred)
	cy := int(crow-topRow) + 1
	if cy >= 1 && cy <= viewportRows {
		buf.WriteString(cup(cy, ccol+1))
	}
	if cvis {
		buf.WriteString("\x1b[?25h")
	} else {
		buf.WriteString("\x1b[?25l")
	}
	if buf.Len() == 0 {
		return nil
	}
	_, err := r.out.Write(buf.Bytes())
	return err
}

// Reset forces the next Draw to repaint every row, e.g. after a resize or
// a reconnect that may have left the real terminal in an unknown state.
func (r *Renderer) Reset() {
	for i := range r.prev {
		r.prev[i] = nil
	}
}

func sameRow(a, b []DisplayCell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cup(row, col int) string {
	return fmt.Sprintf("\x1b[%d;%dH", row, col)
}

func writeRow(buf *bytes.Buffer, cache *GridCache, row []DisplayCell) {
	var curStyle uint32
	curPredicted := false
	started := false
	for _, dc := range row {
		if !started || dc.StyleID != curStyle || dc.Predicted != curPredicted {
			buf.WriteString(sgr(cache.Style(dc.StyleID), dc.Predicted, dc.Stale))
			curStyle = dc.StyleID
			curPredicted = dc.Predicted
			started = true
		}
		ch := dc.Char
		if ch == 0 {
			ch = ' '
		}
		buf.WriteRune(ch)
	}
	buf.WriteString("\x1b[0m")
}

// sgr renders a Style (plus the prediction-marker overlay §4.7 rule 1, which
// always shows as an underline regardless of the underlying style) to an SGR
// escape sequence.
func sgr(s Style, predicted, stale bool) string {
	var codes []string
	if s.Attrs&AttrBold != 0 {
		codes = append(codes, "1")
	}
	if s.Attrs&AttrFaint != 0 {
		codes = append(codes, "2")
	}
	if s.Attrs&AttrItalic != 0 {
		codes = append(codes, "3")
	}
	if s.Attrs&AttrUnderline != 0 || predicted {
		codes = append(codes, "4")
	}
	if s.Attrs&AttrReverse != 0 {
		codes = append(codes, "7")
	}
	if s.FG != 0 {
		codes = append(codes, fmt.Sprintf("38;2;%d;%d;%d", (s.FG>>16)&0xff, (s.FG>>8)&0xff, s.FG&0xff))
	}
	if s.BG != 0 {
		codes = append(codes, fmt.Sprintf("48;2;%d;%d;%d", (s.BG>>16)&0xff, (s.BG>>8)&0xff, s.BG&0xff))
	}
	if predicted && stale {
		codes = append(codes, "2") // dim a prediction that's past its grace window
	}
	if len(codes) == 0 {
		return "\x1b[0m"
	}
	out := "\x1b[0"
	for _, c := range codes {
		out += ";" + c
	}
	return out + "m"
}
