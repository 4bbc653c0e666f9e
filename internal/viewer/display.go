package viewer

// DisplayCell is what the renderer actually draws at one position: either
// the authoritative cached cell, or a predicted overlay.
type DisplayCell struct {
	Cell
	Predicted bool
	Stale     bool // predicted, but past the confirmation grace period
}

// DisplayCursor is computed fresh on every render from (server cursor,
// pending predictions) — it is never itself stored or mutated, satisfying
// §4.7's "never mutate the cursor directly" rule. While predictions are
// pending, the viewer shows its own predicted insertion point instead of
// the server's last-known cursor, since the server hasn't caught up to the
// keystrokes yet; once predictions drain, control reverts to the server's
// authoritative position automatically, with no explicit mode switch.
func DisplayCursor(cache *GridCache, pred *PredictionEngine) (row int64, col int, visible bool) {
	if pred.Pending() {
		r, c := pred.Cursor()
		return r, c, true
	}
	sc := cache.ServerCursor()
	return sc.Row, sc.Col, sc.Visible
}

// DisplayRow merges a cached row with any predictions covering it into the
// sequence of cells the renderer should draw, without mutating the cache.
func DisplayRow(cache *GridCache, pred *PredictionEngine, abs int64) []DisplayCell {
	r := cache.Row(abs)
	cols := cache.Cols()
	out := make([]DisplayCell, cols)
	if r != nil {
		for i := 0; i < cols && i < len(r.Cells); i++ {
			out[i] = DisplayCell{Cell: r.Cells[i]}
		}
	}
	for col := 0; col < cols; col++ {
		if pr, stale, ok := pred.At(abs, col); ok {
			out[col] = DisplayCell{
				Cell:      Cell{Char: pr.Char, Width: 1, StyleID: pr.StyleID},
				Predicted: true,
				Stale:     stale,
			}
		}
	}
	return out
}
