package viewer

import "time"

// Prediction is one speculative local echo: the viewer believes that
// typing ClientSeq will eventually cause the host to write Char at
// (Row, Col), and renders it immediately rather than waiting a full
// round trip (§4.7's Mosh-style predictive echo).
type Prediction struct {
	ClientSeq    uint64
	Row          int64
	Col          int
	Char         rune
	StyleID      uint32
	RegisteredAt time.Time
	AckedAt      *time.Time
}

// PredictionEngine owns the set of in-flight predictions for one viewer
// connection. None of its mutating methods touch GridCache directly —
// display.go merges predictions with the cache read-only, so the
// authoritative cache is never speculatively written.
type PredictionEngine struct {
	grace time.Duration // after this with no server feedback, a prediction is marked stale
	drop  time.Duration // after this with no server feedback, it's force-dropped

	predictions []Prediction
	col, row    int // local predicted cursor, advanced by Register
}

// DefaultGrace is the prediction confirmation window (§9 open question:
// fixed default, overridable per session via Config.PredictionGrace).
const DefaultGrace = 2 * time.Second

func NewPredictionEngine(grace time.Duration) *PredictionEngine {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &PredictionEngine{grace: grace, drop: grace * 2}
}

// SeedCursor synchronizes the engine's local predicted-cursor tracking to
// the server's authoritative cursor; call this whenever there are no
// pending predictions so a fresh one starts from the right place.
func (p *PredictionEngine) SeedCursor(row int64, col int) {
	if len(p.predictions) == 0 {
		p.row, p.col = int(row), col
	}
}

// Register predicts that clientSeq will echo ch at the current predicted
// cursor position, then advances that position (wrapping at cols).
func (p *PredictionEngine) Register(clientSeq uint64, ch rune, styleID uint32, cols int) Prediction {
	pr := Prediction{
		ClientSeq:    clientSeq,
		Row:          int64(p.row),
		Col:          p.col,
		Char:         ch,
		StyleID:      styleID,
		RegisteredAt: time.Now(),
	}
	p.predictions = append(p.predictions, pr)
	p.col++
	if cols > 0 && p.col >= cols {
		p.col = 0
		p.row++
	}
	return pr
}

// ConfirmOrDiverge is called whenever the cache observes an authoritative
// write at (row, col): if a pending prediction covers that cell, it is
// removed (confirmed) when the observed character matches; a mismatch is a
// divergence and discards every pending prediction, not just this one,
// since the viewer's locally predicted screen state can no longer be
// trusted once one prediction has proven wrong.
func (p *PredictionEngine) ConfirmOrDiverge(row int64, col int, observed rune) {
	idx := -1
	for i, pr := range p.predictions {
		if pr.Row == row && pr.Col == col {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	if p.predictions[idx].Char != observed {
		p.DiscardAll()
		return
	}
	p.predictions = append(p.predictions[:idx], p.predictions[idx+1:]...)
}

// AckClientSeq records that the host has serialized clientSeq into the
// input stream. It does not itself remove the prediction — only an
// observed matching (or mismatching) authoritative write does that — but
// it is available for UI feedback (e.g. no longer "unsent").
func (p *PredictionEngine) AckClientSeq(clientSeq uint64) {
	now := time.Now()
	for i := range p.predictions {
		if p.predictions[i].ClientSeq == clientSeq {
			p.predictions[i].AckedAt = &now
		}
	}
}

// DiscardAll drops every pending prediction, used on divergence
// (ConfirmOrDiverge) and on Hello, where the predicted context no longer
// applies.
func (p *PredictionEngine) DiscardAll() {
	p.predictions = nil
}

// Sweep drops predictions older than the force-drop threshold (a
// connection gone silent should not leave stale glyphs on screen forever).
// It returns nothing; At reports whether a kept prediction is past the grace
// period.
func (p *PredictionEngine) Sweep(now time.Time) {
	kept := p.predictions[:0]
	for _, pr := range p.predictions {
		if now.Sub(pr.RegisteredAt) < p.drop {
			kept = append(kept, pr)
		}
	}
	p.predictions = kept
}

// At returns the pending prediction (if any) covering (row, col) and
// whether it's past the confirmation grace period.
func (p *PredictionEngine) At(row int64, col int) (pr Prediction, stale bool, ok bool) {
	for _, pr := range p.predictions {
		if pr.Row == row && pr.Col == col {
			return pr, time.Since(pr.RegisteredAt) >= p.grace, true
		}
	}
	return Prediction{}, false, false
}

// Cursor returns the local predicted cursor position, used by
// display.go when predictions are pending.
func (p *PredictionEngine) Cursor() (row int64, col int) { return int64(p.row), p.col }

// Pending reports whether any prediction is outstanding.
func (p *PredictionEngine) Pending() bool { return len(p.predictions) > 0 }
