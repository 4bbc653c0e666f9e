// Package grid owns the authoritative terminal cell grid and its bounded
// scrollback history. It has no concept of transport, viewers, or the wire
// protocol; it is driven exclusively by the emulator adapter in internal/term
// and read by internal/viewersync via snapshot hand-off.
package grid

// StyleID indexes into a per-connection style table populated lazily by
// Style update frames. StyleID 0 is always the default style.
type StyleID uint32

// Cell is a single terminal cell: a Unicode scalar (or the zero rune as a
// wide-glyph continuation placeholder), a style reference, and the global
// sequence number at which it was last written authoritatively.
type Cell struct {
	Char    rune
	Width   uint8 // 0, 1, or 2
	StyleID StyleID
	Seq     uint64
}

// Style describes the fg/bg/attribute set a StyleID resolves to.
type Style struct {
	FG    uint32
	BG    uint32
	Attrs uint16
}

// blankCell returns the default empty cell stamped with seq.
func blankCell(seq uint64) Cell {
	return Cell{Char: ' ', Width: 1, StyleID: 0, Seq: seq}
}
