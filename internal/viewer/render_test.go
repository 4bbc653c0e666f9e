package viewer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ehrlich-b/beamterm/internal/wire"
)

func TestRendererSkipsUnchangedRows(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	c.ApplySnapshot(wire.Snapshot{Rows: []wire.WireRow{wireRow(0, "hello")}})
	p := NewPredictionEngine(0)

	var buf bytes.Buffer
	r := NewRenderer(&buf)
	if err := r.Draw(c, p, 0, 1); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("first draw should paint the row, got %q", buf.String())
	}

	buf.Reset()
	if err := r.Draw(c, p, 0, 1); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	// The cursor-position/visibility escape is re-emitted every Draw, but an
	// unchanged row must not be repainted.
	if strings.Contains(buf.String(), "hello") {
		t.Fatalf("unchanged row should not be repainted, got %q", buf.String())
	}
}

func TestRendererResetForcesRepaint(t *testing.T) {
	c := NewGridCache()
	c.ApplyHello(wire.Hello{Cols: 5, ViewportRows: 1})
	c.ApplySnapshot(wire.Snapshot{Rows: []wire.WireRow{wireRow(0, "hello")}})
	p := NewPredictionEngine(0)

	var buf bytes.Buffer
	r := NewRenderer(&buf)
	_ = r.Draw(c, p, 0, 1)
	buf.Reset()
	r.Reset()
	if err := r.Draw(c, p, 0, 1); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("Reset should force a full repaint on the next Draw, got %q", buf.String())
	}
}
