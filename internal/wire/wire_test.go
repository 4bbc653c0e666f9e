package wire

import (
	"bytes"
	"testing"
	"time"
)

func TestHostFrameRoundTrip(t *testing.T) {
	cases := []*HostFrame{
		{Type: FrameHello, Hello: &Hello{Cols: 80, ViewportRows: 24, BaseRow: 0, LatestRow: 23, HistoryCap: 1000, GlobalSeq: 42}},
		{Type: FrameSnapshot, Snapshot: &Snapshot{Watermark: 5, BaseRow: 0, Rows: []WireRow{{Abs: 0, Cells: []WireCell{{Char: 'x', Width: 1}}}}}},
		{Type: FrameDelta, Delta: &Delta{Watermark: 6, Updates: []Update{{Kind: UpdateCell, Row: 1, StartCol: 2, Cell: WireCell{Char: 'y', Width: 1, Seq: 7}, Seq: 7}}}},
		{Type: FrameHeartbeat, Heartbeat: &Heartbeat{Timestamp: 123}},
		{Type: FrameStatus, Status: &Status{Text: "approval_pending"}},
	}
	for _, f := range cases {
		b, err := EncodeHost(f)
		if err != nil {
			t.Fatalf("encode %v: %v", f.Type, err)
		}
		got, err := DecodeHost(b)
		if err != nil {
			t.Fatalf("decode %v: %v", f.Type, err)
		}
		if got.Type != f.Type {
			t.Fatalf("type mismatch: got %v want %v", got.Type, f.Type)
		}
	}
}

func TestViewerFrameRoundTrip(t *testing.T) {
	f := &ViewerFrame{Type: FrameInput, Input: &Input{ClientSeq: 1, BaseSeq: 0, Bytes: []byte("ab")}}
	b, err := EncodeViewer(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeViewer(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got.Input.Bytes, f.Input.Bytes) {
		t.Fatalf("bytes mismatch: %v != %v", got.Input.Bytes, f.Input.Bytes)
	}
}

func TestChunkSplitAndReassemble(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5000) // 50000 bytes, forces multiple chunks
	chunks := Split("beamterm", "delta", 7, payload, 4096)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	r := NewReassembler(time.Second)
	now := time.Now()
	var out []byte
	var done bool
	// feed in reverse order to exercise out-of-order reassembly
	for i := len(chunks) - 1; i >= 0; i-- {
		var err error
		out, done, err = r.Put(now, chunks[i])
		if err != nil {
			t.Fatalf("put chunk %d: %v", i, err)
		}
	}
	if !done {
		t.Fatal("expected reassembly to complete")
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestChunkBadCRCRejected(t *testing.T) {
	chunks := Split("beamterm", "delta", 1, []byte("hello world"), 4096)
	chunks[0].Payload[0] ^= 0xFF
	r := NewReassembler(time.Second)
	_, _, err := r.Put(time.Now(), chunks[0])
	if err == nil {
		t.Fatal("expected crc error")
	}
}

func TestReassemblerSweepDropsStale(t *testing.T) {
	chunks := Split("beamterm", "delta", 2, bytes.Repeat([]byte("x"), 100), 10)
	r := NewReassembler(10 * time.Millisecond)
	now := time.Now()
	if _, _, err := r.Put(now, chunks[0]); err != nil {
		t.Fatalf("put: %v", err)
	}
	dropped := r.Sweep(now.Add(time.Second))
	if dropped != 1 {
		t.Fatalf("expected 1 dropped partial message, got %d", dropped)
	}
}

func TestCoreErrorWrapsKind(t *testing.T) {
	err := NewError(StaleInput, nil)
	if err.Kind != StaleInput {
		t.Fatalf("kind mismatch")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
