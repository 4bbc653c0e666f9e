// Package wire implements the binary tagged-union wire protocol of the
// terminal-sync design (§4.3): Host→Viewer and Viewer→Host frame types, a
// CBOR-based codec, and the chunking/reassembly envelope used when a frame
// exceeds the transport's MTU (§4.6).
package wire

// WireCell mirrors grid.Cell for the wire: a Unicode scalar, display width,
// a style-table reference, and the authoritative sequence number.
type WireCell struct {
	Char    rune   `cbor:"c"`
	Width   uint8  `cbor:"w"`
	StyleID uint32 `cbor:"s"`
	Seq     uint64 `cbor:"q"`
}

// WireRow mirrors grid.Row.
type WireRow struct {
	Abs   int64      `cbor:"a"`
	Cells []WireCell `cbor:"cells"`
}

// WireCursor mirrors grid.Cursor.
type WireCursor struct {
	Row     int64 `cbor:"row"`
	Col     int   `cbor:"col"`
	Visible bool  `cbor:"vis"`
}

// UpdateKind discriminates the Update tagged union (§4.3).
type UpdateKind string

const (
	UpdateCell       UpdateKind = "cell"
	UpdateRowSegment UpdateKind = "row_segment"
	UpdateRow        UpdateKind = "row"
	UpdateRect       UpdateKind = "rect"
	UpdateCursor     UpdateKind = "cursor"
	UpdateTrim       UpdateKind = "trim"
	UpdateStyle      UpdateKind = "style"
)

// Update is one incremental change carried by a Delta frame. Only the
// fields relevant to Kind are populated; the rest are zero.
type Update struct {
	Kind UpdateKind `cbor:"k"`
	Seq  uint64     `cbor:"seq,omitempty"`

	// Cell / RowSegment / Row
	Row      int64      `cbor:"row,omitempty"`
	StartCol int        `cbor:"start_col,omitempty"`
	Cell     WireCell   `cbor:"cell,omitempty"`
	Cells    []WireCell `cbor:"cells,omitempty"`

	// Rect
	RowStart int64 `cbor:"row_start,omitempty"`
	RowEnd   int64 `cbor:"row_end,omitempty"`
	ColStart int   `cbor:"col_start,omitempty"`
	ColEnd   int   `cbor:"col_end,omitempty"`
	Fill     WireCell `cbor:"fill,omitempty"`

	// Cursor
	Col     int  `cbor:"col,omitempty"`
	Visible bool `cbor:"vis,omitempty"`

	// Trim
	NewBaseRow int64 `cbor:"new_base_row,omitempty"`

	// Style
	StyleID uint32 `cbor:"style_id,omitempty"`
	FG      uint32 `cbor:"fg,omitempty"`
	BG      uint32 `cbor:"bg,omitempty"`
	Attrs   uint16 `cbor:"attrs,omitempty"`
}

// Hello is sent exactly once per transport attach after authorization; it
// must be the first non-Status host frame (§4.3, §5).
type Hello struct {
	Cols         int      `cbor:"cols"`
	ViewportRows int      `cbor:"viewport_rows"`
	BaseRow      int64    `cbor:"base_row"`
	LatestRow    int64    `cbor:"latest_row"`
	HistoryCap   int      `cbor:"history_cap"`
	Features     []string `cbor:"features,omitempty"`
	GlobalSeq    uint64   `cbor:"global_seq"`
}

type Snapshot struct {
	Watermark uint64     `cbor:"watermark"`
	BaseRow   int64      `cbor:"base_row"`
	Rows      []WireRow  `cbor:"rows"`
	Cursor    WireCursor `cbor:"cursor"`
}

type SnapshotRange struct {
	Watermark uint64    `cbor:"watermark"`
	StartRow  int64     `cbor:"start_row"`
	Rows      []WireRow `cbor:"rows"`
}

type Delta struct {
	Watermark uint64   `cbor:"watermark"`
	Updates   []Update `cbor:"updates"`
}

type HistoryInfo struct {
	BaseRow     int64 `cbor:"base_row"`
	LatestRow   int64 `cbor:"latest_row"`
	HistoryRows int   `cbor:"history_rows"`
}

type InputAck struct {
	ClientSeq uint64 `cbor:"client_seq"`
	GlobalSeq uint64 `cbor:"global_seq"`
	Watermark uint64 `cbor:"watermark"`
}

type Heartbeat struct {
	Timestamp int64 `cbor:"timestamp"`
}

// Status carries pre-Hello approval_pending/approval_granted/approval_denied
// notifications, or a post-Hello informational string.
type Status struct {
	Text string `cbor:"text"`
}

// HostFrameType discriminates the Host→Viewer frame tagged union.
type HostFrameType string

const (
	FrameHello         HostFrameType = "hello"
	FrameSnapshot      HostFrameType = "snapshot"
	FrameSnapshotRange HostFrameType = "snapshot_range"
	FrameDelta         HostFrameType = "delta"
	FrameHistoryInfo   HostFrameType = "history_info"
	FrameInputAck      HostFrameType = "input_ack"
	FrameHeartbeat     HostFrameType = "heartbeat"
	FrameStatus        HostFrameType = "status"
)

// HostFrame is the Host→Viewer tagged union envelope.
type HostFrame struct {
	Type          HostFrameType  `cbor:"t"`
	Hello         *Hello         `cbor:"hello,omitempty"`
	Snapshot      *Snapshot      `cbor:"snapshot,omitempty"`
	SnapshotRange *SnapshotRange `cbor:"snapshot_range,omitempty"`
	Delta         *Delta         `cbor:"delta,omitempty"`
	HistoryInfo   *HistoryInfo   `cbor:"history_info,omitempty"`
	InputAck      *InputAck      `cbor:"input_ack,omitempty"`
	Heartbeat     *Heartbeat     `cbor:"heartbeat,omitempty"`
	Status        *Status        `cbor:"status,omitempty"`
}

type Join struct {
	ProtocolVersion   int      `cbor:"protocol_version"`
	ViewerLabel       string   `cbor:"viewer_label,omitempty"`
	RequestedFeatures []string `cbor:"requested_features,omitempty"`
	Passcode          string   `cbor:"passcode,omitempty"`
}

type Input struct {
	ClientSeq uint64 `cbor:"client_seq"`
	BaseSeq   uint64 `cbor:"base_seq"`
	Bytes     []byte `cbor:"bytes"`
}

type Resize struct {
	Cols         int `cbor:"cols"`
	ViewportRows int `cbor:"viewport_rows"`
}

type Viewport struct {
	TopRow         int64 `cbor:"top_row"`
	Rows           int   `cbor:"rows"`
	PrefetchBefore int   `cbor:"prefetch_before"`
	PrefetchAfter  int   `cbor:"prefetch_after"`
	FollowTail     bool  `cbor:"follow_tail"`
}

type Backfill struct {
	StartRow int64 `cbor:"start_row"`
	Count    int   `cbor:"count"`
}

type Ack struct {
	Watermark uint64 `cbor:"watermark"`
}

// ViewerFrameType discriminates the Viewer→Host frame tagged union.
type ViewerFrameType string

const (
	FrameJoin          ViewerFrameType = "join"
	FrameInput         ViewerFrameType = "input"
	FrameResize        ViewerFrameType = "resize"
	FrameViewport      ViewerFrameType = "viewport"
	FrameBackfill      ViewerFrameType = "backfill"
	FrameAck           ViewerFrameType = "ack"
	FrameViewerHeartbt ViewerFrameType = "heartbeat"
)

// ViewerFrame is the Viewer→Host tagged union envelope.
type ViewerFrame struct {
	Type      ViewerFrameType `cbor:"t"`
	Join      *Join           `cbor:"join,omitempty"`
	Input     *Input          `cbor:"input,omitempty"`
	Resize    *Resize         `cbor:"resize,omitempty"`
	Viewport  *Viewport       `cbor:"viewport,omitempty"`
	Backfill  *Backfill       `cbor:"backfill,omitempty"`
	Ack       *Ack            `cbor:"ack,omitempty"`
	Heartbeat *Heartbeat      `cbor:"heartbeat,omitempty"`
}
