// Package viewersync implements the per-viewer synchronizer of §4.4: for one
// attached viewer, it decides what to send, when, and on which logical
// channel, honoring viewport priority, history backfill requests, and flow
// control.
package viewersync

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/beamterm/internal/grid"
	"github.com/ehrlich-b/beamterm/internal/logger"
	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// Config tunes backpressure and prefetch behavior; all fields have sane
// zero-value defaults applied by New.
type Config struct {
	PrefetchBefore    int
	PrefetchAfter     int
	TailProximity     int64
	HeartbeatInterval time.Duration
	BackfillRate      rate.Limit // messages/sec for P2 traffic
	HighWatermark     int        // queue depth at or above which P2 pauses and P1/P3 deltas coalesce (P3 is not paused)
}

func (c *Config) setDefaults() {
	if c.PrefetchBefore == 0 {
		c.PrefetchBefore = 200
	}
	if c.PrefetchAfter == 0 {
		c.PrefetchAfter = 200
	}
	if c.TailProximity == 0 {
		c.TailProximity = 5
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = time.Second
	}
	if c.BackfillRate == 0 {
		c.BackfillRate = 20
	}
	if c.HighWatermark == 0 {
		c.HighWatermark = 512
	}
}

// ViewportState mirrors the viewer-reported Viewport frame.
type ViewportState struct {
	TopRow     int64
	Rows       int
	FollowTail bool
}

// Synchronizer is the per-viewer scheduler. One is created per attached
// viewer at transport attach and destroyed at detach.
type Synchronizer struct {
	g    *grid.Grid
	peer transport.Peer
	cfg  Config

	q        *priorityQueue
	covered  coveredSet
	viewport ViewportState

	backfillLimiter *rate.Limiter

	watermarkSent uint64

	nextResyncAt time.Time // backpressure: don't re-snapshot more often than this
}

func New(g *grid.Grid, peer transport.Peer, cfg Config) *Synchronizer {
	cfg.setDefaults()
	return &Synchronizer{
		g:               g,
		peer:            peer,
		cfg:             cfg,
		q:               newPriorityQueue(),
		backfillLimiter: rate.NewLimiter(cfg.BackfillRate, int(cfg.BackfillRate)+1),
	}
}

// Attach enqueues the P0 handshake sequence: Hello followed by an initial
// snapshot covering the viewport ± prefetch margin. Must be called only
// after the viewer has been authorized (see internal/hostrt).
func (s *Synchronizer) Attach(features []string) {
	hello := &wire.HostFrame{Type: wire.FrameHello, Hello: &wire.Hello{
		Cols:         s.g.Cols(),
		ViewportRows: s.g.ViewportRows(),
		BaseRow:      s.g.BaseRow(),
		LatestRow:    s.g.LatestRow(),
		HistoryCap:   s.g.HistoryCap(),
		Features:     features,
		GlobalSeq:    s.g.Watermark(),
	}}
	s.q.push(P0Handshake, transport.Control, hello)

	latest := s.g.LatestRow()
	start := latest - int64(s.g.ViewportRows()) + 1
	s.viewport = ViewportState{TopRow: start, Rows: s.g.ViewportRows(), FollowTail: true}
	s.sendSnapshot(start-int64(s.cfg.PrefetchBefore), latest, P0Handshake)
}

func (s *Synchronizer) sendSnapshot(start, end int64, p Priority) {
	snap := s.g.SnapshotRange(start, end)
	rows := make([]wire.WireRow, len(snap.Rows))
	for i, r := range snap.Rows {
		rows[i] = toWireRow(r)
		s.covered.add(r.Abs, r.Abs)
	}
	s.watermarkSent = snap.Watermark
	frame := &wire.HostFrame{Type: wire.FrameSnapshot, Snapshot: &wire.Snapshot{
		Watermark: snap.Watermark,
		BaseRow:   snap.StartRow,
		Rows:      rows,
		Cursor:    wire.WireCursor{Row: s.g.Cursor().Row, Col: s.g.Cursor().Col, Visible: s.g.Cursor().Visible},
	}}
	s.q.push(p, transport.Control, frame)
}

// OnDamage is called by the grid owner after every authoritative mutation.
// Rows outside covered_ranges are dropped (the viewer will get them from a
// future snapshot if it scrolls there); rows inside covered_ranges generate
// a P1 (in viewport) or P3 (previously covered, now out of view) update.
//
// Backpressure (§4.4): once the outbound queue crosses HighWatermark —
// standing in for "the channel's buffered bytes exceed a high watermark",
// since the transport abstraction exposes no lower-level byte counter for
// the synchronizer to read — newer deltas for the same cell supersede
// older still-queued ones (mergeDelta) instead of growing the backlog
// further, and a fresh viewport snapshot is scheduled (rate-limited) to
// bound how far the viewer's cache can drift from authoritative state.
func (s *Synchronizer) OnDamage(damage []grid.Damage, watermark uint64) {
	var updates []wire.Update
	var bulkUpdates []wire.Update
	for _, d := range damage {
		if !s.covered.covers(d.Row) {
			continue
		}
		u := coalesceDamage(d, s.g.Cols(), watermark)
		if s.inViewport(d.Row) {
			updates = append(updates, u)
		} else {
			bulkUpdates = append(bulkUpdates, u)
		}
	}
	congested := s.congested()
	if len(updates) > 0 {
		if congested {
			s.q.mergeDelta(P1ViewportDelta, transport.Bulk, watermark, updates)
		} else {
			s.q.push(P1ViewportDelta, transport.Bulk, &wire.HostFrame{Type: wire.FrameDelta, Delta: &wire.Delta{Watermark: watermark, Updates: updates}})
		}
	}
	if len(bulkUpdates) > 0 {
		if congested {
			s.q.mergeDelta(P3OutOfViewportDelta, transport.Bulk, watermark, bulkUpdates)
		} else {
			s.q.push(P3OutOfViewportDelta, transport.Bulk, &wire.HostFrame{Type: wire.FrameDelta, Delta: &wire.Delta{Watermark: watermark, Updates: bulkUpdates}})
		}
	}
	if congested {
		s.scheduleResync()
	}
}

// congested reports whether the outbound queue has backed up past
// HighWatermark, the trigger for every §4.4 backpressure behavior.
func (s *Synchronizer) congested() bool {
	return s.q.depth() >= s.cfg.HighWatermark
}

// resyncCooldown bounds how often a congestion-triggered resnapshot may
// fire, so a sustained backlog doesn't itself flood the queue with
// snapshots.
const resyncCooldown = 500 * time.Millisecond

// scheduleResync enqueues a fresh viewport snapshot no more than once per
// resyncCooldown, so the viewer's cache reconverges promptly once the
// congestion clears instead of drifting on dropped/superseded deltas.
func (s *Synchronizer) scheduleResync() {
	now := time.Now()
	if now.Before(s.nextResyncAt) {
		return
	}
	s.nextResyncAt = now.Add(resyncCooldown)
	start := s.viewport.TopRow - int64(s.cfg.PrefetchBefore)
	end := s.viewport.TopRow + int64(s.viewport.Rows) + int64(s.cfg.PrefetchAfter)
	s.sendSnapshot(start, end, P1ViewportDelta)
}

func (s *Synchronizer) inViewport(row int64) bool {
	lo := s.viewport.TopRow - int64(s.cfg.PrefetchBefore)
	hi := s.viewport.TopRow + int64(s.viewport.Rows) + int64(s.cfg.PrefetchAfter)
	return row >= lo && row <= hi
}

// OnCursor enqueues a cursor update on the same channel deltas use.
func (s *Synchronizer) OnCursor(row int64, col int, visible bool, seq uint64) {
	s.q.push(P1ViewportDelta, transport.Bulk, &wire.HostFrame{Type: wire.FrameDelta, Delta: &wire.Delta{
		Watermark: seq,
		Updates:   []wire.Update{{Kind: wire.UpdateCursor, Row: row, Col: col, Visible: visible, Seq: seq}},
	}})
}

// OnTrim fans out Trim + HistoryInfo on a history trim event (§4.5 point 5).
func (s *Synchronizer) OnTrim(newBaseRow int64) {
	s.covered.trimBelow(newBaseRow)
	s.q.push(P0Handshake, transport.Control, &wire.HostFrame{Type: wire.FrameDelta, Delta: &wire.Delta{
		Updates: []wire.Update{{Kind: wire.UpdateTrim, NewBaseRow: newBaseRow}},
	}})
	s.q.push(P0Handshake, transport.Control, &wire.HostFrame{Type: wire.FrameHistoryInfo, HistoryInfo: &wire.HistoryInfo{
		BaseRow: newBaseRow, LatestRow: s.g.LatestRow(), HistoryRows: s.g.HistoryRows(),
	}})
}

// OnViewport updates the reported viewport, drops now-irrelevant P2/P3
// work, and promotes a snapshot covering newly-visible rows.
func (s *Synchronizer) OnViewport(v wire.Viewport) {
	prevTop, prevRows := s.viewport.TopRow, s.viewport.Rows
	s.viewport = ViewportState{TopRow: v.TopRow, Rows: v.Rows, FollowTail: v.FollowTail}
	if v.TopRow == prevTop && v.Rows == prevRows {
		return
	}
	s.q.dropTier(P2Backfill)
	s.q.dropTier(P3OutOfViewportDelta)

	newStart := v.TopRow - int64(v.PrefetchBefore)
	newEnd := v.TopRow + int64(v.Rows) + int64(v.PrefetchAfter)
	for abs := newStart; abs <= newEnd; abs++ {
		if !s.covered.covers(abs) {
			s.sendSnapshot(newStart, newEnd, P1ViewportDelta)
			break
		}
	}
}

// OnBackfill enqueues an explicit history request (§4.4 P2, §8 scenario D).
// Under backpressure, P2 is paused entirely: viewport traffic (P1/P3) and
// the handshake tier take priority over honoring a scrollback request while
// the queue is already backed up past HighWatermark.
func (s *Synchronizer) OnBackfill(b wire.Backfill) {
	if s.congested() {
		return
	}
	if !s.backfillLimiter.Allow() {
		return
	}
	start := b.StartRow
	end := b.StartRow + int64(b.Count) - 1
	base := s.g.BaseRow()
	if end < base {
		s.q.push(P2Backfill, transport.Control, &wire.HostFrame{Type: wire.FrameHistoryInfo, HistoryInfo: &wire.HistoryInfo{
			BaseRow: base, LatestRow: s.g.LatestRow(), HistoryRows: s.g.HistoryRows(),
		}})
		return
	}
	snap := s.g.SnapshotRange(start, end)
	rows := make([]wire.WireRow, len(snap.Rows))
	for i, r := range snap.Rows {
		rows[i] = toWireRow(r)
		s.covered.add(r.Abs, r.Abs)
	}
	s.q.push(P2Backfill, transport.Control, &wire.HostFrame{Type: wire.FrameSnapshotRange, SnapshotRange: &wire.SnapshotRange{
		Watermark: snap.Watermark, StartRow: snap.StartRow, Rows: rows,
	}})
}

func (s *Synchronizer) OnInputAck(ack wire.InputAck) {
	s.q.push(P0Handshake, transport.Control, &wire.HostFrame{Type: wire.FrameInputAck, InputAck: &ack})
}

func (s *Synchronizer) OnStatus(text string) {
	s.q.push(P0Handshake, transport.Control, &wire.HostFrame{Type: wire.FrameStatus, Status: &wire.Status{Text: text}})
}

// Run drains the priority queue, sending each frame on its routed channel,
// and emits heartbeats at the configured cadence, until ctx is cancelled.
// If the Bulk channel is unavailable on this peer, deltas and heartbeats
// fall back to Control, per §4.6's single-channel fallback rule.
func (s *Synchronizer) Run(ctx context.Context) error {
	control, err := s.peer.Channel(transport.Control)
	if err != nil {
		return err
	}
	bulk, err := s.peer.Channel(transport.Bulk)
	hasBulk := err == nil

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.q.close()
		close(done)
	}()

	// congestedHeartbeatDivisor slows the heartbeat cadence under backpressure
	// (§4.4: "reduce heartbeat rate"), so P4 traffic doesn't compete with the
	// backlog of P1/P3 work for channel time while the queue drains.
	const congestedHeartbeatDivisor = 4
	go func() {
		ticks := 0
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-heartbeat.C:
				ticks++
				if s.congested() && ticks%congestedHeartbeatDivisor != 0 {
					continue
				}
				s.q.push(P4HeartbeatAck, transport.Bulk, &wire.HostFrame{Type: wire.FrameHeartbeat, Heartbeat: &wire.Heartbeat{Timestamp: t.Unix()}})
			}
		}
	}()

	for {
		item, ok := s.q.pop()
		if !ok {
			return ctx.Err()
		}
		ch := control
		if item.purpose == transport.Bulk && hasBulk {
			ch = bulk
		}
		b, err := wire.EncodeHost(item.frame)
		if err != nil {
			logger.Warn("viewersync: encode failed", "err", err)
			continue
		}
		if err := ch.Send(ctx, b); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			logger.Warn("viewersync: send failed", "err", err, "purpose", item.purpose)
		}
	}
}

// QueueDepth reports pending outbound work, used by cmd/beamterm's doctor
// diagnostics; the backpressure checks read the same depth via congested.
func (s *Synchronizer) QueueDepth() int { return s.q.depth() }
