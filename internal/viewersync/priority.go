package viewersync

import (
	"sync"

	"github.com/ehrlich-b/beamterm/internal/transport"
	"github.com/ehrlich-b/beamterm/internal/wire"
)

// Priority implements the five scheduling tiers of §4.4, lower value first.
type Priority int

const (
	P0Handshake Priority = iota
	P1ViewportDelta
	P2Backfill
	P3OutOfViewportDelta
	P4HeartbeatAck
	numPriorities
)

type queued struct {
	purpose transport.Purpose
	frame   *wire.HostFrame
}

// priorityQueue is a small fixed-tier FIFO priority queue: Pop always
// drains the lowest-numbered non-empty tier first.
type priorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tiers  [numPriorities][]queued
	closed bool
}

func newPriorityQueue() *priorityQueue {
	q := &priorityQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *priorityQueue) push(p Priority, purpose transport.Purpose, frame *wire.HostFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tiers[p] = append(q.tiers[p], queued{purpose: purpose, frame: frame})
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is closed.
func (q *priorityQueue) pop() (queued, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for p := Priority(0); p < numPriorities; p++ {
			if len(q.tiers[p]) > 0 {
				item := q.tiers[p][0]
				q.tiers[p] = q.tiers[p][1:]
				return item, true
			}
		}
		if q.closed {
			return queued{}, false
		}
		q.cond.Wait()
	}
}

// dropTier discards all pending items in a tier, used when viewport changes
// invalidate queued P2/P3 work.
func (q *priorityQueue) dropTier(p Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tiers[p] = nil
}

// mergeDelta implements §4.4's "drop-old-same-position coalescing": when the
// unreliable channel is saturated, a newer update at the same (row,
// start_col) supersedes an older one still waiting in the queue instead of
// both being sent, bounding how far the queue grows under backpressure. If
// the tier's tail is not an unsent Delta frame, it falls back to pushing a
// new one.
func (q *priorityQueue) mergeDelta(p Priority, purpose transport.Purpose, watermark uint64, updates []wire.Update) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if n := len(q.tiers[p]); n > 0 {
		last := q.tiers[p][n-1]
		if last.purpose == purpose && last.frame.Type == wire.FrameDelta && last.frame.Delta != nil {
			for _, u := range updates {
				replaced := false
				for i, existing := range last.frame.Delta.Updates {
					if existing.Row == u.Row && existing.StartCol == u.StartCol {
						last.frame.Delta.Updates[i] = u
						replaced = true
						break
					}
				}
				if !replaced {
					last.frame.Delta.Updates = append(last.frame.Delta.Updates, u)
				}
			}
			if watermark > last.frame.Delta.Watermark {
				last.frame.Delta.Watermark = watermark
			}
			return
		}
	}
	q.tiers[p] = append(q.tiers[p], queued{purpose: purpose, frame: &wire.HostFrame{
		Type: wire.FrameDelta, Delta: &wire.Delta{Watermark: watermark, Updates: updates},
	}})
	q.cond.Signal()
}

func (q *priorityQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *priorityQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, t := range q.tiers {
		n += len(t)
	}
	return n
}
