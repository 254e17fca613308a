package queue

import (
	"container/heap"
	"time"
)

// StaleWindow bounds how long a heap gap may block delivery before the
// blocking entries are skipped (spec §9 open question (c): not
// source-mandated, a local constant). Passed to DrainReady.
const StaleWindow = 30 * time.Second

type downstreamItem struct {
	seq      uint64
	val      interface{}
	pushedAt time.Time
}

type downstreamHeap []downstreamItem

func (h downstreamHeap) Len() int            { return len(h) }
func (h downstreamHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h downstreamHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *downstreamHeap) Push(x interface{}) { *h = append(*h, x.(downstreamItem)) }
func (h *downstreamHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Downstream is a seq-ordered min-heap of arbitrary payloads, used to
// reassemble a monotonic per-session sequence out of out-of-order
// deliveries (spec §4.1).
type Downstream struct {
	h            downstreamHeap
	nextExpected uint64
}

// NewDownstream returns an empty downstream queue. nextExpected is the
// first seq value that will be released.
func NewDownstream(nextExpected uint64) *Downstream {
	d := &Downstream{nextExpected: nextExpected}
	heap.Init(&d.h)
	return d
}

// Len returns the number of buffered (not yet released) packets.
func (d *Downstream) Len() int { return d.h.Len() }

// NextExpected returns the next seq value that will be released.
func (d *Downstream) NextExpected() uint64 { return d.nextExpected }

// Push inserts val at seq, stamping it with now for stale-gap tracking. It
// reports false and drops the value if seq is older than NextExpected
// (stale/already-released).
func (d *Downstream) Push(seq uint64, val interface{}, now time.Time) bool {
	if seq < d.nextExpected {
		return false
	}
	heap.Push(&d.h, downstreamItem{seq: seq, val: val, pushedAt: now})
	return true
}

// DrainReady pops and returns, in order, every buffered item whose seq
// equals the current NextExpected, advancing NextExpected by one for each.
// Before that, if the head of the heap is blocked behind a gap that has
// sat longer than staleWindow (measured against now), NextExpected is
// advanced past the gap so the stuck entries can be released too (spec
// §4.3.5, §9 open question (c)); staleWindow <= 0 disables this skip.
func (d *Downstream) DrainReady(now time.Time, staleWindow time.Duration) []interface{} {
	if staleWindow > 0 && d.h.Len() > 0 && d.h[0].seq != d.nextExpected {
		if now.Sub(d.h[0].pushedAt) > staleWindow {
			d.nextExpected = d.h[0].seq
		}
	}

	var out []interface{}
	for d.h.Len() > 0 && d.h[0].seq == d.nextExpected {
		item := heap.Pop(&d.h).(downstreamItem)
		out = append(out, item.val)
		d.nextExpected++
	}
	return out
}
