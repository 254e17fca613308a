// Package queue implements the two bounded packet queues ExitSession
// relies on: a tiered upstream FIFO (§4.1) and a seq-ordered downstream
// min-heap (§4.1). Grounded on the teacher's tiered-dispatch idiom in
// rootd/router.go (class-based handler selection) and on the
// DownstreamTrafficQueue_t priority_queue in the original's
// llarp/exit/session.hpp.
package queue

import (
	"errors"

	"github.com/veilnet/veild/pkg/routing"
)

// ErrQueueFull is returned by Upstream.Push when the queue is already at
// MaxTotal.
var ErrQueueFull = errors.New("queue: upstream full")

// MaxTotal is the maximum number of messages held across all priority
// classes at once (spec §3).
const MaxTotal = 256

// Upstream is a tiered, bounded FIFO keyed by priority class. Lower
// numeric class values are higher priority (spec §9 open question (b)).
type Upstream struct {
	classes map[uint8][]routing.TransferMessage
	order   []uint8 // sorted ascending class set, maintained incrementally
	total   int
}

// NewUpstream returns an empty tiered upstream queue.
func NewUpstream() *Upstream {
	return &Upstream{classes: make(map[uint8][]routing.TransferMessage)}
}

// Len returns the total number of queued messages across all classes.
func (u *Upstream) Len() int { return u.total }

// Push appends msg to its priority class's FIFO. When the queue is
// already holding MaxTotal messages, a strictly higher-priority message
// displaces (drops) the oldest entry of the current lowest-priority
// non-empty class; otherwise it returns ErrQueueFull and the caller is
// expected to drop the packet at the tunnel side (spec §4.1, §8 scenario 2).
func (u *Upstream) Push(msg routing.TransferMessage) error {
	if u.total >= MaxTotal {
		lowest, ok := u.lowestPriorityClass()
		if !ok || msg.Priority >= lowest {
			return ErrQueueFull
		}
		u.classes[lowest] = u.classes[lowest][1:]
		u.total--
	}
	class := msg.Priority
	if _, ok := u.classes[class]; !ok {
		u.insertClass(class)
	}
	u.classes[class] = append(u.classes[class], msg)
	u.total++
	return nil
}

func (u *Upstream) lowestPriorityClass() (uint8, bool) {
	for i := len(u.order) - 1; i >= 0; i-- {
		if len(u.classes[u.order[i]]) > 0 {
			return u.order[i], true
		}
	}
	return 0, false
}

func (u *Upstream) insertClass(class uint8) {
	i := 0
	for i < len(u.order) && u.order[i] < class {
		i++
	}
	u.order = append(u.order, 0)
	copy(u.order[i+1:], u.order[i:])
	u.order[i] = class
}

// DrainOne removes and returns the message from the highest-priority
// non-empty class (lowest numeric class wins; FIFO within a class). It
// reports false if the queue is empty.
func (u *Upstream) DrainOne() (routing.TransferMessage, bool) {
	for _, class := range u.order {
		q := u.classes[class]
		if len(q) == 0 {
			continue
		}
		msg := q[0]
		u.classes[class] = q[1:]
		u.total--
		return msg, true
	}
	return routing.TransferMessage{}, false
}

// Requeue puts msg back at the head of its class, used when
// send_routing_message fails and the message must be retried next flush
// (spec §4.3.4). It does not count against MaxTotal again since the
// caller must have just drained it.
func (u *Upstream) Requeue(msg routing.TransferMessage) {
	class := msg.Priority
	if _, ok := u.classes[class]; !ok {
		u.insertClass(class)
	}
	u.classes[class] = append([]routing.TransferMessage{msg}, u.classes[class]...)
	u.total++
}
