package buffer

import (
	"container/heap"
	"fmt"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTimeout is the staleness window applied when the caller has no
// opinion: messages older than this are purged instead of sent.
const DefaultTimeout = 10 * time.Second

// Option configures a Queue.
type Option func(*Queue)

// WithClock substitutes the queue's time source, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithProtected replaces the set of commands the purge pass never removes.
// The default protects join only.
func WithProtected(commands ...Command) Option {
	return func(q *Queue) {
		q.protected = make(map[Command]struct{}, len(commands))
		for _, c := range commands {
			q.protected[c] = struct{}{}
		}
	}
}

// WithPurgeHook registers a callback observing every message the purge pass
// removes, called before the replacement notices are queued.
func WithPurgeHook(hook func(m *Message, at time.Time)) Option {
	return func(q *Queue) { q.purgeHook = hook }
}

// Queue holds pending outbound messages ordered by (timestamp, insertion
// sequence). It is not safe for concurrent use; flood.Loop serializes all
// access to it.
type Queue struct {
	timeout   time.Duration
	clock     clock.Clock
	protected map[Command]struct{}
	purgeHook func(*Message, time.Time)
	items     messageHeap
	seq       uint64
}

// NewQueue returns an empty queue that purges messages older than timeout.
// A negative timeout disables purging entirely.
func NewQueue(timeout time.Duration, opts ...Option) *Queue {
	q := &Queue{
		timeout:   timeout,
		clock:     clock.New(),
		protected: map[Command]struct{}{CmdJoin: {}},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push inserts a message. Earlier timestamps dispatch first; insertion order
// breaks ties.
func (q *Queue) Push(m *Message) {
	q.seq++
	heap.Push(&q.items, &entry{msg: m, seq: q.seq})
}

// Peek returns the earliest-ordered message without removing it.
func (q *Queue) Peek() (*Message, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0].msg, true
}

// Pop removes and returns the earliest-ordered message. The purge pass runs
// first, so the result can differ from an earlier Peek if the head went stale
// in between.
func (q *Queue) Pop() (*Message, bool) {
	q.Purge()
	return q.Take()
}

// Take removes and returns the earliest-ordered message without purging.
// Callers that already ran the purge as part of a larger pass use it to
// remove exactly the message they peeked.
func (q *Queue) Take() (*Message, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	e := heap.Pop(&q.items).(*entry)
	return e.msg, true
}

// Len reports the number of queued messages.
func (q *Queue) Len() int { return len(q.items) }

// HasPending reports whether any queued message carries command. Callers use
// it to avoid queueing duplicate in-flight control messages.
func (q *Queue) HasPending(command Command) bool {
	for _, e := range q.items {
		if e.msg.Command() == command {
			return true
		}
	}
	return false
}

// Dump returns the queued messages in dispatch order without draining the
// queue.
func (q *Queue) Dump() []*Message {
	tmp := make(messageHeap, len(q.items))
	copy(tmp, q.items)
	out := make([]*Message, 0, len(tmp))
	for tmp.Len() > 0 {
		out = append(out, heap.Pop(&tmp).(*entry).msg)
	}
	return out
}

// Purge removes stale messages from the head of the queue and replaces the
// suppressed user lines with one aggregated notice per target. A protected
// command stops the pass outright, whatever its age. The synthetic notices
// are queued with fresh timestamps, so an immediate second pass finds
// nothing more to remove.
func (q *Queue) Purge() {
	q.PurgeAt(q.clock.Now())
}

// PurgeAt is Purge against an explicit observation time. The dispatch loop
// threads one clock reading through a whole tick, so a head that survived
// the tick's purge cannot be claimed by a later reading taken after a slow
// dispatch write.
func (q *Queue) PurgeAt(now time.Time) {
	if q.timeout < 0 {
		return
	}
	staleBefore := now.Add(-q.timeout)

	skipped := make(map[string]int)
	for len(q.items) > 0 {
		head := q.items[0].msg
		if head.Timestamp().After(staleBefore) {
			break
		}
		if _, ok := q.protected[head.Command()]; ok {
			break
		}
		heap.Pop(&q.items)
		switch head.Command() {
		case CmdPrivmsg, CmdNotice:
			// A message with no target has nowhere to address a notice.
			if head.Target() != "" && !head.IsSystemMessage() {
				skipped[head.Target()]++
			}
		}
		if q.purgeHook != nil {
			q.purgeHook(head, now)
		}
	}
	if len(skipped) == 0 {
		return
	}

	targets := make([]string, 0, len(skipped))
	for target := range skipped {
		targets = append(targets, target)
	}
	slices.Sort(targets)
	for _, target := range targets {
		text := fmt.Sprintf("%s Message lags over %f seconds. Skipping %d line(s)..",
			systemMarker, q.timeout.Seconds(), skipped[target])
		q.Push(&Message{
			command:   CmdPrivmsg,
			args:      []string{target, text},
			timestamp: now,
		})
	}
}

type entry struct {
	msg *Message
	seq uint64
}

// messageHeap is a min-heap on (timestamp, seq). The explicit insertion
// sequence makes the ordering a strict total order even when timestamps
// collide.
type messageHeap []*entry

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	ti, tj := h[i].msg.Timestamp(), h[j].msg.Timestamp()
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
