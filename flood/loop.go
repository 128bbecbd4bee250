package flood

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/quenchbot/floodgate/buffer"
)

// DefaultInterval is the dispatch loop period used when the caller has no
// opinion.
const DefaultInterval = 150 * time.Millisecond

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock substitutes the loop's time source, mainly for tests.
func WithClock(c clock.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// WithRate replaces the default rate model.
func WithRate(r RateModel) LoopOption {
	return func(l *Loop) { l.rate = r }
}

// WithInterval sets the period between ticks for Run.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.interval = d }
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) LoopOption {
	return func(l *Loop) { l.log = log }
}

// WithSentHook registers a callback observing every successfully dispatched
// message and its send time.
func WithSentHook(hook func(m *buffer.Message, at time.Time)) LoopOption {
	return func(l *Loop) { l.sentHook = hook }
}

// Loop drives outbound dispatch. Each tick purges stale messages, checks the
// earliest pending send against channel membership and the rate model, and
// forwards at most one message to the connection. All pacing state lives on
// the Loop, so independent sessions never share mutable state.
type Loop struct {
	mu       sync.Mutex
	queue    *buffer.Queue
	conn     Conn
	chans    Membership
	rate     RateModel
	clock    clock.Clock
	log      *slog.Logger
	interval time.Duration
	sentHook func(*buffer.Message, time.Time)

	lastSend    time.Time
	reconnect   *backoff.ExponentialBackOff
	nextConnect time.Time

	ticks    atomic.Uint64
	sent     atomic.Uint64
	requeued atomic.Uint64
	dropped  atomic.Uint64
	connects atomic.Uint64
}

// NewLoop wires a dispatch loop around queue, conn and the membership view.
// The loop serializes every queue access, so Enqueue is safe to call from
// other goroutines while Run is ticking.
func NewLoop(queue *buffer.Queue, conn Conn, chans Membership, opts ...LoopOption) *Loop {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0 // retry for the life of the session
	l := &Loop{
		queue:     queue,
		conn:      conn,
		chans:     chans,
		rate:      DefaultRateModel(),
		clock:     clock.New(),
		log:       slog.Default(),
		interval:  DefaultInterval,
		reconnect: b,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enqueue adds a message to the session's buffer.
func (l *Loop) Enqueue(m *buffer.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue.Push(m)
}

// HasPending reports whether a message with command is waiting to go out.
func (l *Loop) HasPending(command buffer.Command) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.HasPending(command)
}

// Pending returns a snapshot of the queued messages in dispatch order.
func (l *Loop) Pending() []*buffer.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Dump()
}

// Run ticks the loop every interval until ctx is cancelled. Callers that
// want to own the schedule skip Run and call Tick themselves.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one flood-control pass and reports whether a message was
// dispatched. At most one message goes out per tick; everything else waits
// for a later pass. The whole pass is evaluated against a single clock
// reading, so a dispatch write that blocks for a while cannot age the
// in-flight message past the purge boundary mid-tick.
func (l *Loop) Tick() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks.Add(1)

	now := l.clock.Now()
	if !l.conn.IsConnected() {
		l.requestConnect(now)
		return false
	}
	if !l.nextConnect.IsZero() {
		// Back online; the next outage starts its backoff from scratch.
		l.reconnect.Reset()
		l.nextConnect = time.Time{}
	}

	if l.queue.Len() == 0 {
		return false
	}
	l.queue.PurgeAt(now)

	head, ok := l.queue.Peek()
	if !ok {
		return false
	}
	if needsMembership(head) && !l.chans.Joined(head.Target()) {
		return false
	}
	if delay := l.rate.DelayFor(head); l.lastSend.Add(delay).After(now) {
		return false
	}

	err := l.dispatch(head)

	// The head survived this tick's purge and the lock is held, so only an
	// outside writer can change what Take returns.
	popped, ok := l.queue.Take()
	if !ok || popped != head {
		panic(fmt.Sprintf("floodgate: queue head changed during dispatch: peeked %v, popped %v", head, popped))
	}

	switch {
	case err == nil:
		l.lastSend = now
		l.sent.Add(1)
		if l.sentHook != nil {
			l.sentHook(popped, now)
		}
		return true
	case errors.Is(err, ErrNotConnected):
		// Keep the original timestamp so the message ages toward the
		// purge window while we reconnect.
		l.queue.Push(popped)
		l.requeued.Add(1)
		l.requestConnect(now)
		return false
	case errors.Is(err, ErrMalformed):
		l.dropped.Add(1)
		l.log.Warn("dropping malformed message", "msg", popped)
		return false
	default:
		l.queue.Push(popped)
		l.requeued.Add(1)
		l.log.Warn("dispatch failed, requeueing", "msg", popped, "err", err)
		return false
	}
}

// requestConnect asks the connection to come up, pacing attempts with
// exponential backoff so a dead gateway is not hammered every tick.
func (l *Loop) requestConnect(now time.Time) {
	if now.Before(l.nextConnect) {
		return
	}
	l.connects.Add(1)
	if err := l.conn.Connect(); err != nil {
		l.log.Warn("connect failed", "err", err)
	}
	l.nextConnect = now.Add(l.reconnect.NextBackOff())
}

// needsMembership reports whether m must wait until its channel is joined:
// text traffic aimed at a channel target. join itself is never held back.
func needsMembership(m *buffer.Message) bool {
	switch m.Command() {
	case buffer.CmdPrivmsg, buffer.CmdNotice:
		return buffer.IsChannel(m.Target())
	}
	return false
}

// dispatch routes m to the typed connection method for its verb. The verb
// set is closed; anything else reports ErrUnknownCommand without touching
// the connection.
func (l *Loop) dispatch(m *buffer.Message) error {
	switch m.Command() {
	case buffer.CmdJoin:
		if m.NArgs() < 1 {
			return ErrMalformed
		}
		return l.conn.Join(m.Arg(0), m.Arg(1))
	case buffer.CmdMode:
		if m.NArgs() < 1 {
			return ErrMalformed
		}
		return l.conn.Mode(m.Arg(0), m.Args()[1:]...)
	case buffer.CmdPrivmsg:
		if m.NArgs() < 2 {
			return ErrMalformed
		}
		return l.conn.Privmsg(m.Arg(0), m.Arg(1))
	case buffer.CmdNotice:
		if m.NArgs() < 2 {
			return ErrMalformed
		}
		return l.conn.Notice(m.Arg(0), m.Arg(1))
	case buffer.CmdTopic:
		if m.NArgs() < 1 {
			return ErrMalformed
		}
		return l.conn.Topic(m.Arg(0), m.Arg(1))
	case buffer.CmdWho:
		if m.NArgs() < 1 {
			return ErrMalformed
		}
		return l.conn.Who(m.Arg(0))
	case buffer.CmdWhois:
		if m.NArgs() < 1 {
			return ErrMalformed
		}
		return l.conn.Whois(m.Arg(0))
	default:
		return ErrUnknownCommand
	}
}

// Stats is a snapshot of the loop's counters.
type Stats struct {
	Ticks    uint64
	Sent     uint64
	Requeued uint64
	Dropped  uint64
	Connects uint64
}

func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:    l.ticks.Load(),
		Sent:     l.sent.Load(),
		Requeued: l.requeued.Load(),
		Dropped:  l.dropped.Load(),
		Connects: l.connects.Load(),
	}
}
