package remote

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// ============================================================================
// Event queue
// ============================================================================

// eventQueue is an unbounded multi-producer FIFO drained by the control loop.
// It is unbounded because the loop posts to itself (responder replies,
// timers re-armed from handlers) and must never block on its own queue.
type eventQueue struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

// push appends an event. It reports false once the queue is closed.
func (q *eventQueue) push(ev any) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an event is available or the queue is closed.
func (q *eventQueue) pop() (any, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.signal
	}
}

// close stops accepting events. Already queued events are dropped.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// ============================================================================
// Events
// ============================================================================

// receivedEvent carries an inbound message. worker is nil for replies
// injected by an interceptor's responder.
type receivedEvent struct {
	worker *connectWorker
	msg    *Message
}

// connectFinishedEvent reports the outcome of a connect attempt, or the close
// of an established connection. conn is nil on failure.
type connectFinishedEvent struct {
	worker     *connectWorker
	conn       Conn
	authFailed bool
	err        error
}

type timerEvent struct {
	slot  **loopTimer
	timer *loopTimer
}

type networkEvent struct {
	generation uint64
	available  bool
}

type callEvent struct {
	fn func()
}

// ============================================================================
// Loop timers
// ============================================================================

// loopTimer is a single-shot timer whose expiry is delivered through the
// event queue. A timer only fires if it is still the one held by its slot,
// so cancelling also discards an expiry that is already queued.
type loopTimer struct {
	name string
	fire func()
	t    *time.Timer
}

func (s *Service) arm(slot **loopTimer, name string, d time.Duration, fire func()) {
	s.cancelTimer(slot)
	lt := &loopTimer{name: name, fire: fire}
	lt.t = time.AfterFunc(d, func() {
		s.queue.push(timerEvent{slot: slot, timer: lt})
	})
	*slot = lt
}

func (s *Service) cancelTimer(slot **loopTimer) {
	if *slot != nil {
		(*slot).t.Stop()
		*slot = nil
	}
}

func (s *Service) armed(slot **loopTimer) bool {
	return *slot != nil
}

func (s *Service) handleTimer(ev timerEvent) {
	if *ev.slot != ev.timer {
		return
	}
	*ev.slot = nil
	s.logger.Debug().Str("timer", ev.timer.name).Msg("timer fired")
	ev.timer.fire()
}

// ============================================================================
// Loop affinity
// ============================================================================

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine id from the stack header. It is
// only used to enforce loop affinity.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// OnLoop reports whether the caller is running on the control loop.
func (s *Service) OnLoop() bool {
	return goroutineID() == s.loopID.Load()
}

func (s *Service) mustBeOnLoop() {
	if !s.OnLoop() {
		panic(ErrNotOnControlLoop)
	}
}
