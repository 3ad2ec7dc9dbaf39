package remote

import (
	"slices"
	"sync/atomic"
	"time"
)

// nextCallID is process-wide so ids stay unique across service instances.
var nextCallID atomic.Int64

// Resolution outcomes, used for logging and metrics.
const (
	outcomeResult       = "result"
	outcomeCancelled    = "cancelled"
	outcomeTimeout      = "timeout"
	outcomeDisconnected = "disconnected"
	outcomeReplaced     = "replaced"
	outcomeClosed       = "closed"
)

// pendingCall tracks a request awaiting its reply.
type pendingCall struct {
	id          int64
	key         string
	enqueuedAt  time.Time
	client      Client
	onResult    func(*Message)
	onError     func(error)
	intercepted bool
}

// callRegistry maps correlation keys to pending calls. It is only touched from
// the control loop. Removal never invokes callbacks; the service does that
// after the entries are gone so re-entrant calls see a consistent registry.
type callRegistry struct {
	calls map[string]*pendingCall
}

func newCallRegistry() *callRegistry {
	return &callRegistry{calls: make(map[string]*pendingCall)}
}

// put stores pc and returns the call it displaced, if any.
func (r *callRegistry) put(pc *pendingCall) *pendingCall {
	prev := r.calls[pc.key]
	r.calls[pc.key] = pc
	return prev
}

// take removes and returns the call for key.
func (r *callRegistry) take(key string) *pendingCall {
	pc, ok := r.calls[key]
	if !ok {
		return nil
	}
	delete(r.calls, key)
	return pc
}

// removeWhere removes every call matching pred, ordered by call id.
func (r *callRegistry) removeWhere(pred func(*pendingCall) bool) []*pendingCall {
	var removed []*pendingCall
	for key, pc := range r.calls {
		if pred(pc) {
			removed = append(removed, pc)
			delete(r.calls, key)
		}
	}
	slices.SortFunc(removed, func(a, b *pendingCall) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return removed
}

func (r *callRegistry) removeID(id int64) []*pendingCall {
	return r.removeWhere(func(pc *pendingCall) bool { return pc.id == id })
}

func (r *callRegistry) removeClient(c Client) []*pendingCall {
	return r.removeWhere(func(pc *pendingCall) bool { return pc.client == c })
}

func (r *callRegistry) removeExpired(now time.Time, ttl time.Duration) []*pendingCall {
	return r.removeWhere(func(pc *pendingCall) bool { return now.Sub(pc.enqueuedAt) > ttl })
}

func (r *callRegistry) removeNonIntercepted() []*pendingCall {
	return r.removeWhere(func(pc *pendingCall) bool { return !pc.intercepted })
}

func (r *callRegistry) removeAll() []*pendingCall {
	return r.removeWhere(func(*pendingCall) bool { return true })
}

func (r *callRegistry) len() int {
	return len(r.calls)
}
