package remote

import (
	"context"
	"sync"
)

// Client observes the service. All methods are called on the control loop and
// may call back into the service. Implementations must be comparable; the
// service identifies clients with ==, so pointers are the usual choice.
type Client interface {
	// OnStateChanged reports a state transition. A newly registered client
	// also receives one call with newState == oldState describing the
	// current state.
	OnStateChanged(newState, oldState State)

	// OnMessageReceived delivers an inbound message that did not match any
	// pending call.
	OnMessageReceived(msg *Message)

	// OnInvalidCredentials is called when the server rejects the password.
	OnInvalidCredentials()
}

// ClientFuncs adapts optional functions to the Client interface. Use it by
// pointer: &ClientFuncs{...}.
type ClientFuncs struct {
	StateChanged       func(newState, oldState State)
	MessageReceived    func(msg *Message)
	InvalidCredentials func()
}

func (c *ClientFuncs) OnStateChanged(newState, oldState State) {
	if c.StateChanged != nil {
		c.StateChanged(newState, oldState)
	}
}

func (c *ClientFuncs) OnMessageReceived(msg *Message) {
	if c.MessageReceived != nil {
		c.MessageReceived(msg)
	}
}

func (c *ClientFuncs) OnInvalidCredentials() {
	if c.InvalidCredentials != nil {
		c.InvalidCredentials()
	}
}

// sentinelClient owns calls made by the service itself. It is never
// registered and never notified.
type sentinelClient struct {
	name string
}

func (c *sentinelClient) String() string { return c.name }

func (*sentinelClient) OnStateChanged(State, State) {}
func (*sentinelClient) OnMessageReceived(*Message)  {}
func (*sentinelClient) OnInvalidCredentials()       {}

var (
	// keepAliveClient owns ping calls; they are flushed before every ping.
	keepAliveClient Client = &sentinelClient{name: "keepalive"}

	// detachedClient owns calls made through Request.
	detachedClient Client = &sentinelClient{name: "detached"}
)

// ============================================================================
// Future
// ============================================================================

// Future is the single-value result of SendAsync.
type Future struct {
	id   int64
	done chan struct{}
	once sync.Once
	msg  *Message
	err  error
}

func newFuture() *Future {
	return &Future{id: -1, done: make(chan struct{})}
}

// ID returns the call id usable with Cancel, or -1 if the call was never registered.
func (f *Future) ID() int64 {
	return f.id
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the reply or error. It must only be called after Done is closed.
func (f *Future) Result() (*Message, error) {
	return f.msg, f.err
}

// Wait blocks until the result is available or ctx is done. Never call it on
// the control loop: the reply is delivered there.
func (f *Future) Wait(ctx context.Context) (*Message, error) {
	select {
	case <-f.done:
		return f.msg, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(msg *Message) {
	f.once.Do(func() {
		f.msg = msg
		close(f.done)
	})
}

func (f *Future) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
