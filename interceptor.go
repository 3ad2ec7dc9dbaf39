package remote

// Responder delivers a synthetic reply for an intercepted message. It is safe
// to call from any goroutine, and may be called before Process returns.
type Responder interface {
	Respond(reply *Message)
}

// Interceptor may claim an outgoing message before it reaches the transport.
// Process runs on the control loop and returns true to claim the message;
// a claimed message is never written to the transport.
type Interceptor interface {
	Process(msg *Message, r Responder) bool
}

// NewInterceptor wraps a function as an Interceptor. The returned value is a
// pointer so it can be removed again with RemoveInterceptor.
func NewInterceptor(fn func(msg *Message, r Responder) bool) Interceptor {
	return &funcInterceptor{fn: fn}
}

type funcInterceptor struct {
	fn func(*Message, Responder) bool
}

func (f *funcInterceptor) Process(msg *Message, r Responder) bool {
	return f.fn(msg, r)
}

// interceptorChain keeps interceptors in registration order.
type interceptorChain struct {
	items []Interceptor
}

func (c *interceptorChain) add(i Interceptor) bool {
	for _, existing := range c.items {
		if existing == i {
			return false
		}
	}
	c.items = append(c.items, i)
	return true
}

func (c *interceptorChain) remove(i Interceptor) bool {
	for idx, existing := range c.items {
		if existing == i {
			c.items = append(c.items[:idx:idx], c.items[idx+1:]...)
			return true
		}
	}
	return false
}

// process offers msg to every interceptor, even after one has claimed it,
// and reports whether any claimed it.
func (c *interceptorChain) process(msg *Message, r Responder) bool {
	claimed := false
	for _, i := range append([]Interceptor(nil), c.items...) {
		if i.Process(msg, r) {
			claimed = true
		}
	}
	return claimed
}

// serviceResponder re-injects replies at the back of the control loop queue.
// The extra hop guarantees the bookkeeping of the send that triggered the
// interceptor has finished before the reply is matched.
type serviceResponder struct {
	s *Service
}

func (r serviceResponder) Respond(reply *Message) {
	if reply == nil {
		return
	}
	r.s.queue.push(callEvent{fn: func() {
		r.s.queue.push(receivedEvent{msg: reply})
	}})
}
