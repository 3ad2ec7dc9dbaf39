// Package remote is a Go SDK for the musikcube remote WebSocket protocol.
//
// A Service keeps exactly one logical connection to a musikcube server. It
// authenticates, correlates replies with outstanding requests, keeps the
// connection alive with ping/pong, and reconnects after failures.
//
// All state lives on a single control loop goroutine. Client and interceptor
// callbacks run on that loop and may call the Service directly; any other
// goroutine must hop onto the loop with Post or Invoke, or use Request.
//
// Example:
//
//	svc := remote.New(remote.StaticSettings{Address: "10.0.0.2", Port: 7905, Password: "pw"})
//	defer svc.Close()
//
//	client := &remote.ClientFuncs{
//		StateChanged: func(newState, oldState remote.State) { fmt.Println(oldState, "->", newState) },
//	}
//	svc.Post(func() { svc.RegisterClient(client) })
//
//	reply, err := svc.Request(ctx, remote.NewRequest("get_playback_overview"))
package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Options
// ============================================================================

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTransport replaces the default WebSocket transport.
func WithTransport(t Transport) Option {
	return func(s *Service) { s.transport = t }
}

// WithNetworkObserver replaces the default interface poller. Passing nil
// disables network observation.
func WithNetworkObserver(o NetworkObserver) Option {
	return func(s *Service) {
		s.observer = o
		s.observerSet = true
	}
}

// WithMetrics records service metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer captures every frame and state change.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithTimings overrides the fixed durations. Zero fields keep their defaults.
func WithTimings(t Timings) Option {
	return func(s *Service) { s.timings = t }
}

// ============================================================================
// Service
// ============================================================================

// Service maintains the connection. Create it with New and release it with Close.
type Service struct {
	logger      zerolog.Logger
	provider    SettingsProvider
	transport   Transport
	observer    NetworkObserver
	observerSet bool
	metrics     *Metrics
	tracer      Tracer
	timings     Timings

	queue     *eventQueue
	loopID    atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once

	stateValue atomic.Uint32

	// Owned by the control loop.
	state          State
	closed         bool
	clients        []Client
	calls          *callRegistry
	interceptors   interceptorChain
	responder      Responder
	conn           Conn
	deviceID       string
	recon          reconnector
	keepAlive      keepAlive
	handshakeTimer *loopTimer
	sweepTimer     *loopTimer

	// Transitions waiting to be delivered, and whether a delivery is running.
	stateChanges []stateChange
	notifying    bool

	// mu guards the handoff of the current connect worker.
	mu     sync.Mutex
	worker *connectWorker
}

// New creates a Service in the Disconnected state and starts its control
// loop. It does not connect until a client is registered.
func New(provider SettingsProvider, opts ...Option) *Service {
	s := &Service{
		logger:   zerolog.Nop(),
		provider: provider,
		queue:    newEventQueue(),
		done:     make(chan struct{}),
		calls:    newCallRegistry(),
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.timings.defaults()
	base := s.logger
	s.logger = base.With().Str("component", "remote").Logger()
	if s.provider == nil {
		s.provider = StaticSettings(DefaultSettings())
	}
	if s.transport == nil {
		s.transport = NewWebSocketTransport(base)
	}
	if !s.observerSet {
		s.observer = NewInterfaceObserver(DefaultNetworkPollInterval, base)
	}
	s.responder = serviceResponder{s: s}
	s.stateValue.Store(uint32(StateDisconnected))

	ready := make(chan struct{})
	go s.run(ready)
	<-ready

	s.Post(s.armSweep)
	return s
}

func (s *Service) run(ready chan<- struct{}) {
	defer close(s.done)
	s.loopID.Store(goroutineID())
	close(ready)

	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		s.dispatch(ev)
	}
}

func (s *Service) dispatch(ev any) {
	switch ev := ev.(type) {
	case callEvent:
		ev.fn()
	case timerEvent:
		s.handleTimer(ev)
	case receivedEvent:
		s.handleReceived(ev)
	case connectFinishedEvent:
		s.handleConnectFinished(ev)
	case networkEvent:
		s.handleNetwork(ev)
	default:
		s.logger.Error().Str("event", fmt.Sprintf("%T", ev)).Msg("unknown event")
	}
}

// Post schedules fn on the control loop and reports whether it was queued.
// It is safe to call from any goroutine.
func (s *Service) Post(fn func()) bool {
	return s.queue.push(callEvent{fn: fn})
}

// Invoke runs fn on the control loop and waits for it to finish. Called on
// the loop it runs fn directly.
func (s *Service) Invoke(ctx context.Context, fn func()) error {
	if s.OnLoop() {
		fn()
		return nil
	}
	finished := make(chan struct{})
	if !s.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, fails every pending call with ErrClosed and stops the
// control loop. It waits for the loop to exit unless called on the loop.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.OnLoop() {
			s.shutdown()
			return
		}
		if s.Post(s.shutdown) {
			<-s.done
		}
	})
	return nil
}

func (s *Service) shutdown() {
	s.logger.Debug().Msg("shutting down")
	s.closed = true
	s.failCalls(s.calls.removeAll(), ErrClosed, outcomeClosed)
	s.disconnect(false)
	s.cancelTimer(&s.sweepTimer)
	s.cancelTimer(&s.recon.autoDisconnectTimer)
	s.unsubscribeNetwork()
	s.queue.close()
}

// State returns the current connection state. It is safe to call from any goroutine.
func (s *Service) State() State {
	return State(s.stateValue.Load())
}

// HasValidConnection reports whether the settings name a server.
func (s *Service) HasValidConnection() bool {
	return s.provider.Settings().Valid()
}

func (s *Service) setState(st State) {
	s.mustBeOnLoop()
	if st == s.state {
		return
	}
	old := s.state
	s.state = st
	s.stateValue.Store(uint32(st))

	s.logger.Info().Stringer("state", st).Stringer("from", old).Msg("state changed")
	s.metrics.observeState(old, st)
	s.trace(TraceState, s.workerID(), old.String()+"->"+st.String())

	// Transitions made from inside a callback are delivered after the
	// current one has reached every client.
	s.stateChanges = append(s.stateChanges, stateChange{newState: st, oldState: old})
	if s.notifying {
		return
	}
	s.notifying = true
	defer func() { s.notifying = false }()
	for len(s.stateChanges) > 0 {
		ch := s.stateChanges[0]
		s.stateChanges = s.stateChanges[1:]
		s.notifyClients(func(c Client) { c.OnStateChanged(ch.newState, ch.oldState) })
	}
}

type stateChange struct {
	newState, oldState State
}

// notifyClients calls fn for each registered client in registration order.
// A client unregistered by an earlier callback is skipped.
func (s *Service) notifyClients(fn func(Client)) {
	for _, c := range slices.Clone(s.clients) {
		if s.HasClient(c) {
			fn(c)
		}
	}
}

func (s *Service) workerID() string {
	if s.worker == nil {
		return ""
	}
	return s.worker.id
}

// ============================================================================
// Clients
// ============================================================================

// RegisterClient adds c to the notified set. The first client triggers a
// connect and cancels a pending auto-disconnect. Registering twice is a no-op.
func (s *Service) RegisterClient(c Client) {
	s.mustBeOnLoop()
	if c == nil || s.HasClient(c) {
		return
	}

	s.clients = append(s.clients, c)
	if len(s.clients) == 1 {
		s.subscribeNetwork()
	}
	s.cancelTimer(&s.recon.autoDisconnectTimer)

	c.OnStateChanged(s.state, s.state)

	if s.state == StateDisconnected && !s.closed {
		s.armFailsafe()
		s.Connect()
	}
}

// UnregisterClient removes c and cancels its pending calls. When the last
// client leaves, the service disconnects after the auto-disconnect delay.
func (s *Service) UnregisterClient(c Client) {
	s.mustBeOnLoop()
	idx := slices.IndexFunc(s.clients, func(existing Client) bool { return existing == c })
	if idx < 0 {
		return
	}
	s.clients = slices.Delete(slices.Clone(s.clients), idx, idx+1)

	s.failCalls(s.calls.removeClient(c), ErrCancelled, outcomeCancelled)

	if len(s.clients) == 0 {
		s.unsubscribeNetwork()
		s.cancelTimer(&s.recon.failsafeTimer)
		s.armAutoDisconnect()
	}
}

// HasClient reports whether c is registered.
func (s *Service) HasClient(c Client) bool {
	s.mustBeOnLoop()
	return slices.ContainsFunc(s.clients, func(existing Client) bool { return existing == c })
}

func (s *Service) isKnownClient(c Client) bool {
	if c == nil {
		return false
	}
	return c == keepAliveClient || c == detachedClient || s.HasClient(c)
}

// ============================================================================
// Connection management
// ============================================================================

// Connect enables auto-reconnect and starts connecting if disconnected.
func (s *Service) Connect() {
	s.mustBeOnLoop()
	s.recon.autoReconnect = true
	s.connectIfNotConnected()
}

// Disconnect closes the connection and disables auto-reconnect.
func (s *Service) Disconnect() {
	s.mustBeOnLoop()
	s.disconnect(false)
}

func (s *Service) connectIfNotConnected() {
	if s.state != StateDisconnected || s.closed {
		return
	}

	s.disconnect(s.recon.autoReconnect)
	s.cancelTimer(&s.recon.reconnectTimer)

	if len(s.clients) == 0 {
		return
	}
	s.cancelTimer(&s.recon.autoDisconnectTimer)
	s.setState(StateConnecting)
	if s.state != StateConnecting {
		// A client disconnected from its state callback.
		return
	}
	s.startWorker()
}

func (s *Service) startWorker() {
	settings := s.provider.Settings()
	s.deviceID = settings.DeviceID

	w := s.newConnectWorker(settings)
	s.mu.Lock()
	s.worker = w
	s.mu.Unlock()

	s.metrics.observeConnectAttempt()
	s.arm(&s.handshakeTimer, "handshake", s.timings.HandshakeTimeout, func() {
		if s.state == StateConnecting && s.worker == w {
			s.logger.Warn().Str("attempt", w.id).Msg("handshake timed out")
			s.disconnect(true)
		}
	})

	go w.run()
}

func (s *Service) isCurrentWorker(w *connectWorker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker == w
}

// adoptConn records the connection a worker opened, unless the worker has
// been superseded in the meantime.
func (s *Service) adoptConn(w *connectWorker, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != w {
		return false
	}
	w.conn = conn
	return true
}

func (s *Service) invalidateWorker() {
	s.mu.Lock()
	w := s.worker
	s.worker = nil
	s.mu.Unlock()
	if w != nil {
		w.stop(s.conn)
	}
}

func (s *Service) disconnect(reconnect bool) {
	s.invalidateWorker()
	s.recon.autoReconnect = reconnect

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	s.stopKeepAlive()
	s.cancelTimer(&s.handshakeTimer)
	s.failCalls(s.calls.removeNonIntercepted(), ErrNotConnected, outcomeDisconnected)
	s.setState(StateDisconnected)

	if reconnect && !s.closed {
		s.arm(&s.recon.reconnectTimer, "reconnect", s.timings.ReconnectDelay, s.autoReconnectFired)
	} else {
		s.cancelTimer(&s.recon.reconnectTimer)
		s.cancelTimer(&s.recon.failsafeTimer)
	}
}

func (s *Service) handleConnectFinished(ev connectFinishedEvent) {
	if ev.worker == nil || ev.worker != s.worker {
		s.logger.Debug().Msg("ignoring stale connect result")
		return
	}

	if ev.conn == nil {
		if ev.authFailed {
			s.metrics.observeAuthFailure()
			s.logger.Warn().Str("attempt", ev.worker.id).Msg("server rejected credentials")
			s.disconnect(false)
			s.notifyClients(Client.OnInvalidCredentials)
			return
		}
		s.logger.Info().Err(ev.err).Str("attempt", ev.worker.id).Stringer("state", s.state).Msg("connection failed")
		s.disconnect(s.state == StateConnected || s.recon.autoReconnect)
		return
	}

	if s.state != StateConnecting {
		return
	}
	s.conn = ev.conn
	s.cancelTimer(&s.handshakeTimer)
	s.cancelTimer(&s.recon.failsafeTimer)
	s.setState(StateConnected)
	if !s.keepAliveActive() {
		s.ping()
	}
}

// ============================================================================
// Sending
// ============================================================================

// Send writes msg without tracking a reply. It returns the call id, or -1 if
// no interceptor claimed the message and there is no live connection.
func (s *Service) Send(msg *Message) int64 {
	id, err := s.send(msg, nil, nil, nil)
	if err != nil {
		return -1
	}
	return id
}

// SendWithCallback writes msg and calls onResult with the matching reply.
// If onResult is set, client must be registered or ErrInvalidClient is
// returned and nothing is sent. Other failures are delivered to onError
// asynchronously and the returned id is -1. onError also receives
// ErrCancelled, ErrTimeout or ErrNotConnected if the call is cancelled,
// expires or is flushed by a disconnect.
func (s *Service) SendWithCallback(msg *Message, client Client, onResult func(*Message), onError func(error)) (int64, error) {
	id, err := s.send(msg, client, onResult, onError)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, ErrInvalidClient) {
		return -1, err
	}
	if onError != nil {
		s.Post(func() { onError(err) })
	}
	return -1, nil
}

// SendAsync writes msg and returns a Future resolved with the reply or an
// error. Every failure, including an unregistered client, is reported
// through the Future.
func (s *Service) SendAsync(msg *Message, client Client) *Future {
	f := newFuture()
	id, err := s.send(msg, client, f.resolve, f.fail)
	if err != nil {
		f.fail(err)
		return f
	}
	f.id = id
	return f
}

// Request sends msg from outside the control loop and waits for the reply.
// If ctx ends first the call is cancelled.
func (s *Service) Request(ctx context.Context, msg *Message) (*Message, error) {
	if s.OnLoop() {
		return nil, fmt.Errorf("remote: Request would block the control loop; use SendAsync")
	}
	var f *Future
	err := s.Invoke(ctx, func() {
		// Invoke may already have returned ctx.Err.
		if ctx.Err() != nil {
			return
		}
		f = s.SendAsync(msg, detachedClient)
		if id := f.ID(); id >= 0 {
			context.AfterFunc(ctx, func() { s.Post(func() { s.Cancel(id) }) })
		}
	})
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ctx.Err()
	}
	return f.Wait(ctx)
}

func (s *Service) send(msg *Message, client Client, onResult func(*Message), onError func(error)) (int64, error) {
	s.mustBeOnLoop()
	if s.closed {
		return -1, ErrClosed
	}
	if onResult != nil && !s.isKnownClient(client) {
		return -1, ErrInvalidClient
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.DeviceID == "" {
		msg.DeviceID = s.deviceID
	}

	var text string
	intercepted := s.interceptors.process(msg, s.responder)
	if intercepted {
		s.metrics.observeIntercepted()
	} else {
		if s.conn == nil {
			return -1, ErrNotConnected
		}
		if !s.conn.IsOpen() {
			// The transport died without reporting a close. Treat it as one.
			s.logger.Warn().Str("name", msg.Name).Msg("transport is dead, reconnecting")
			s.disconnect(true)
			return -1, ErrNotConnected
		}
		var err error
		if text, err = msg.Encode(); err != nil {
			return -1, err
		}
	}

	id := nextCallID.Add(1)
	if onResult != nil {
		pc := &pendingCall{
			id:          id,
			key:         msg.ID,
			enqueuedAt:  time.Now(),
			client:      client,
			onResult:    onResult,
			onError:     onError,
			intercepted: intercepted,
		}
		if prev := s.calls.put(pc); prev != nil {
			s.failCalls([]*pendingCall{prev}, ErrCancelled, outcomeReplaced)
		}
		s.metrics.observePending(s.calls.len())
	}

	if intercepted {
		s.logger.Debug().Int64("id", id).Str("name", msg.Name).Msg("message intercepted")
		return id, nil
	}

	if err := s.conn.SendText(text); err != nil {
		if onResult != nil {
			s.calls.take(msg.ID)
			s.metrics.observePending(s.calls.len())
		}
		s.logger.Warn().Err(err).Str("name", msg.Name).Msg("send failed")
		return -1, err
	}
	s.metrics.observeSent()
	s.trace(TraceOut, s.workerID(), text)
	return id, nil
}

// Cancel removes the call with the given id; its onError receives ErrCancelled.
func (s *Service) Cancel(id int64) {
	s.mustBeOnLoop()
	s.failCalls(s.calls.removeID(id), ErrCancelled, outcomeCancelled)
}

// CancelClient removes every call owned by c; each onError receives ErrCancelled.
func (s *Service) CancelClient(c Client) {
	s.mustBeOnLoop()
	s.failCalls(s.calls.removeClient(c), ErrCancelled, outcomeCancelled)
}

// AddInterceptor registers i. Interceptors see messages in registration order.
func (s *Service) AddInterceptor(i Interceptor) {
	s.mustBeOnLoop()
	s.interceptors.add(i)
}

// RemoveInterceptor unregisters i.
func (s *Service) RemoveInterceptor(i Interceptor) {
	s.mustBeOnLoop()
	s.interceptors.remove(i)
}

// PendingCalls returns the number of calls awaiting a reply.
func (s *Service) PendingCalls() int {
	s.mustBeOnLoop()
	return s.calls.len()
}

func (s *Service) failCalls(calls []*pendingCall, err error, outcome string) {
	if len(calls) == 0 {
		return
	}
	s.metrics.observeResolved(outcome, len(calls))
	s.metrics.observePending(s.calls.len())
	s.logger.Debug().Int("count", len(calls)).Str("outcome", outcome).Msg("resolving pending calls")
	for _, pc := range calls {
		if pc.onError != nil {
			pc.onError(err)
		}
	}
}

// ============================================================================
// Receiving
// ============================================================================

func (s *Service) handleReceived(ev receivedEvent) {
	if ev.worker != nil && ev.worker != s.worker {
		return
	}
	s.metrics.observeReceived()

	if pc := s.calls.take(ev.msg.ID); pc != nil {
		s.metrics.observeResolved(outcomeResult, 1)
		s.metrics.observePending(s.calls.len())
		pc.onResult(ev.msg)
		return
	}

	s.notifyClients(func(c Client) { c.OnMessageReceived(ev.msg) })
}

func (s *Service) armSweep() {
	ttl := s.timings.CallbackTimeout
	s.arm(&s.sweepTimer, "sweep", ttl, func() {
		s.failCalls(s.calls.removeExpired(time.Now(), ttl), ErrTimeout, outcomeTimeout)
		s.armSweep()
	})
}
