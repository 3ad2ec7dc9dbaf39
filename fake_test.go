package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Scripted transport
// ============================================================================

type fakeTransport struct {
	// authReply answers authenticate requests with a success frame.
	authReply bool
	// pong answers ping requests.
	pong bool

	// failNext makes that many upcoming dials fail.
	failNext atomic.Int32

	mu      sync.Mutex
	dialErr error
	conns   []*fakeConn
	dials   atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{authReply: true, pong: true}
}

func (t *fakeTransport) Dial(ctx context.Context, ep Endpoint, h ConnHandler) (Conn, error) {
	t.dials.Add(1)
	if t.failNext.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	c := &fakeConn{t: t, ep: ep, h: h}
	c.open.Store(true)
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) setDialErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErr = err
}

func (t *fakeTransport) latest() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fakeConn struct {
	t  *fakeTransport
	ep Endpoint
	h  ConnHandler

	open   atomic.Bool
	closed atomic.Bool

	mu   sync.Mutex
	sent []*Message
}

func (c *fakeConn) SendText(text string) error {
	if !c.open.Load() {
		return ErrNotConnected
	}
	msg, err := ParseMessage(text)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	switch {
	case msg.Name == RequestAuthenticate && c.t.authReply:
		go c.reply(msg, map[string]any{"authenticated": true})
	case msg.Name == RequestPing && c.t.pong:
		go c.reply(msg, nil)
	}
	return nil
}

func (c *fakeConn) IsOpen() bool { return c.open.Load() }

func (c *fakeConn) Close() {
	c.open.Store(false)
	c.closed.Store(true)
}

// reply answers req as the server would.
func (c *fakeConn) reply(req *Message, options map[string]any) {
	c.push(&Message{Name: req.Name, Type: TypeResponse, ID: req.ID, Options: options})
}

// push delivers a server frame.
func (c *fakeConn) push(msg *Message) {
	text, err := msg.Encode()
	if err != nil {
		panic(err)
	}
	c.h.OnText(text)
}

// serverClose simulates the server closing the connection with code.
func (c *fakeConn) serverClose(code int) {
	c.open.Store(false)
	c.h.OnClose(code)
}

// sentNamed returns the frames sent with the given name.
func (c *fakeConn) sentNamed(name string) []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Message
	for _, m := range c.sent {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// ============================================================================
// Network observer
// ============================================================================

type fakeObserver struct {
	mu     sync.Mutex
	fn     func(bool)
	active int
	total  int
}

func (o *fakeObserver) Subscribe(fn func(bool)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fn = fn
	o.active++
	o.total++
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.active--
	}
}

func (o *fakeObserver) signal(available bool) {
	o.mu.Lock()
	fn := o.fn
	o.mu.Unlock()
	if fn != nil {
		fn(available)
	}
}

func (o *fakeObserver) subscriptions() (active, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active, o.total
}

// ============================================================================
// Recording client
// ============================================================================

type transition struct {
	New, Old State
}

type recordingClient struct {
	mu          sync.Mutex
	transitions []transition
	messages    []*Message
	invalid     int
}

func (c *recordingClient) OnStateChanged(newState, oldState State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, transition{newState, oldState})
}

func (c *recordingClient) OnMessageReceived(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *recordingClient) OnInvalidCredentials() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalid++
}

func (c *recordingClient) seen() []transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transition(nil), c.transitions...)
}

func (c *recordingClient) received() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Message(nil), c.messages...)
}

func (c *recordingClient) invalidCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid
}

// ============================================================================
// Helpers
// ============================================================================

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// testTimings keeps background timers out of the way unless a test shortens them.
func testTimings() Timings {
	return Timings{
		ReconnectDelay:      20 * time.Millisecond,
		CallbackTimeout:     time.Hour,
		ConnectTimeout:      time.Second,
		HandshakeTimeout:    time.Second,
		PingInterval:        time.Hour,
		FailsafeDelay:       time.Hour,
		AutoDisconnectDelay: time.Hour,
	}
}

func newTestService(t *testing.T, tr Transport, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithTransport(tr),
		WithTimings(testTimings()),
		WithNetworkObserver(nil),
	}
	s := New(StaticSettings{Address: "music.local", Port: 7905, Password: "secret", DeviceID: "dev-1"}, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// onLoop runs fn on the control loop and waits for it.
func onLoop(t *testing.T, s *Service, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Invoke(ctx, fn))
}

func register(t *testing.T, s *Service, c Client) {
	t.Helper()
	onLoop(t, s, func() { s.RegisterClient(c) })
}

func waitState(t *testing.T, s *Service, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, tick, "want state %s", want)
	barrier(t, s)
}

// barrier waits until every event queued so far has been handled.
func barrier(t *testing.T, s *Service) {
	t.Helper()
	onLoop(t, s, func() {})
}

// connected registers c and waits for the handshake to finish.
func connected(t *testing.T, s *Service, tr *fakeTransport, c Client) *fakeConn {
	t.Helper()
	register(t, s, c)
	waitState(t, s, StateConnected)
	conn := tr.latest()
	require.NotNil(t, conn)
	return conn
}

// errRecorder collects errors delivered to onError callbacks.
type errRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// msgRecorder collects messages delivered to onResult callbacks.
type msgRecorder struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *msgRecorder) record(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *msgRecorder) all() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.msgs...)
}

// memTracer keeps trace records in memory.
type memTracer struct {
	mu      sync.Mutex
	records []TraceRecord
}

func (m *memTracer) Trace(rec TraceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *memTracer) all() []TraceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TraceRecord(nil), m.records...)
}
