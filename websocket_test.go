package remote

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// testServer is a minimal musikcube-style server: it answers authenticate
// and ping, rejects a wrong password with close code 1008 and echoes any
// other request back as a response.
type testServer struct {
	password string

	mu       sync.Mutex
	received []*Message
	conns    []*websocket.Conn
}

func (ts *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ts.mu.Lock()
	ts.conns = append(ts.conns, conn)
	ts.mu.Unlock()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		msg, err := ParseMessage(string(data))
		if err != nil {
			continue
		}
		ts.mu.Lock()
		ts.received = append(ts.received, msg)
		ts.mu.Unlock()

		if msg.Name == RequestAuthenticate && msg.StringOption(OptionPassword, "") != ts.password {
			_ = conn.Close(websocket.StatusPolicyViolation, "bad password")
			return
		}
		reply := &Message{Name: msg.Name, Type: TypeResponse, ID: msg.ID, Options: msg.Options}
		text, _ := reply.Encode()
		if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
			return
		}
	}
}

func (ts *testServer) names() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []string
	for _, m := range ts.received {
		out = append(out, m.Name)
	}
	return out
}

func (ts *testServer) dropAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		_ = c.Close(websocket.StatusGoingAway, "restart")
	}
	ts.conns = nil
}

func serverSettings(t *testing.T, srv *httptest.Server, password string) Settings {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)

	s := DefaultSettings()
	s.Address = host
	s.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	s.Password = password
	s.Compression = false
	return s
}

type handlerFuncs struct {
	text  chan string
	close chan int
}

func (h handlerFuncs) OnText(text string) { h.text <- text }
func (h handlerFuncs) OnClose(code int)   { h.close <- code }

func TestWebSocketTransport(t *testing.T) {
	ts := &testServer{password: "pw"}
	srv := httptest.NewServer(ts)
	defer srv.Close()
	settings := serverSettings(t, srv, "pw")

	tr := NewWebSocketTransport(zerolog.Nop())
	h := handlerFuncs{text: make(chan string, 8), close: make(chan int, 1)}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	conn, err := tr.Dial(ctx, settings.Endpoint(), h)
	require.NoError(t, err)
	assert.True(t, conn.IsOpen())

	text, err := NewRequest("get_volume").Encode()
	require.NoError(t, err)
	require.NoError(t, conn.SendText(text))

	select {
	case reply := <-h.text:
		msg, err := ParseMessage(reply)
		require.NoError(t, err)
		assert.Equal(t, "get_volume", msg.Name)
		assert.Equal(t, TypeResponse, msg.Type)
	case <-time.After(waitFor):
		t.Fatal("no reply")
	}

	conn.Close()
	assert.False(t, conn.IsOpen())
	assert.ErrorIs(t, conn.SendText(text), ErrNotConnected)
}

func TestWebSocketTransportDialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr := NewWebSocketTransport(zerolog.Nop())
	_, err := tr.Dial(context.Background(), serverSettings(t, srv, "").Endpoint(), handlerFuncs{})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestServiceOverWebSocket(t *testing.T) {
	t.Run("connects and answers requests", func(t *testing.T) {
		ts := &testServer{password: "pw"}
		srv := httptest.NewServer(ts)
		defer srv.Close()

		s := New(StaticSettings(serverSettings(t, srv, "pw")), WithTimings(testTimings()), WithNetworkObserver(nil))
		defer s.Close()

		c := &recordingClient{}
		register(t, s, c)
		waitState(t, s, StateConnected)

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		reply, err := s.Request(ctx, NewRequest("set_volume").With("volume", 30))
		require.NoError(t, err)
		assert.Equal(t, int64(30), reply.IntOption("volume", 0))
		assert.Equal(t, []string{RequestAuthenticate, RequestPing, "set_volume"}, ts.names())

		t.Run("server restart reconnects", func(t *testing.T) {
			ts.dropAll()
			require.Eventually(t, func() bool {
				return s.State() == StateConnected && len(ts.names()) >= 5
			}, waitFor, tick)
			assert.Contains(t, c.seen(), transition{StateDisconnected, StateConnected})
		})
	})

	t.Run("wrong password", func(t *testing.T) {
		ts := &testServer{password: "pw"}
		srv := httptest.NewServer(ts)
		defer srv.Close()

		s := New(StaticSettings(serverSettings(t, srv, "nope")), WithTimings(testTimings()), WithNetworkObserver(nil))
		defer s.Close()

		c := &recordingClient{}
		register(t, s, c)
		require.Eventually(t, func() bool { return c.invalidCount() == 1 }, waitFor, tick)
		assert.Equal(t, StateDisconnected, s.State())

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, []string{RequestAuthenticate}, ts.names())
	})
}
