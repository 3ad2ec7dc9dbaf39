package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	defaultReadLimit    = 16 << 20
	defaultOutboxSize   = 256
	defaultWriteTimeout = 10 * time.Second
)

// WebSocketTransport is the default Transport, built on nhooyr.io/websocket.
type WebSocketTransport struct {
	// ReadLimit caps the size of an inbound frame. Library listings can be large.
	ReadLimit int64

	// OutboxSize is the number of frames that may be queued for writing.
	OutboxSize int

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	Logger zerolog.Logger
}

// NewWebSocketTransport creates a transport with default limits.
func NewWebSocketTransport(logger zerolog.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		ReadLimit:    defaultReadLimit,
		OutboxSize:   defaultOutboxSize,
		WriteTimeout: defaultWriteTimeout,
		Logger:       logger,
	}
}

// Dial opens a WebSocket connection and starts its read and write loops.
func (t *WebSocketTransport) Dial(ctx context.Context, ep Endpoint, h ConnHandler) (Conn, error) {
	opts := &websocket.DialOptions{
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: ep.InsecureSkipVerify,
				},
			},
		},
		CompressionMode: websocket.CompressionDisabled,
	}
	if ep.Compression {
		opts.CompressionMode = websocket.CompressionContextTakeover
	}

	conn, _, err := websocket.Dial(ctx, ep.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial %s: %w", ErrTransport, ep.URL, err)
	}

	readLimit := t.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	outbox := t.OutboxSize
	if outbox <= 0 {
		outbox = defaultOutboxSize
	}
	writeTimeout := t.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	c := &wsConn{
		conn:         conn,
		handler:      h,
		outbox:       make(chan string, outbox),
		stop:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       t.Logger.With().Str("component", "websocket").Str("url", ep.URL).Logger(),
	}
	c.open.Store(true)

	go c.readLoop()
	go c.writeLoop()

	return c, nil
}

// wsConn adapts a websocket.Conn to Conn. Writes go through a bounded outbox
// drained by writeLoop so SendText never blocks the caller.
type wsConn struct {
	conn         *websocket.Conn
	handler      ConnHandler
	outbox       chan string
	stop         chan struct{}
	writeTimeout time.Duration
	logger       zerolog.Logger

	open      atomic.Bool
	closeOnce sync.Once
}

func (c *wsConn) SendText(text string) error {
	if !c.open.Load() {
		return ErrNotConnected
	}
	select {
	case <-c.stop:
		return ErrNotConnected
	case c.outbox <- text:
		return nil
	default:
		return fmt.Errorf("%w: outbox full", ErrTransport)
	}
}

func (c *wsConn) IsOpen() bool {
	return c.open.Load()
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.stop)
		// Close waits for the peer's close frame; keep that off the caller.
		go func() {
			if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
				c.logger.Debug().Err(err).Msg("close")
			}
		}()
	})
}

func (c *wsConn) readLoop() {
	for {
		typ, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.open.Store(false)
			code := int(websocket.CloseStatus(err))
			c.logger.Debug().Err(err).Int("code", code).Msg("read loop ended")
			c.handler.OnClose(code)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		c.handler.OnText(string(data))
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.stop:
			return
		case text := <-c.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, []byte(text))
			cancel()
			if err != nil {
				// The read loop observes the broken connection and reports the close.
				c.open.Store(false)
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		}
	}
}
