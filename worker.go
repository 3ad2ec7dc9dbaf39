package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// connectWorker performs one connect attempt off the control loop: dial,
// then send the authenticate request. The authenticate reply, or a close,
// arrives later through the worker's ConnHandler.
//
// The worker stays the service's current worker for the lifetime of the
// connection it opened; events tagged with any other worker are stale.
type connectWorker struct {
	id        string
	s         *Service
	transport Transport
	settings  Settings
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger

	// conn is guarded by s.mu.
	conn Conn
}

func (s *Service) newConnectWorker(settings Settings) *connectWorker {
	ctx, cancel := context.WithCancel(context.Background())
	id := xid.New().String()
	return &connectWorker{
		id:        id,
		s:         s,
		transport: s.transport,
		settings:  settings,
		timeout:   s.timings.ConnectTimeout,
		ctx:       ctx,
		cancel:    cancel,
		logger:    s.logger.With().Str("attempt", id).Logger(),
	}
}

func (w *connectWorker) run() {
	ep := w.settings.Endpoint()
	w.logger.Debug().Str("url", ep.URL).Bool("compression", ep.Compression).Msg("dialing")

	dialCtx, cancel := context.WithTimeout(w.ctx, w.timeout)
	conn, err := w.transport.Dial(dialCtx, ep, workerHandler{w: w})
	cancel()
	if err != nil {
		w.fail(err)
		return
	}

	if !w.s.adoptConn(w, conn) {
		w.logger.Debug().Msg("attempt superseded, dropping connection")
		conn.Close()
		return
	}

	auth, err := newAuthenticateRequest(w.settings.Password, w.settings.DeviceID).Encode()
	if err == nil {
		err = conn.SendText(auth)
	}
	if err != nil {
		conn.Close()
		w.fail(fmt.Errorf("%w: send authenticate: %w", ErrTransport, err))
		return
	}
	w.s.trace(TraceOut, w.id, RequestAuthenticate)
}

func (w *connectWorker) fail(err error) {
	if !errors.Is(err, ErrTransport) {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if !w.s.isCurrentWorker(w) {
		return
	}
	w.logger.Warn().Err(err).Msg("connect attempt failed")
	w.s.queue.push(connectFinishedEvent{worker: w, err: err})
}

// stop cancels an in-flight dial and closes the connection if it was opened
// but never handed to the service.
func (w *connectWorker) stop(handedOver Conn) {
	w.cancel()
	w.s.mu.Lock()
	conn := w.conn
	w.s.mu.Unlock()
	if conn != nil && conn != handedOver {
		conn.Close()
	}
}

// workerHandler turns transport callbacks into control loop events.
type workerHandler struct {
	w *connectWorker
}

func (h workerHandler) OnText(text string) {
	w := h.w
	w.s.trace(TraceIn, w.id, text)

	msg, err := ParseMessage(text)
	if err != nil {
		w.logger.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	if msg.Name == RequestAuthenticate {
		w.s.mu.Lock()
		conn := w.conn
		w.s.mu.Unlock()
		w.s.queue.push(connectFinishedEvent{worker: w, conn: conn})
		return
	}
	w.s.queue.push(receivedEvent{worker: w, msg: msg})
}

func (h workerHandler) OnClose(code int) {
	w := h.w
	authFailed := code == CloseCodeAuthenticationFailed
	err := fmt.Errorf("%w: connection closed (code %d)", ErrTransport, code)
	if authFailed {
		err = ErrAuthenticationFailed
	}
	w.s.queue.push(connectFinishedEvent{worker: w, authFailed: authFailed, err: err})
}
