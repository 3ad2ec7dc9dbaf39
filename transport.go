package remote

import "context"

// Endpoint describes where and how a transport connects.
type Endpoint struct {
	URL                string
	Compression        bool
	InsecureSkipVerify bool
}

// ConnHandler receives asynchronous events from a Conn. Methods are called
// from transport goroutines, never from the service control loop.
type ConnHandler interface {
	// OnText is called for every inbound text frame.
	OnText(text string)

	// OnClose is called once when the connection ends. code is the close
	// code sent by the server, or -1 if none was received.
	OnClose(code int)
}

// Conn is an open transport connection.
type Conn interface {
	// SendText queues a text frame. It must not block.
	SendText(text string) error

	// IsOpen reports whether the connection can still carry frames.
	IsOpen() bool

	// Close starts closing the connection. It must not block.
	Close()
}

// Transport opens connections. Dial may block and is only called from the
// connect worker goroutine.
type Transport interface {
	Dial(ctx context.Context, ep Endpoint, h ConnHandler) (Conn, error)
}
