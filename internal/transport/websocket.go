// Package transport wraps gorilla WebSocket connections for the relays:
// one writer at a time, idempotent close, and an open flag readable from any goroutine.
package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("transport: connection closed")

// DefaultWriteTimeout bounds a single frame write
const DefaultWriteTimeout = 10 * time.Second

// Conn is a JSON-framed WebSocket connection safe for one reader and many writers
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New wraps ws. Any deadline left on the socket by the HTTP server is cleared.
func New(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	_ = ws.SetReadDeadline(time.Time{})
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// ReadMessage blocks for the next text or binary frame
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return nil, ErrClosed
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteJSON encodes v as one text frame. A write on a connection either side
// has closed returns ErrClosed.
func (c *Conn) WriteJSON(v any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		if c.closed.Load() || IsClosure(err) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Open reports whether Close has not been called
func (c *Conn) Open() bool {
	return !c.closed.Load()
}

// Close sends a normal close frame and closes the socket. Safe to call repeatedly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// IsClosure reports whether err means the peer or this side closed the
// connection, as opposed to a protocol or I/O failure.
func IsClosure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	// the peer's close frame was already answered
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
