// Package transport implements the engine's WebSocket connection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 8 << 20
)

// ErrClosed is returned by Connect after Close
var ErrClosed = errors.New("transport closed")

// Options configures a WebSocket transport
type Options struct {
	URL            string
	Header         http.Header
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Logger         *zap.Logger
}

// WebSocket is a reconnecting client connection. Frames sent while
// disconnected are queued and flushed on the next successful dial.
type WebSocket struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	queue   [][]byte
	handler func([]byte)
	closed  bool
	started bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWebSocket creates an unconnected transport
func NewWebSocket(opts Options) *WebSocket {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		opts:   opts,
		log:    log.With(zap.String("url", opts.URL)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// OnMessage sets the inbound frame handler. Frames are delivered one at a
// time from the read goroutine.
func (w *WebSocket) OnMessage(handler func(data []byte)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// Connect dials the server and starts the read loop. After a successful
// Connect the transport redials on its own whenever the connection drops.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	w.started = true
	w.mu.Unlock()

	w.adopt(conn)
	go w.run(conn)
	return nil
}

func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := w.opts.Dialer.DialContext(ctx, w.opts.URL, w.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// adopt installs conn as the live connection and flushes queued frames
func (w *WebSocket) adopt(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	queued := w.queue
	w.queue = nil
	w.mu.Unlock()

	for i, data := range queued {
		if err := w.write(conn, data); err != nil {
			w.log.Debug("flush failed, requeueing", zap.Error(err))
			w.mu.Lock()
			w.queue = append(queued[i:], w.queue...)
			w.mu.Unlock()
			return
		}
	}
}

func (w *WebSocket) run(conn *websocket.Conn) {
	defer close(w.done)
	for {
		w.read(conn)

		w.mu.Lock()
		w.conn = nil
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		conn = w.redial()
		if conn == nil {
			return
		}
		w.adopt(conn)
	}
}

// read delivers frames until the connection fails
func (w *WebSocket) read(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Debug("server closed connection")
			} else {
				w.log.Debug("read failed", zap.Error(err))
			}
			_ = conn.Close()
			return
		}

		w.mu.Lock()
		handler := w.handler
		closed := w.closed
		w.mu.Unlock()
		if closed {
			_ = conn.Close()
			return
		}
		if handler != nil {
			handler(data)
		}
	}
}

// redial retries until a connection succeeds or the transport is closed
func (w *WebSocket) redial() *websocket.Conn {
	timer := time.NewTimer(w.opts.ReconnectDelay)
	defer timer.Stop()
	for attempt := 1; ; attempt++ {
		select {
		case <-w.ctx.Done():
			return nil
		case <-timer.C:
		}

		conn, err := w.dial(w.ctx)
		if err == nil {
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()
			if closed {
				_ = conn.Close()
				return nil
			}
			w.log.Debug("reconnected", zap.Int("attempt", attempt))
			return conn
		}
		w.log.Debug("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		timer.Reset(w.opts.ReconnectDelay)
	}
}

// Send JSON-encodes message and writes it, queueing while disconnected.
// It returns false if the transport is closed or the message cannot be encoded.
func (w *WebSocket) Send(message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		w.log.Debug("send: encode failed", zap.Error(err))
		return false
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	conn := w.conn
	if conn == nil {
		w.queue = append(w.queue, data)
		w.mu.Unlock()
		return true
	}
	w.mu.Unlock()

	if err := w.write(conn, data); err != nil {
		w.log.Debug("send failed, queueing for reconnect", zap.Error(err))
		w.mu.Lock()
		w.queue = append(w.queue, data)
		w.mu.Unlock()
		// closing makes the read loop notice and redial
		_ = conn.Close()
	}
	return true
}

func (w *WebSocket) write(conn *websocket.Conn, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Connected reports whether a connection is currently open
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Close stops reconnecting, closes the connection and waits for the read
// loop to exit. No handler call starts after Close returns. Close must not
// be called from inside the message handler.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	started := w.started
	w.queue = nil
	w.mu.Unlock()

	w.cancel()
	if conn != nil {
		w.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		_ = conn.Close()
	}
	if started {
		<-w.done
	}
	return nil
}
