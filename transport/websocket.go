package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Conn is the minimal message-oriented connection the multiplexer runs on.
// Production uses WebSocketConn; tests may substitute an in-memory pipe.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// WebSocketConn adapts a coder/websocket connection to Conn. Writes are
// mutex-protected because the underlying WebSocket does not allow
// concurrent writers.
type WebSocketConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewWebSocketConn wraps an already-established WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn, logger *zap.Logger) *WebSocketConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketConn{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_conn")),
	}
}

// ReadMessage reads one message from the WebSocket.
func (w *WebSocketConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	return data, nil
}

// WriteMessage writes one text message to the WebSocket.
func (w *WebSocketConn) WriteMessage(ctx context.Context, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (w *WebSocketConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close(websocket.StatusNormalClosure, "closing")
}

// DialWebSocket connects to a skill's streaming endpoint and returns a
// multiplexing channel over the connection. handler serves requests the
// remote side initiates (may be nil on a pure client).
func DialWebSocket(ctx context.Context, url string, headers http.Header, handler Handler, logger *zap.Logger) (*MultiplexChannel, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial: %v", ErrUnreachable, err)
	}
	return NewMultiplexChannel(NewWebSocketConn(conn, logger), handler, logger), nil
}

// AcceptWebSocket upgrades an inbound HTTP request to a WebSocket and
// returns a multiplexing channel over it.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, handler Handler, logger *zap.Logger) (*MultiplexChannel, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	return NewMultiplexChannel(NewWebSocketConn(conn, logger), handler, logger), nil
}

var _ Conn = (*WebSocketConn)(nil)
