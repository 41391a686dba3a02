package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// frameType discriminates multiplexed frames.
const (
	frameRequest  = "request"
	frameResponse = "response"
)

// frame is the unit exchanged over a persistent connection. Every logical
// request/response pair shares one opaque RequestID; matching is by id,
// never by arrival order.
type frame struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId"`
	Request   *Request  `json:"request,omitempty"`
	Response  *Response `json:"response,omitempty"`
}

// MultiplexChannel frames requests and responses over one persistent Conn.
// Both peers may initiate requests: outbound sends park on a per-id channel
// until the matching response frame arrives, and inbound request frames are
// served by the configured Handler.
type MultiplexChannel struct {
	conn    Conn
	handler Handler
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]chan *Response
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMultiplexChannel starts the read loop over conn. handler serves
// requests initiated by the remote peer; when nil, inbound requests are
// answered with status 501.
func NewMultiplexChannel(conn Conn, handler Handler, logger *zap.Logger) *MultiplexChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &MultiplexChannel{
		conn:    conn,
		handler: handler,
		logger:  logger.With(zap.String("component", "multiplex_channel")),
		pending: make(map[string]chan *Response),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c
}

// Send frames req with a fresh request id and blocks until the matching
// response frame arrives, ctx is cancelled, or the channel closes.
func (c *MultiplexChannel) Send(ctx context.Context, req *Request) (*Response, error) {
	id := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	respCh := make(chan *Response, 1)
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(frame{Type: frameRequest, RequestID: id, Request: req})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := c.conn.WriteMessage(ctx, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Close tears down the connection and fails every in-flight send.
func (c *MultiplexChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	return c.conn.Close()
}

func (c *MultiplexChannel) readLoop(ctx context.Context) {
	for {
		data, err := c.conn.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("read loop ended", zap.Error(err))
			}
			c.Close()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("discarding malformed frame", zap.Error(err))
			continue
		}

		switch f.Type {
		case frameResponse:
			c.settle(f.RequestID, f.Response)
		case frameRequest:
			// Served in its own goroutine so a slow handler cannot stall
			// response dispatch for concurrent in-flight sends.
			go c.serve(ctx, f)
		default:
			c.logger.Warn("discarding frame with unknown type", zap.String("type", f.Type))
		}
	}
}

func (c *MultiplexChannel) settle(id string, resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("response for unknown request id", zap.String("request_id", id))
		return
	}
	ch <- resp
}

func (c *MultiplexChannel) serve(ctx context.Context, f frame) {
	var resp *Response
	if c.handler != nil {
		resp = c.handler(ctx, f.Request)
	}
	if resp == nil {
		resp = &Response{StatusCode: http.StatusNotImplemented}
	}

	data, err := json.Marshal(frame{Type: frameResponse, RequestID: f.RequestID, Response: resp})
	if err != nil {
		c.logger.Error("encode response frame", zap.Error(err))
		return
	}
	if err := c.conn.WriteMessage(ctx, data); err != nil {
		c.logger.Warn("write response frame", zap.String("request_id", f.RequestID), zap.Error(err))
	}
}

var _ Channel = (*MultiplexChannel)(nil)
