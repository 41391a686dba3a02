package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Request verbs understood by skill endpoints.
const (
	VerbGET    = "GET"
	VerbPOST   = "POST"
	VerbPUT    = "PUT"
	VerbDELETE = "DELETE"
)

// Transport errors.
var (
	// ErrUnreachable indicates the remote end could not be reached.
	ErrUnreachable = errors.New("transport: remote endpoint unreachable")
	// ErrClosed indicates the channel has been closed.
	ErrClosed = errors.New("transport: channel closed")
	// ErrMalformedResponse indicates the remote reply could not be decoded.
	ErrMalformedResponse = errors.New("transport: malformed response")
)

// Request is one framed operation sent over a channel.
type Request struct {
	Verb string          `json:"verb"`
	Path string          `json:"path"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewRequest builds a request, serializing body as JSON when non-nil.
func NewRequest(verb, path string, body any) (*Request, error) {
	req := &Request{Verb: verb, Path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		req.Body = data
	}
	return req, nil
}

// BodyAs decodes the request body into target.
func (r *Request) BodyAs(target any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("%s %s: empty request body", r.Verb, r.Path)
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// Response is the framed result of one request.
type Response struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// NewResponse builds a response, serializing body as JSON when non-nil.
func NewResponse(status int, body any) (*Response, error) {
	resp := &Response{StatusCode: status}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode response body: %w", err)
		}
		resp.Body = data
	}
	return resp, nil
}

// BodyAs decodes the response body into target.
func (r *Response) BodyAs(target any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("status %d: empty response body", r.StatusCode)
	}
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// OK reports whether the response status indicates success.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Channel carries one request to the remote end and returns its response.
// Implementations must not retry: a failed send surfaces to the caller,
// whose policy decides. Send fails when ctx is cancelled first.
type Channel interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// Handler processes one inbound request on the receiving side of a channel
// and produces the response to frame back.
type Handler func(ctx context.Context, req *Request) *Response
