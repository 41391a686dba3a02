package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPConfig holds configuration for the synchronous HTTP channel.
type HTTPConfig struct {
	// Endpoint is the base URL of the remote skill (e.g. "https://skill.example.com/api/skill").
	Endpoint string
	// Timeout bounds each request.
	Timeout time.Duration
	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string
}

// DefaultHTTPConfig returns an HTTPConfig with sensible defaults.
func DefaultHTTPConfig(endpoint string) HTTPConfig {
	return HTTPConfig{
		Endpoint: endpoint,
		Timeout:  30 * time.Second,
		Headers:  make(map[string]string),
	}
}

// HTTPChannel sends framed requests to a skill endpoint over plain HTTP.
// One framed request maps to one HTTP round trip; the framed verb becomes
// the HTTP method and the framed path is appended to the endpoint.
type HTTPChannel struct {
	config HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPChannel creates an HTTP channel for the given endpoint.
func NewHTTPChannel(config HTTPConfig, logger *zap.Logger) *HTTPChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPChannel{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "http_channel")),
	}
}

// Send performs one HTTP round trip. Network failures wrap ErrUnreachable;
// every received status code passes through for the caller to interpret.
func (c *HTTPChannel) Send(ctx context.Context, req *Request) (*Response, error) {
	url := strings.TrimSuffix(c.config.Endpoint, "/") + req.Path

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Verb, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("verb", req.Verb),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedResponse, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode}
	if len(respBody) > 0 {
		resp.Body = respBody
	}
	return resp, nil
}

// Close releases idle connections.
func (c *HTTPChannel) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

var _ Channel = (*HTTPChannel)(nil)
