// Package server exposes the bot host over HTTP and WebSocket: synchronous
// activity exchange on /api/messages, a persistent multiplexed channel for
// bot-to-bot traffic on /api/skill/messages, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/skillflow/adapter"
	"github.com/BaSui01/skillflow/auth"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/state"
	"github.com/BaSui01/skillflow/transport"
	"github.com/BaSui01/skillflow/types"
)

// Options wires the host's collaborators into the server.
type Options struct {
	Handler    adapter.TurnHandler
	Middleware []adapter.Middleware
	// Validator guards inbound bot-to-bot calls; nil disables validation.
	Validator *auth.JWTValidator
	// References enables the proactive send endpoint; nil disables it.
	References *state.ReferenceStore
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Server is the skill host listener.
type Server struct {
	cfg        config.ServerConfig
	handler    adapter.TurnHandler
	middleware []adapter.Middleware
	validator  *auth.JWTValidator
	references *state.ReferenceStore
	metrics    *metrics.Collector
	logger     *zap.Logger
	httpServer *http.Server
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		handler:    opts.Handler,
		middleware: opts.Middleware,
		validator:  opts.Validator,
		references: opts.References,
		metrics:    opts.Metrics,
		logger:     logger.With(zap.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages", s.handleMessages)
	mux.HandleFunc("/api/skill/messages", s.handleSkillWebSocket)
	mux.HandleFunc("POST /api/conversations/{conversationId}/activities", s.handleProactive)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// bufferChannel collects the turn's outbound activities so a synchronous
// HTTP exchange can return them in the response body.
type bufferChannel struct {
	mu         sync.Mutex
	activities []types.Activity
}

func (c *bufferChannel) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	var a types.Activity
	if len(req.Body) > 0 {
		if err := req.BodyAs(&a); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	c.activities = append(c.activities, a)
	c.mu.Unlock()
	return &transport.Response{StatusCode: http.StatusOK}, nil
}

func (c *bufferChannel) Close() error { return nil }

func (c *bufferChannel) drain() []types.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.activities
	c.activities = nil
	return out
}

func (s *Server) newAdapter(channel transport.Channel, invokeSupported bool) *adapter.SkillAdapter {
	a := adapter.New(channel, adapter.Options{InvokeSupported: invokeSupported}, s.metrics, s.logger)
	for _, mw := range s.middleware {
		a.Use(mw)
	}
	return a
}

// handleMessages processes one activity synchronously. The skill's replies
// for the turn come back as a JSON array in the response body.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var activity types.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}

	buffer := &bufferChannel{}
	invokeResp, err := s.newAdapter(buffer, true).ProcessActivity(r.Context(), &activity, s.handler)
	if err != nil {
		s.logger.Error("turn failed", zap.Error(err))
		http.Error(w, "turn processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(invokeResp.Status)
	if err := json.NewEncoder(w).Encode(buffer.drain()); err != nil {
		s.logger.Warn("response write failed", zap.Error(err))
	}
}

// handleProactive resumes a stored conversation without a live inbound
// activity and delivers the posted activity into it. The turn's outbound
// activities come back as a JSON array, like /api/messages.
func (s *Server) handleProactive(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	if s.references == nil {
		http.Error(w, "proactive messaging is not configured", http.StatusNotImplemented)
		return
	}

	conversationID := r.PathValue("conversationId")
	ref, err := s.references.Get(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			http.Error(w, "unknown conversation", http.StatusNotFound)
			return
		}
		s.logger.Error("reference lookup failed", zap.Error(err))
		http.Error(w, "reference lookup failed", http.StatusInternalServerError)
		return
	}

	var activity types.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		http.Error(w, "malformed activity", http.StatusBadRequest)
		return
	}

	buffer := &bufferChannel{}
	err = s.newAdapter(buffer, true).ContinueConversation(r.Context(), ref, func(ctx context.Context, tc *adapter.TurnContext) error {
		types.ApplyConversationReference(&activity, ref, false)
		_, err := tc.SendActivity(ctx, &activity)
		return err
	})
	if err != nil {
		s.logger.Error("proactive turn failed", zap.Error(err))
		http.Error(w, "proactive turn failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(buffer.drain()); err != nil {
		s.logger.Warn("response write failed", zap.Error(err))
	}
}

// handleSkillWebSocket upgrades to the persistent multiplexed channel.
// Inbound framed requests carry activities; the adapter's replies travel
// back over the same connection as framed requests.
func (s *Server) handleSkillWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var (
		mux   *transport.MultiplexChannel
		ready = make(chan struct{})
	)

	handler := func(ctx context.Context, req *transport.Request) *transport.Response {
		<-ready
		return s.serveFramedRequest(ctx, mux, req)
	}

	mux, err := transport.AcceptWebSocket(w, r, handler, s.logger)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	close(ready)
	s.logger.Info("skill connection established", zap.String("remote", r.RemoteAddr))
}

func (s *Server) serveFramedRequest(ctx context.Context, channel transport.Channel, req *transport.Request) *transport.Response {
	if req.Verb != transport.VerbPOST {
		return &transport.Response{StatusCode: http.StatusNotImplemented}
	}

	var activity types.Activity
	if err := req.BodyAs(&activity); err != nil {
		return &transport.Response{StatusCode: http.StatusBadRequest}
	}

	// Invoke cannot be answered over the streaming transport.
	invokeResp, err := s.newAdapter(channel, false).ProcessActivity(ctx, &activity, s.handler)
	if err != nil {
		s.logger.Error("turn failed", zap.Error(err))
		return &transport.Response{StatusCode: http.StatusInternalServerError}
	}

	resp, err := transport.NewResponse(invokeResp.Status, types.ResourceResponse{ID: activity.ID})
	if err != nil {
		return &transport.Response{StatusCode: http.StatusInternalServerError}
	}
	return resp
}

// authorize enforces the caller JWT when a validator is configured.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.validator == nil {
		return true
	}
	claims, err := s.validator.ValidateAuthHeader(r.Header.Get("Authorization"))
	if err != nil {
		s.logger.Warn("rejected caller", zap.Error(err))
		http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
		return false
	}
	s.logger.Debug("caller authorized", zap.String("app_id", claims.AppID))
	return true
}
