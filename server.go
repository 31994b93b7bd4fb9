package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayServer accepts WebSocket connections, authenticates them and
// dispatches JSON-RPC messages to the method registry.
type GatewayServer struct {
	cfg         Config
	registry    *MethodRegistry
	hub         *SubscriberHub
	auth        *Authenticator
	broadcaster *BlockBroadcaster
	metrics     *Metrics
	logger      Logger
	upgrader    websocket.Upgrader
}

func NewGatewayServer(cfg Config, registry *MethodRegistry, hub *SubscriberHub, auth *Authenticator, broadcaster *BlockBroadcaster, metrics *Metrics, logger Logger) *GatewayServer {
	return &GatewayServer{
		cfg:         cfg,
		registry:    registry,
		hub:         hub,
		auth:        auth,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.NewSystem("gateway-server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run serves the gateway until ctx is cancelled, then shuts down gracefully.
func (s *GatewayServer) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleConnection(runCtx, w, r)
	})
	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: mux,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.broadcaster.Start(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		cancel()
		wg.Wait()
		return err
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("server shutdown failed", "error", err)
	}
	wg.Wait()
	return nil
}

func (s *GatewayServer) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	authErr := s.auth.Authorize(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if authErr != nil {
		s.metrics.AuthRejects.Inc()
		s.logger.Warn("rejected unauthorized connection", "remoteAddr", r.RemoteAddr)
		msg := websocket.FormatCloseMessage(closeCodeUnauthorized, "Unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	connID := uuid.NewString()
	client := newGWConnection(connID, conn, s.logger, s.metrics.MessagesSent.Inc)

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectedClients.Inc()
	s.logger.Info("client connected", "connectionID", connID, "remoteAddr", r.RemoteAddr)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.WritePump(connCtx)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.metrics.MessagesReceived.Inc()
		s.processMessage(connCtx, client, data)
	}

	cancel()
	wg.Wait()
	s.hub.Remove(connID)
	s.metrics.Subscribers.Set(float64(s.hub.Len()))
	s.metrics.ConnectedClients.Dec()
	s.logger.Info("client disconnected", "connectionID", connID)
}

// processMessage handles one inbound frame. Messages on a connection are
// processed serially in arrival order.
func (s *GatewayServer) processMessage(ctx context.Context, client *gwConnection, data []byte) {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Method == "" {
		// Recover the request ID if the frame was valid JSON, so the
		// client can correlate the failure. Frames without one get no
		// reply.
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(data, &probe) != nil || len(probe.ID) == 0 {
			s.logger.Debug("dropping unparseable frame", "connectionID", client.ConnectionID())
			return
		}
		s.respond(client, newErrorResponse(probe.ID, errParseError()))
		return
	}

	if !s.cfg.MethodEnabled(req.Method) {
		s.metrics.RPCRequests.WithLabelValues(req.Method, "disabled").Inc()
		s.respond(client, newErrorResponse(req.ID, errMethodDisabled()))
		return
	}

	switch req.Method {
	case "events.subscribe":
		s.hub.Add(client)
		s.metrics.Subscribers.Set(float64(s.hub.Len()))
		s.metrics.RPCRequests.WithLabelValues(req.Method, "success").Inc()
		s.respond(client, newSuccessResponse(req.ID, map[string]any{"ok": true, "events": []string{"events.block"}}))
		return
	case "events.unsubscribe":
		s.hub.Remove(client.ConnectionID())
		s.metrics.Subscribers.Set(float64(s.hub.Len()))
		s.metrics.RPCRequests.WithLabelValues(req.Method, "success").Inc()
		s.respond(client, newSuccessResponse(req.ID, map[string]any{"ok": true}))
		return
	}

	if !s.registry.Has(req.Method) {
		s.metrics.RPCRequests.WithLabelValues(req.Method, "not_found").Inc()
		s.respond(client, newErrorResponse(req.ID, errMethodNotFound(req.Method)))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	result, rpcErr := s.registry.Dispatch(reqCtx, req.Method, req.Params)
	if rpcErr != nil {
		s.metrics.RPCRequests.WithLabelValues(req.Method, "error").Inc()
		s.respond(client, newErrorResponse(req.ID, rpcErr))
		return
	}
	s.metrics.RPCRequests.WithLabelValues(req.Method, "success").Inc()
	s.respond(client, newSuccessResponse(req.ID, result))
}

func (s *GatewayServer) respond(client *gwConnection, resp rpcResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return
	}
	if err := client.Write(payload); err != nil {
		s.logger.Debug("failed to queue response", "connectionID", client.ConnectionID(), "error", err)
	}
}
