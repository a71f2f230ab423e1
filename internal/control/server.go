// Package control exposes the engine over a WebSocket endpoint so
// external clients (scripted pipelines, assistants, test harnesses) can
// apply declarative graph snapshots and pull values. Every mutation goes
// through the same reconciliation path as any other snapshot source; there
// is no separate code path for external control.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vk/opgraph/internal/ctxlog"
	"github.com/vk/opgraph/internal/registry"
	"github.com/vk/opgraph/internal/store"
)

// Message is the wire envelope in both directions.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Server serves the external control protocol over one HTTP endpoint.
type Server struct {
	pop      *store.Population
	reg      *registry.Registry
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer creates a control server bound to the given population and
// operator registry.
func NewServer(pop *store.Population, reg *registry.Registry) *Server {
	return &Server{
		pop: pop,
		reg: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The endpoint is a local development bridge; origin checks
			// are left to the embedding deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving on the given port. It returns immediately; the
// server runs until Shutdown.
func (s *Server) Start(ctx context.Context, port int) {
	logger := ctxlog.FromContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		s.handleConn(ctx, w, r)
	})

	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("Control server starting", "address", fmt.Sprintf("ws://localhost%s/control", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Control server failed unexpectedly", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the WebSocket handler for embedding in another mux,
// used by tests and by hosts that already run an HTTP server.
func (s *Server) Handler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.handleConn(ctx, w, r)
	}
}

func (s *Server) handleConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(ctx)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed.", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	sessionLogger := logger.With("session", sessionID, "remote_addr", r.RemoteAddr)
	sessionLogger.Info("Control session opened.")

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sessionLogger.Warn("Control session read error.", "error", err)
			}
			break
		}

		reply := s.dispatch(ctxlog.WithLogger(ctx, sessionLogger), sessionID, &msg)
		reply.ID = msg.ID
		reply.Timestamp = time.Now().UnixMilli()
		if err := conn.WriteJSON(reply); err != nil {
			sessionLogger.Warn("Control session write error.", "error", err)
			break
		}
	}
	sessionLogger.Info("Control session closed.")
}
