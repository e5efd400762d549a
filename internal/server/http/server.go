// Package http serves the tab synchronization endpoint, the content API and
// the optional static UI.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/pairing"
	"github.com/brianly1003/notepadtt/internal/rpc"
	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/transport"
	"github.com/brianly1003/notepadtt/internal/security"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// ContentLoader reads a tab's text by file id.
type ContentLoader interface {
	Load(fileID string) (*domain.TabContent, error)
}

// Options configures the HTTP server.
type Options struct {
	Host string
	Port int

	// StaticDir, when set, is served at "/".
	StaticDir string

	// MaxMessageSize caps one incoming WebSocket message.
	MaxMessageSize int64

	// ReadTimeout and WriteTimeout override the WebSocket deadlines when set.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Origins filters browser origins on /ws and in CORS responses.
	// Nil accepts every origin.
	Origins *security.OriginChecker
}

// Server is the HTTP/WebSocket server.
type Server struct {
	opts      Options
	content   ContentLoader
	rpcServer *rpc.Server
	registry  *handler.Registry
	qr        *pairing.QRGenerator
	logger    *slog.Logger

	router     *mux.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	// Active connections counter
	mu          sync.RWMutex
	connections int
}

// NewServer creates a new HTTP server. registry and qr may be nil.
func NewServer(opts Options, content ContentLoader, rpcServer *rpc.Server, registry *handler.Registry, qr *pairing.QRGenerator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Origins == nil {
		opts.Origins = security.NewOriginChecker(nil, false)
	}
	s := &Server{
		opts:      opts,
		content:   content,
		rpcServer: rpcServer,
		registry:  registry,
		qr:        qr,
		logger:    logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     opts.Origins.CheckOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tabs/{id}", s.handleGetTab).Methods("GET")
	api.HandleFunc("/rpc/discover", s.handleOpenRPCDiscover).Methods("GET")
	if s.qr != nil {
		api.HandleFunc("/qr", s.handleQR).Methods("GET")
	}

	// JSON-RPC 2.0 over WebSocket
	router.HandleFunc("/ws", s.handleWebSocket)

	if s.opts.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir))).Methods("GET", "HEAD")
	}
	return router
}

// Handler returns the root handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.opts.Origins, s.router)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.opts.StaticDir != "" {
		if fi, err := os.Stat(s.opts.StaticDir); err != nil || !fi.IsDir() {
			s.logger.Warn("Static UI directory is not usable", "dir", s.opts.StaticDir, "error", err)
		}
	}

	addr := net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	if err := s.rpcServer.Stop(); err != nil {
		s.logger.Error("Error stopping RPC server", "error", err)
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "notepadtt",
		"connections": s.rpcServer.ClientCount(),
		"timestamp":   time.Now().Unix(),
	})
}

// handleGetTab handles GET /api/tabs/{id}. Unknown ids get the blank body.
func (s *Server) handleGetTab(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	content, err := s.content.Load(id)
	if err != nil {
		s.logger.Error("Failed to load tab content", "file_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load tab content")
		return
	}
	s.respondJSON(w, http.StatusOK, content)
}

// handleOpenRPCDiscover serves the OpenRPC description of the WebSocket API.
func (s *Server) handleOpenRPCDiscover(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.respondError(w, http.StatusNotFound, "no method registry")
		return
	}

	spec := s.registry.GenerateOpenRPC(handler.OpenRPCInfo{
		Title:       "notepadtt",
		Description: "JSON-RPC 2.0 API for synchronizing notepad tabs",
		Version:     "1.0.0",
	}, wsURL(r))

	data, err := spec.ToJSON()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleQR serves a PNG QR code of the UI address.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	png, err := s.qr.GeneratePNG(256)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// handleWebSocket handles WebSocket connections for JSON-RPC
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade WebSocket", "error", err)
		return
	}

	var opts []transport.WebSocketOption
	if s.opts.MaxMessageSize > 0 {
		opts = append(opts, transport.WithMaxMessageSize(s.opts.MaxMessageSize))
	}
	if s.opts.ReadTimeout > 0 {
		opts = append(opts, transport.WithReadTimeout(s.opts.ReadTimeout))
	}
	if s.opts.WriteTimeout > 0 {
		opts = append(opts, transport.WithWriteTimeout(s.opts.WriteTimeout))
	}
	wsTransport := transport.NewWebSocketTransport(conn, opts...)
	info := wsTransport.Info()

	s.mu.Lock()
	s.connections++
	connNum := s.connections
	s.mu.Unlock()

	s.logger.Info("WebSocket client connected",
		"client_id", wsTransport.ID(),
		"remote_addr", info.RemoteAddr,
		"connection", connNum,
	)

	err = s.rpcServer.ServeTransport(context.Background(), wsTransport)

	s.logger.Info("WebSocket client disconnected",
		"client_id", wsTransport.ID(),
		"error", err,
	)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

func wsURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/ws"
}

// corsMiddleware adds CORS headers for allowed origins.
func corsMiddleware(origins *security.OriginChecker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origins.Allow(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
