// Package server exposes the language service over LSP, on stdio for editors
// that spawn the server and over WebSocket for browser editors.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teranos/texcomp/am"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/lsp"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"
)

const (
	// lspPath is where the websocket transport accepts connections
	lspPath = "/lsp"

	shutdownTimeout = 5 * time.Second
)

// TexcompServer serves one language service to LSP clients
type TexcompServer struct {
	service    *lsp.Service
	cfg        am.ServerConfig
	limit      int
	logger     *zap.SugaredLogger
	upgrader   websocket.Upgrader
	httpServer *http.Server

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[*websocket.Conn]string // open websocket connections → connection id
}

// NewTexcompServer creates a server for an initialized service
func NewTexcompServer(service *lsp.Service, cfg am.ServerConfig, limit int, log *zap.SugaredLogger) *TexcompServer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &TexcompServer{
		service: service,
		cfg:     cfg,
		limit:   limit,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*websocket.Conn]string),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// newHandler creates the per-connection protocol handler
func (s *TexcompServer) newHandler(connID string) *GLSPHandler {
	ctx := logger.WithComponent(logger.WithRequestID(s.ctx, connID), "server")
	log := s.logger.With(logger.FieldConnection, connID)
	return NewGLSPHandler(ctx, s.service, s.cfg.MaxDocuments, s.limit, log)
}

// RunStdio serves a single client on stdin/stdout until it disconnects
func (s *TexcompServer) RunStdio() error {
	connID := uuid.New().String()
	handler := s.newHandler(connID)
	defer handler.Release()

	glspServer := glspserver.NewServer(handler.Protocol(), serverName, false)
	s.logger.Infow("Serving LSP over stdio", logger.FieldConnection, connID)
	if err := glspServer.RunStdio(); err != nil {
		return errors.Wrap(err, "stdio transport failed")
	}
	return nil
}

// ListenAndServe serves LSP over WebSocket on the configured address until
// ctx is cancelled
func (s *TexcompServer) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(lspPath, s.HandleGLSPWebSocket)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Serving LSP over WebSocket", "address", s.cfg.Address, "path", lspPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "websocket transport failed on %s", s.cfg.Address)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

// HandleGLSPWebSocket upgrades HTTP to WebSocket and serves LSP protocol
func (s *TexcompServer) HandleGLSPWebSocket(w http.ResponseWriter, r *http.Request) {
	connID := uuid.New().String()
	s.logger.Infow("GLSP WebSocket connection request", "remote", r.RemoteAddr, logger.FieldConnection, connID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("Failed to upgrade WebSocket", logger.FieldError, err)
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close() // Error ignored: server is stopping
		return
	}
	s.conns[conn] = connID
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	handler := s.newHandler(connID)
	defer handler.Release()

	glspServer := glspserver.NewServer(handler.Protocol(), serverName, false)

	// Blocks until the connection closes
	glspServer.ServeWebSocket(conn)

	s.logger.Infow("GLSP WebSocket connection closed", "remote", r.RemoteAddr, logger.FieldConnection, connID)
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to release their documents
func (s *TexcompServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	httpServer := s.httpServer
	for conn := range s.conns {
		_ = conn.Close() // Error ignored: closing to unblock the handler
	}
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		err = httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnw("Timed out waiting for connections to close")
		return errors.Wrap(ctx.Err(), "shutdown timed out")
	}

	if err != nil {
		return errors.Wrap(err, "failed to shut down http server")
	}
	s.logger.Infow("Server stopped")
	return nil
}

// checkOrigin validates WebSocket origin against configured allowed origins
func (s *TexcompServer) checkOrigin(r *http.Request) bool {
	return originAllowed(r.Header.Get("Origin"), s.cfg.AllowedOrigins)
}
