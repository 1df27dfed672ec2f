package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/docgate/internal/audit"
	"github.com/nerrad567/docgate/internal/auth"
	"github.com/nerrad567/docgate/internal/document"
	"github.com/nerrad567/docgate/internal/infrastructure/config"
	"github.com/nerrad567/docgate/internal/infrastructure/logging"
	"github.com/nerrad567/docgate/internal/site"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Routes        config.RoutesConfig
	Logger        *logging.Logger
	Classifier    *auth.RouteClassifier
	Extractor     *auth.TokenExtractor
	Tokens        *auth.TokenService
	Hasher        *auth.PasswordHasher
	Authenticator *auth.Authenticator
	Documents     *document.Store
	AuditRepo     audit.Repository // optional: nil disables the audit trail
	Hub           *Hub             // optional: created by New when nil
	Metrics       AuthMetrics      // optional: nil disables usage metrics
	Version       string
}

// AuthMetrics receives one call per authentication decision.
type AuthMetrics interface {
	WriteAuthEvent(action, source string)
}

// Server is the docgate HTTP server.
//
// It owns the HTTP listener, the route table, and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	routes        config.RoutesConfig
	logger        *logging.Logger
	classifier    *auth.RouteClassifier
	extractor     *auth.TokenExtractor
	tokens        *auth.TokenService
	hasher        *auth.PasswordHasher
	authenticator *auth.Authenticator
	documents     *document.Store
	auditRepo     audit.Repository
	auditCh       chan *audit.Entry
	metrics       AuthMetrics
	guard         *UpgradeGuard
	version       string
	server        *http.Server
	hub           *Hub
	externalHub   bool               // true if hub was injected externally
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("route classifier is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("token extractor is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token service is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("password hasher is required")
	case deps.Authenticator == nil:
		return nil, fmt.Errorf("authenticator is required")
	case deps.Documents == nil:
		return nil, fmt.Errorf("document store is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		routes:        deps.Routes,
		logger:        deps.Logger.With("component", "api"),
		classifier:    deps.Classifier,
		extractor:     deps.Extractor,
		tokens:        deps.Tokens,
		hasher:        deps.Hasher,
		authenticator: deps.Authenticator,
		documents:     deps.Documents,
		auditRepo:     deps.AuditRepo,
		metrics:       deps.Metrics,
		version:       deps.Version,
		hub:           deps.Hub,
		externalHub:   deps.Hub != nil,
	}

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}

	s.guard = NewUpgradeGuard(s.extractor, s.tokens, s.hub, s.wsCfg, s.logger)
	s.guard.audit = s.auditLog

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected), the audit writer, and the
// HTTP listener in background goroutines. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	if site.OnDisk(s.cfg.StaticDir) {
		s.logger.Info("serving pages from directory", "dir", s.cfg.StaticDir)
	} else {
		s.logger.Info("serving built-in pages", "static_dir", s.cfg.StaticDir)
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, audit writer)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// handleHealth reports liveness. It is served outside the gate.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"ws_clients": s.hub.ClientCount(),
	})
}
