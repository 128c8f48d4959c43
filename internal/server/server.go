package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/sysrev/internal/api"
	"github.com/jackzampolin/sysrev/internal/config"
	"github.com/jackzampolin/sysrev/internal/extract"
	"github.com/jackzampolin/sysrev/internal/home"
	"github.com/jackzampolin/sysrev/internal/llmcall"
	"github.com/jackzampolin/sysrev/internal/metrics"
	"github.com/jackzampolin/sysrev/internal/prompts"
	promptx "github.com/jackzampolin/sysrev/internal/prompts/extraction"
	"github.com/jackzampolin/sysrev/internal/providers"
	"github.com/jackzampolin/sysrev/internal/server/endpoints"
	"github.com/jackzampolin/sysrev/internal/store"
	"github.com/jackzampolin/sysrev/internal/svcctx"
)

// Server is the sysrev HTTP server.
// It opens the extraction store on start and closes it on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	prompts    *prompts.Registry
	metrics    *metrics.Collectors
	configMgr  *config.Manager
	home       *home.Dir
	fetch      *http.Client
	logger     *slog.Logger

	maxUploadBytes int64
	requestTimeout time.Duration

	// set by Init
	db        *store.DB
	extractor *extract.Extractor

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config, then 127.0.0.1)
	Host string
	// Port is the port to listen on (default: server.port from config, then 8080)
	Port string
	// Home is the sysrev home directory (default: $SYSREV_HOME or ~/.sysrev)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Registry overrides the config-driven provider registry
	Registry *providers.Registry
	// FetchClient is used for URL ingestion
	FetchClient *http.Client
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	appCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	registry := cfg.Registry
	if registry == nil {
		registry = providers.NewRegistry()
		registry.SetLogger(cfg.Logger)
		registry.Reload(appCfg.ToProviderRegistryConfig())
	}

	promptRegistry := prompts.NewRegistry(cfg.Logger)
	promptx.RegisterPrompts(promptRegistry)

	s := &Server{
		registry:       registry,
		prompts:        promptRegistry,
		metrics:        metrics.New(),
		configMgr:      cfg.ConfigManager,
		home:           cfg.Home,
		fetch:          cfg.FetchClient,
		logger:         cfg.Logger,
		maxUploadBytes: int64(appCfg.Server.MaxUploadMB) << 20,
		requestTimeout: time.Duration(appCfg.Server.RequestTimeout) * time.Second,
	}

	// Provider and default changes apply without a restart.
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(s.applyConfig)
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 2 * time.Minute,
		IdleTimeout: 120 * time.Second,
	}
	// One extraction is a single long model call.
	if s.requestTimeout > 0 {
		s.httpServer.WriteTimeout = s.requestTimeout + 30*time.Second
	}

	return s, nil
}

// Init opens the store and builds the extraction services. Start calls it;
// tests may call it directly and drive Handler with httptest.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.services != nil {
		return nil
	}

	appCfg := config.DefaultConfig()
	if s.configMgr != nil {
		appCfg = s.configMgr.Get()
	}

	dbPath := appCfg.Storage.DBPath
	if dbPath == "" {
		dbPath = s.home.DBPath()
	}
	s.logger.Info("opening extraction store", "path", dbPath)
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("store health check failed: %w", err)
	}

	callStore := llmcall.NewStore(db)
	extractor, err := extract.New(extract.Config{
		Clients:  s.registry,
		Store:    db,
		Recorder: llmcall.NewRecorder(callStore, s.logger),
		Metrics:  s.metrics,
		Logger:   s.logger,
		Defaults: extract.DefaultsFromConfig(appCfg),
	})
	if err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.extractor = extractor
	s.services = &svcctx.Services{
		Registry:      s.registry,
		Extractor:     extractor,
		Store:         db,
		LLMCallStore:  callStore,
		MetricsQuery:  metrics.NewQuery(db),
		Metrics:       s.metrics,
		Prompts:       s.prompts,
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.home,
		FetchClient:   s.fetch,
	}
	return nil
}

// Start initializes the services and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		s.setNotRunning()
		return err
	}
	if names := s.registry.ListLLM(); len(names) == 0 {
		s.logger.Warn("no LLM providers loaded; set an API key (e.g. OPENAI_API_KEY) to enable extraction")
	} else {
		s.logger.Info("LLM providers loaded", "providers", names)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server and the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

// Close releases the store opened by Init.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.extractor = nil
	s.services = nil
	return err
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// applyConfig reloads providers and extraction defaults after a config change.
func (s *Server) applyConfig(c *config.Config) {
	s.registry.Reload(c.ToProviderRegistryConfig())

	s.mu.RLock()
	extractor := s.extractor
	s.mu.RUnlock()
	if extractor != nil {
		extractor.SetDefaults(extract.DefaultsFromConfig(c))
	}
	s.logger.Info("configuration reloaded", "providers", s.registry.ListLLM())
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Metrics returns the Prometheus collectors.
func (s *Server) Metrics() *metrics.Collectors {
	return s.metrics
}

// Extractor returns the extraction pipeline.
// Returns nil if the server hasn't been initialized yet.
func (s *Server) Extractor() *extract.Extractor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extractor
}
