package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"
	"roomwire/internal/api"
	"roomwire/internal/auth"
	"roomwire/internal/config"
	"roomwire/internal/database"
	"roomwire/internal/janitor"
	"roomwire/internal/moderation"
	"roomwire/internal/session"
	"roomwire/internal/websocket"
	pkgdatabase "roomwire/pkg/database"
)

// Application coordinates all system components.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	sessions   *session.Manager
	registry   *websocket.Registry
	wsHandler  *websocket.Handler
	tokens     *auth.TokenManager
	moderator  *moderation.Moderator
	janitor    *janitor.Janitor
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication builds every component in dependency order:
// Database → Auth → Moderation → Session → Registry → Handler → API → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	if err := dbManager.Migrate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	tokens := auth.NewTokenManager(auth.Config{
		SecretKey: cfg.Auth.SecretKey,
		Issuer:    cfg.Auth.Issuer,
		TokenTTL:  cfg.Auth.TokenTTL,
	})
	resolver := auth.NewResolver(tokens, dbManager)

	limiter := moderation.NewRateLimiter()
	moderator := moderation.NewModerator(moderation.Config{
		RateLimitPerMinute: cfg.Moderation.RateLimitPerMinute,
		MaxMessageLength:   cfg.Moderation.MaxMessageLength,
		BannedWords:        cfg.Moderation.BannedWords,
	}, limiter)

	sessions := session.NewManager(dbManager)
	registry := websocket.NewRegistry()

	wsHandler := websocket.NewHandler(websocket.Dependencies{
		Registry:  registry,
		Identity:  resolver,
		Rooms:     dbManager,
		Messages:  dbManager,
		Settings:  dbManager,
		Sessions:  sessions,
		Moderator: moderator,
	}, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		AuthTimeout:    cfg.WebSocket.AuthTimeout,
		ProcessTimeout: cfg.Database.Timeout,
		SendBuffer:     cfg.WebSocket.BufferSize,
		MaxFrameBytes:  cfg.WebSocket.MaxFrameBytes,
	})

	apiServer := api.NewServer(dbManager, registry, resolver, moderator)
	apiServer.SetSessionCounter(sessions)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("GET /ws/{room_id}", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		sessions:   sessions,
		registry:   registry,
		wsHandler:  wsHandler,
		tokens:     tokens,
		moderator:  moderator,
		janitor:    janitor.New(limiter, registry, cfg.Moderation.JanitorInterval, cfg.Moderation.TypingTTL),
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start binds the listener, starts the janitor and serves in the background.
// A bind failure is returned synchronously.
func (app *Application) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln

	if err := app.janitor.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start janitor: %w", err)
	}

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("roomwire listening on %s", ln.Addr())
	return nil
}

// Run starts the application and blocks until ctx ends, then shuts down
// within the configured shutdown timeout.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = ln
	log.Printf("roomwire listening on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.janitor.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownTimeout)
		defer cancel()
		return app.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Stop shuts down in reverse dependency order: HTTP → connections → janitor →
// database. Open connections are closed with 1001 and their session time is
// recorded before the database closes.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down roomwire")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if n := app.registry.CloseAll(websocket.CloseGoingAway, "Server shutting down"); n > 0 {
		log.Printf("Closed %d websocket connections", n)
	}
	if err := app.wsHandler.Drain(ctx); err != nil {
		log.Printf("Timed out waiting for connections to finish: %v", err)
	}

	if err := app.janitor.Stop(); err != nil && !errors.Is(err, janitor.ErrNotRunning) {
		log.Printf("Janitor shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("roomwire shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, else the configured one.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler returns the root HTTP handler, for serving under a test server.
func (app *Application) Handler() http.Handler { return app.httpServer.Handler }

// Database exposes the storage manager for seeding and operator commands.
func (app *Application) Database() *database.Manager { return app.dbManager }

// Tokens exposes the token manager for issuing operator tokens.
func (app *Application) Tokens() *auth.TokenManager { return app.tokens }

// Registry exposes the live connection registry.
func (app *Application) Registry() *websocket.Registry { return app.registry }
