package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"tutorhub/internal/ai"
	"tutorhub/internal/api"
	"tutorhub/internal/auth"
	"tutorhub/internal/broadcast"
	"tutorhub/internal/config"
	"tutorhub/internal/database"
	"tutorhub/internal/hub"
	"tutorhub/internal/session"
	"tutorhub/internal/websocket"
)

// Application wires the components together and owns their lifecycle.
// Initialization order: Store → Registries → Broadcaster → Hub → API → HTTP.
// Shutdown runs in reverse so nothing writes to a closed dependency.
type Application struct {
	config      *config.Config
	store       *database.Store
	sessions    *session.Registry
	connections *websocket.Registry
	eventHub    *hub.Hub
	httpServer  *http.Server
}

// NewApplication builds the component graph from a validated configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	sessions := session.NewRegistry(session.Config{
		CleanupGrace:   cfg.Session.CleanupGrace,
		MemoryCapacity: cfg.Session.MemoryCapacity,
		PresenceTTL:    cfg.Session.PresenceTTL,
	})

	// Torn-down sessions get their end time persisted off the live path.
	sessions.SetOnEnd(func(s *session.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.MarkSessionEnded(ctx, s.ID); err != nil {
			log.Printf("Failed to mark session %s ended: %v", s.ID, err)
		}
	})

	connections := websocket.NewRegistry()
	caster := broadcast.New(connections)

	aiClient := ai.NewClient(cfg.AI.GenerateURL, cfg.AI.VoiceURL, cfg.AI.Timeout)

	eventHub := hub.New(sessions, connections, caster, store, aiClient, aiClient, hub.Config{
		GenerationTimeout:  cfg.AI.Timeout,
		DeliveryTimeout:    cfg.AI.DeliveryTimeout,
		RateLimitPerMinute: cfg.Session.RateLimitPerMinute,
	})

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.Secret))
	wsHandler := websocket.NewHandler(verifier, eventHub, cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout)

	apiServer := api.NewServer(sessions, store, connections)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       store,
		sessions:    sessions,
		connections: connections,
		eventHub:    eventHub,
		httpServer:  httpServer,
	}, nil
}

// Start launches the HTTP server and verifies it came up.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting tutorhub on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("tutorhub started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order: HTTP stops
// accepting traffic, sessions close (flushing in-flight work), then the
// store drains its write queue.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down tutorhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.eventHub.Close()
	app.sessions.Close()

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("tutorhub shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
