package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"courier/internal/api"
	"courier/internal/badgerstore"
	"courier/internal/config"
	"courier/internal/database"
	"courier/internal/hub"
	"courier/internal/identity"
	"courier/internal/presence"
	"courier/internal/retention"
	"courier/internal/router"
	"courier/internal/websocket"
	"courier/pkg/interfaces"
	pkgdatabase "courier/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	log        logrus.FieldLogger
	store      interfaces.Store
	directory  *presence.Directory
	retention  *retention.Manager
	messageHub *hub.Hub
	wsHandler  *websocket.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Store → Directory → Router/Retention → Hub → WebSocket → Identity/API → HTTP
func NewApplication(cfg *config.Config, log logrus.FieldLogger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Open the store selected by the connection string (foundation layer)
	store, err := OpenStore(cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// STEP 2: Presence directory publishes every change to all connected sessions
	directory := presence.NewDirectory(presence.NewBroadcaster(log), log)

	// STEP 3: Delivery and acknowledgment both sit directly on the message store
	messageRouter := router.NewRouter(directory, store, log)
	retentionManager := retention.NewManager(store, retention.Config{
		MaxAge:        cfg.Retention.MaxAge,
		SweepInterval: cfg.Retention.SweepInterval,
	}, log)

	// STEP 4: Hub owns directory mutations and event dispatch
	messageHub := hub.NewHub(directory, messageRouter, retentionManager, log)

	// STEP 5: WebSocket handler feeds frames into the hub
	wsHandler := websocket.NewHandler(messageHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, log)

	// STEP 6: HTTP surface
	identities := identity.NewManager(store, log)
	apiServer := api.NewServer(identities, directory, store, http.HandlerFunc(wsHandler.HandleWebSocket), cfg.Store.HistoryLimit, log)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		log:        log.WithField("component", "app"),
		store:      store,
		directory:  directory,
		retention:  retentionManager,
		messageHub: messageHub,
		wsHandler:  wsHandler,
		httpServer: httpServer,
	}, nil
}

// OpenStore opens the backend named by the store connection string
func OpenStore(cfg *config.StoreConfig, log logrus.FieldLogger) (interfaces.Store, error) {
	driver, path, err := pkgdatabase.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	switch driver {
	case pkgdatabase.DriverBadger:
		return badgerstore.Open(path, log)
	default:
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = path
		dbConfig.WriteTimeout = cfg.Timeout
		return database.NewManager(dbConfig, log)
	}
}

// Start begins application execution
// Hub and sweeper start first to handle events, then the listener accepts connections.
// Start returns once the listener is bound; Wait reports a later serve failure.
func (app *Application) Start(ctx context.Context) error {
	// STEP 1: Start message hub (background event processing)
	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Start the retention sweeper
	if err := app.retention.Start(ctx); err != nil {
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to start retention sweeper: %w", err)
	}

	// STEP 3: Bind before returning so callers know the address is live
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.retention.Stop()
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	serveErr := make(chan error, 1)
	app.mu.Lock()
	app.listener = listener
	app.serveErr = serveErr
	app.mu.Unlock()

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(serveErr)
	}()

	app.log.WithField("addr", listener.Addr().String()).Info("Courier started")
	return nil
}

// Wait blocks until the HTTP server stops, returning its error if it failed
func (app *Application) Wait() error {
	app.mu.Lock()
	serveErr := app.serveErr
	app.mu.Unlock()

	if serveErr == nil {
		return nil
	}
	return <-serveErr
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → WebSocket → Hub → Sweeper → Store
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("Shutting down Courier")
	var errs []error

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// STEP 2: Hijacked websocket connections are not covered by Shutdown.
	// Their read loops still call Disconnect, so the hub must outlive them.
	if err := app.wsHandler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}

	// STEP 3: Stop event processing and the sweeper
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("message hub shutdown: %w", err))
	}
	if err := app.retention.Stop(); err != nil && !errors.Is(err, retention.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("retention shutdown: %w", err))
	}

	// STEP 4: Close the store last so in-flight writes complete
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store shutdown: %w", err))
	}

	for _, err := range errs {
		app.log.WithError(err).Error("Shutdown step failed")
	}
	app.log.Info("Courier shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listener address, or the configured one before Start
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Directory exposes the presence directory for diagnostics
func (app *Application) Directory() *presence.Directory {
	return app.directory
}
