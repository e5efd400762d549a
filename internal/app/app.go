// Package app orchestrates all components of notepadtt.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brianly1003/notepadtt/internal/adapters/watcher"
	"github.com/brianly1003/notepadtt/internal/config"
	"github.com/brianly1003/notepadtt/internal/content"
	"github.com/brianly1003/notepadtt/internal/hub"
	"github.com/brianly1003/notepadtt/internal/infostate"
	"github.com/brianly1003/notepadtt/internal/marker"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/brianly1003/notepadtt/internal/pairing"
	"github.com/brianly1003/notepadtt/internal/rpc"
	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/handler/methods"
	"github.com/brianly1003/notepadtt/internal/security"
	httpserver "github.com/brianly1003/notepadtt/internal/server/http"
	"github.com/brianly1003/notepadtt/internal/storage"
	"github.com/brianly1003/notepadtt/internal/subscription"
	"github.com/brianly1003/notepadtt/internal/sync"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// App is the main application struct that orchestrates all components.
type App struct {
	cfg     *config.Config
	version string
	logger  *slog.Logger

	// Core components
	dir         *storage.Dir
	state       *infostate.State
	content     *content.Service
	subs        *subscription.Registry
	hub         *hub.Hub
	fileWatcher *watcher.Watcher
	registry    *handler.Registry
	rpcServer   *rpc.Server
	httpServer  *httpserver.Server
	qrGenerator *pairing.QRGenerator

	// out receives the startup banner
	out io.Writer

	instanceID string
	startTime  time.Time
	ready      chan struct{}

	// Lifecycle
	mu      sync.RWMutex
	running bool
}

// New creates a new App instance and wires its components. Nothing touches
// the disk or the network until Start.
func New(cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:        cfg,
		version:    version,
		logger:     logger,
		out:        os.Stdout,
		instanceID: uuid.New().String(),
		ready:      make(chan struct{}),
	}

	a.dir = storage.New(cfg.Storage.DataDir, storage.Filter{
		Include:     cfg.Storage.IncludePatterns,
		Exclude:     cfg.Storage.ExcludePatterns,
		MaxFileSize: cfg.Storage.MaxFileSizeBytes(),
	})

	window := cfg.Watcher.SelfWriteWindow()
	a.state = infostate.New(a.dir, metadata.NewStore(cfg.Storage.DataDir), marker.NewTracker(window))
	a.content = content.New(a.state, a.dir, marker.NewTracker(window), cfg.Limits.MaxContentBytes())
	a.subs = subscription.NewRegistry()
	a.hub = hub.New()

	if cfg.Watcher.Enabled {
		a.fileWatcher = watcher.New(a.dir, a.state, a.content, a.subs, a.hub, watcher.Options{
			Debounce:        cfg.Watcher.Debounce(),
			MaxReadAttempts: cfg.Watcher.MaxReadAttempts,
			RetryBase:       cfg.Watcher.RetryBase(),
			RetryStep:       cfg.Watcher.RetryStep(),
			RenameWindow:    window,
		})
	}

	a.qrGenerator = pairing.NewQRGenerator(cfg.Server.Host, cfg.Server.Port)
	if cfg.Server.ExternalURL != "" {
		a.qrGenerator.SetExternalURL(cfg.Server.ExternalURL)
	}

	// RPC methods
	tabs := methods.NewTabsService(a.state, a.content, a.subs, a.hub)
	a.registry = handler.NewRegistry()
	a.registry.Use(handler.RecoverMiddleware)
	a.registry.Use(handler.LoggingMiddleware)
	a.registry.RegisterService(tabs)
	a.registry.RegisterService(methods.NewDiscoverService(a.registry, handler.OpenRPCInfo{
		Title:       "notepadtt",
		Description: "JSON-RPC 2.0 API for synchronizing notepad tabs",
		Version:     version,
	}, a.qrGenerator.Info().WebSocket))

	a.rpcServer = rpc.NewServer(handler.NewDispatcher(a.registry), a.hub, tabs)

	a.httpServer = httpserver.NewServer(httpserver.Options{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		StaticDir:      cfg.Server.StaticDir,
		MaxMessageSize: int64(a.content.MaxBytes()) * 2,
		ReadTimeout:    cfg.Server.ReadTimeout(),
		WriteTimeout:   cfg.Server.WriteTimeout(),
		Origins:        security.ForBindAddress(cfg.Server.Host, cfg.Server.AllowedOrigins),
	}, a.content, a.rpcServer, a.registry, a.qrGenerator, logger)

	return a, nil
}

// Start starts the application and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	// Clients see an unusable data directory in the connect snapshot.
	if err := a.dir.Ensure(); err != nil {
		log.Warn().Err(err).Str("data_dir", a.dir.Root()).Msg("failed to create data directory")
	}

	if err := a.hub.Start(); err != nil {
		a.setStopped()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	if a.fileWatcher != nil {
		if err := a.fileWatcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to start file watcher")
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.stopComponents()
		a.setStopped()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	close(a.ready)

	log.Info().
		Str("instance_id", a.instanceID).
		Str("version", a.version).
		Str("addr", a.httpServer.Addr()).
		Msg("notepadtt started")

	a.printConnectionInfo()

	<-ctx.Done()
	return a.shutdown()
}

// Ready is closed once the HTTP listener is bound.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound HTTP address. Valid after Ready is closed.
func (a *App) Addr() string {
	return a.httpServer.Addr()
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping HTTP server")
	}

	a.stopComponents()
	return nil
}

func (a *App) stopComponents() {
	if a.fileWatcher != nil {
		if err := a.fileWatcher.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping file watcher")
		}
	}
	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}
}

func (a *App) setStopped() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// IsRunning reports whether Start is in progress.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// UptimeSeconds returns how long the app has been running.
func (a *App) UptimeSeconds() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(a.startTime).Seconds())
}

// GetConfig returns the configuration.
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// printConnectionInfo prints connection information to the console.
func (a *App) printConnectionInfo() {
	info := a.qrGenerator.Info()
	w := a.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                     notepadtt ready                        ║")
	fmt.Fprintln(w, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Data dir:   %-46s ║\n", truncateString(a.dir.Root(), 46))
	fmt.Fprintf(w, "║  Notepad:    %-46s ║\n", truncateString(info.UI, 46))
	fmt.Fprintf(w, "║  WebSocket:  %-46s ║\n", truncateString(info.WebSocket, 46))
	if a.cfg.Server.ExternalURL != "" {
		fmt.Fprintln(w, "║  (using external URL for port forwarding)                  ║")
	}
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	if a.cfg.Server.ShowQR {
		a.qrGenerator.PrintToTerminal(w)
	}
}

// truncateString shortens s to maxLen characters, keeping the tail.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[len(s)-maxLen:]
	}
	return "..." + s[len(s)-maxLen+3:]
}
