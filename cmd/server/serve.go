package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/doctools/backend/internal/api"
	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/config"
	"github.com/doctools/backend/internal/export"
	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/notify"
	"github.com/doctools/backend/internal/processing"
	"github.com/doctools/backend/internal/session"
	"github.com/doctools/backend/internal/staging"
	"github.com/doctools/backend/internal/storage"
	"github.com/doctools/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var logger = logging.New("server")

func runServe(configPath string) error {
	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.SetLevel(cfg.Advanced.LogLevel)

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	maxTotal, err := cfg.MaxTotalBytes()
	if err != nil {
		return err
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Notifications: log, queryable history, live subscribers
	history, err := notify.NewHistory()
	if err != nil {
		return fmt.Errorf("failed to initialize notification history: %w", err)
	}
	defer history.Close()
	hub := notify.NewHub()

	cat := catalog.Default()
	engine := processing.NewSimulator(cfg.TickInterval(), cfg.Processing.MaxProgressStep)

	sessionMgr := session.NewManager(cat, engine,
		session.WithStore(fileStore),
		session.WithNotifier(notify.Multi(notify.LogSink{}, history, hub)),
		session.WithExporter(export.NewDiscard()),
		session.WithLimits(staging.Limits{
			MaxFiles:      cfg.Staging.MaxFilesPerSession,
			MaxTotalBytes: maxTotal,
		}),
		session.WithMaxSessions(cfg.Processing.MaxSessions),
		session.WithCloseHook(func(id string) {
			if err := history.Purge(context.Background(), id); err != nil {
				logger.Warnf("[Session %s] failed to purge notifications: %v", logging.ShortID(id), err)
			}
			if err := fileStore.DiscardChunks(id); err != nil {
				logger.Warnf("[Session %s] failed to discard pending uploads: %v", logging.ShortID(id), err)
			}
		}),
		session.WithCloseHook(hub.Drop),
	)

	// Initialize upload processing manager
	uploadMgr := upload.NewManager(fileStore, sessionMgr)

	// Start background cleanup
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessions := sessionMgr.CleanupOldSessions(cfg.SessionTimeout())
				jobs := uploadMgr.CleanupOldJobs(cfg.SessionTimeout())
				chunks := fileStore.CleanupStaleChunks(cfg.SessionTimeout())
				if sessions+jobs+chunks > 0 {
					logger.Infof("[Cleanup] removed %d session(s), %d upload job(s), %d stale upload(s)", sessions, jobs, chunks)
				}
			case <-stopCleanup:
				return
			}
		}
	}()
	defer close(stopCleanup)

	e := newEcho(cfg)
	api.SetupMiddleware(e, cfg.Advanced.ExposeErrorDetails)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:      fileStore,
		Catalog:    cat,
		SessionMgr: sessionMgr,
		UploadMgr:  uploadMgr,
		Feed:       hub,
		History:    history,
		Version:    Version,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg, cat.Len())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.StartServer(s)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-quit:
		logger.Infof("[Server] received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Warnf("[Server] shutdown: %v", err)
	}
	sessionMgr.Shutdown()
	uploadMgr.Wait()
	return nil
}

func newEcho(cfg *config.AppConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logging.ParseLevel(cfg.Advanced.LogLevel))

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				strings.HasSuffix(path, "/ws") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				strings.HasSuffix(path, "/ws") ||
				strings.Contains(path, "/files") ||
				strings.Contains(path, "/uploads") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/ws") ||
					strings.HasSuffix(path, "/progress") ||
					c.Request().Header.Get("Accept") == "text/event-stream"
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	return e
}

func printBanner(configPath string, cfg *config.AppConfig, tools int) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           DocTools Server                                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Tools:      %-45d║\n", tools)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
