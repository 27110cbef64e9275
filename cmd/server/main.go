package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NotifyAdmin/internal/api"
	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/cache"
	"NotifyAdmin/internal/config"
	"NotifyAdmin/internal/content"
	"NotifyAdmin/internal/db"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/notifyapi"
	"NotifyAdmin/internal/send"
	"NotifyAdmin/internal/session"
	"NotifyAdmin/internal/uploads"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.IsDevelopment() {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Redis (token cache, content cache, sessions)
	// ------------------------------------------------
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	redisCache := cache.New(rdb, cfg.CacheTimeout, logger)

	// ------------------------------------------------
	// Sessions
	// ------------------------------------------------
	var sessionStore session.Store = session.NewRedisStore(rdb)
	if cfg.SessionBackend == "postgres" {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()

		purged, err := pg.PurgeExpired(ctx)
		if err != nil {
			logger.Warn("purge expired sessions failed", zap.Error(err))
		} else {
			logger.Info("expired sessions purged", zap.Int64("count", purged))
		}
		sessionStore = pg
	}

	sessions := session.NewManager(sessionStore, cfg.SessionTTL, cfg.SessionCookieName, cfg.SessionCookieSecure, logger)

	// ------------------------------------------------
	// Upload Storage
	// ------------------------------------------------
	store, err := uploads.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("upload storage init failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Backends
	// ------------------------------------------------
	notify := notifyapi.New(cfg, redisCache, logger)
	pages := content.New(cfg.ContentAPIURL, cfg.ContentTimeout, cfg.ContentCacheTTL, redisCache, logger)

	catalogue, err := banners.LoadCatalogue()
	if err != nil {
		logger.Fatal("banner catalogue failed to load", zap.Error(err))
	}

	// ------------------------------------------------
	// HTTP Server
	// ------------------------------------------------
	handler := &api.Handler{
		Send:      send.New(notify, store, send.SettingsFromConfig(cfg), logger),
		Jobs:      notify,
		Pages:     pages,
		Sessions:  sessions,
		Catalogue: catalogue,
		Checks: map[string]api.Check{
			"redis":   redisCache.Ping,
			"uploads": store.Health,
		},
		Log:            logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Dev:            cfg.IsDevelopment(),
	}

	routes, err := handler.Routes()
	if err != nil {
		logger.Fatal("templates failed to parse", zap.Error(err))
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: routes,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
