// chatsense - realtime chat server with message intelligence
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatsense/chatsense/internal/analyzer"
	"github.com/chatsense/chatsense/internal/api"
	"github.com/chatsense/chatsense/internal/chat"
	"github.com/chatsense/chatsense/internal/config"
	"github.com/chatsense/chatsense/internal/domain"
	"github.com/chatsense/chatsense/internal/middleware"
	"github.com/chatsense/chatsense/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Analyzer sidecar is optional; the pipeline degrades to neutral
	// analysis when it is absent or down.
	var an analyzer.Analyzer = analyzer.Unavailable()
	if cfg.AnalyzerAddr != "" {
		client, err := analyzer.NewClient(analyzer.ClientConfig{
			Address:        cfg.AnalyzerAddr,
			RequestTimeout: cfg.AnalyzerTimeout,
		}, logger)
		if err != nil {
			slog.Warn("Failed to connect to analyzer, messages will carry neutral analysis", "error", err)
		} else {
			an = client
		}
	} else {
		slog.Info("Analysis disabled (ANALYZER_ADDR not set)")
	}

	// Initialize the chat core.
	registry := chat.NewRegistry()
	limiter := chat.NewLimiter(cfg.RateLimit.PerWindow, cfg.RateLimit.Window, cfg.RateLimit.PerHour, cfg.RateLimit.PerDay)
	aggregator := chat.NewAggregator(repo, cfg.AnalyticsWindow)

	refresh := func(room string, a domain.Analysis) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		defer cancel()
		if err := repo.RecordAnalysis(ctx, room, a, time.Now().UTC()); err != nil {
			slog.Warn("Failed to record analytics buckets", "room", room, "error", err)
		}
	}

	processor := chat.NewProcessor(registry, repo, an, limiter, chat.ProcessorOptions{
		MaxMessageLength: cfg.MaxMessageLength,
		AnalyzerTimeout:  cfg.AnalyzerTimeout,
		StoreTimeout:     cfg.StoreTimeout,
		Refresh:          refresh,
	})

	wsHandler := chat.NewWebSocketHandler(registry, repo, processor, aggregator, limiter, chat.WebSocketHandlerOptions{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		DefaultRoom:   cfg.DefaultRoom,
		HistoryLimit:  cfg.HistoryLimit,
		StoreTimeout:  cfg.StoreTimeout,
	})

	healthHandler := api.NewHealthHandler(repo, an, cfg.StoreTimeout)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	processor.Close()
	slog.Info("Server stopped successfully")
}
