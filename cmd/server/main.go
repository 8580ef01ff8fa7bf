package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmuslimabdulj/goat-whisper/internal/auth"
	"github.com/mmuslimabdulj/goat-whisper/internal/config"
	httpHandler "github.com/mmuslimabdulj/goat-whisper/internal/delivery/http"
	"github.com/mmuslimabdulj/goat-whisper/internal/delivery/ws"
	"github.com/mmuslimabdulj/goat-whisper/internal/encryption"
	"github.com/mmuslimabdulj/goat-whisper/internal/logging"
	"github.com/mmuslimabdulj/goat-whisper/internal/metrics"
	"github.com/mmuslimabdulj/goat-whisper/internal/middleware"
	"github.com/mmuslimabdulj/goat-whisper/internal/presence"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/accounts"
	"github.com/mmuslimabdulj/goat-whisper/internal/repository/messages"
	"github.com/mmuslimabdulj/goat-whisper/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) (err error) {
	cipher, err := encryption.New([]byte(cfg.EncryptionKey), []byte(cfg.EncryptionIV))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	// Storage
	kv, err := messages.Open(cfg.BadgerPath, log)
	if err != nil {
		return fmt.Errorf("open message store: %w", err)
	}
	defer func() { err = multierr.Append(err, kv.Close()) }()

	db, err := accounts.Open(cfg.DatabasePath, logger.Warn)
	if err != nil {
		return fmt.Errorf("open account database: %w", err)
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			err = multierr.Append(err, sqlDB.Close())
		}
	}()

	repo := accounts.NewRepository(db)
	// Nobody is connected yet, flags left over from a crash are stale
	if n, err := repo.ResetPresence(context.Background()); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	} else if n > 0 {
		log.Info("cleared stale presence flags", zap.Int64("accounts", n))
	}

	authn, err := auth.NewAuthenticator(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	m.Register(reg)

	// Initialize dependencies
	registry := presence.NewRegistry()
	router := usecase.NewRouter(usecase.RouterDeps{
		Store:            messages.NewStore(kv, log),
		Accounts:         accounts.NewCachedDirectory(repo, cfg.AccountCacheTTL),
		Cipher:           cipher,
		Registry:         registry,
		Metrics:          m,
		Log:              log,
		MaxContentLength: cfg.MaxContentLength,
	})
	manager := ws.NewManager(ws.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		EventsPerSecond:  cfg.RateLimitEvents,
		SendBufferSize:   cfg.SendBufferSize,
		MaxMessageSize:   cfg.MaxMessageSize,
	}, authn, registry, router, m, log)
	handler := httpHandler.NewHandler(manager, authn, m, cfg.AllowedOrigins, log)

	wsLimiter := middleware.NewIPRateLimiter(cfg.WSLimit(), cfg.RateLimitWS*2)
	apiLimiter := middleware.NewIPRateLimiter(cfg.APILimit(), cfg.RateLimitAPI*2)

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", middleware.RateLimitFunc(wsLimiter, log, handler.HandleWebSocket))
	mux.HandleFunc("/healthz", middleware.RateLimitFunc(apiLimiter, log, handler.HandleHealth))
	mux.Handle("/metrics", middleware.RateLimitMiddleware(apiLimiter, log)(metrics.Handler(reg)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.RequestLogger(log)(middleware.SecurityHeaders(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("goat-whisper listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http server forced to shutdown", zap.Error(err))
	}
	// Hijacked websocket connections are not tracked by the http server
	manager.Shutdown()
	if err := manager.Wait(ctx); err != nil {
		log.Warn("connections still open at exit", zap.Int("count", manager.ConnectionCount()))
	}

	log.Info("server exited gracefully")
	return nil
}
