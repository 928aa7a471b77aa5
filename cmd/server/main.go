package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/cache"
	"chatrelay/internal/config"
	"chatrelay/internal/handler"
	"chatrelay/internal/observability"
	"chatrelay/internal/repository"
	"chatrelay/internal/repository/memory"
	"chatrelay/internal/repository/postgres"
	"chatrelay/internal/service"
	"chatrelay/internal/websocket"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.ServiceName)
	log := observability.Log

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer tp.Shutdown(context.Background())
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	// The cache is an optional accelerant: an unreachable redis leaves it in
	// fallback mode and the service runs on the repositories alone.
	var redisClient redis.UniversalClient
	if cfg.CacheEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	appCache := cache.New(redisClient, cfg.ServiceName, log)

	msgRepo, userRepo, convRepo := initRepositories(cfg, log)

	directory := service.NewDirectory(userRepo, convRepo, appCache, cfg.CacheTTL, log)
	messages := service.NewMessageService(msgRepo, directory, log)
	registry := websocket.NewRegistry(cfg.ServiceName)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	wsHandler := websocket.NewHandler(registry, messages, directory, verifier, cfg.ServiceName)
	msgHandler := handler.NewMessageHandler(messages, directory, appCache)

	mainSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(wsHandler, msgHandler, verifier, cfg.ServiceName),
	}
	obsSrv := initObservabilityServer(cfg)

	startServer(mainSrv, "main", log)
	startServer(obsSrv, "observability", log)

	<-ctx.Done()
	performGracefulShutdown(mainSrv, obsSrv, registry, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func initRepositories(cfg *config.Config, log *zap.Logger) (repository.MessageRepository, repository.UserRepository, repository.ConversationRepository) {
	if cfg.DatabaseURL == "" {
		log.Info("no database configured, using in-memory repositories")
		return memory.NewMessageStore(), memory.NewUserStore(), memory.NewConversationStore()
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	if err := db.Ping(); err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	return &postgres.MessageRepo{DB: db}, &postgres.UserRepo{DB: db}, &postgres.ConversationRepo{DB: db}
}

func initObservabilityServer(cfg *config.Config) *http.Server {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler(nil))
	return &http.Server{Addr: cfg.ObsHTTPAddr, Handler: mux}
}

func startServer(srv *http.Server, name string, log *zap.Logger) {
	go func() {
		log.Info("server listening", zap.String("server", name), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.String("server", name), zap.Error(err))
		}
	}()
}

func performGracefulShutdown(mainSrv, obsSrv *http.Server, registry *websocket.Registry, log *zap.Logger) {
	log.Info("shutting down")
	registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mainSrv.Shutdown(ctx); err != nil {
		log.Error("main server shutdown error", zap.Error(err))
	}
	if err := obsSrv.Shutdown(ctx); err != nil {
		log.Error("observability server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
