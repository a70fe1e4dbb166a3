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

	"notetree-server/internal/config"
	"notetree-server/internal/handler"
	"notetree-server/internal/repository"
	"notetree-server/internal/service"
	"notetree-server/internal/websocket"
	"notetree-server/pkg/protect"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := repository.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err), zap.String("path", cfg.Database.Path))
	}
	defer store.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerActor: cfg.WebSocket.MaxConnPerActor,
		MaxMessageSize:  cfg.WebSocket.MaxMessageSize,
		WriteWait:       cfg.WebSocket.WriteWait,
		PongWait:        cfg.WebSocket.PongWait,
		PingPeriod:      cfg.WebSocket.PingPeriod,
	}, logger)
	go wsManager.Run()

	codec := protect.NewCodec()

	sessions := service.NewProtectedSessionStore(cfg.Security.ProtectedSessionTimeout, logger)
	go sessions.Run(ctx, time.Minute)

	securityService := service.NewSecurityService(store, codec, sessions, logger)
	authService := service.NewAuthService(securityService, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	optionService := service.NewOptionService(store, cfg.Notes.SnapshotInterval, logger)
	syncService := service.NewSyncService(store, wsManager, logger)
	noteService := service.NewNoteService(store, codec, optionService, syncService, logger, cfg.Notes.AuditRecencyWindow)

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(syncService, logger))

	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret,
		cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, logger)

	handlers := &handler.Handlers{
		Auth:      handler.NewAuthHandler(authService, securityService, logger),
		Security:  handler.NewSecurityHandler(securityService, logger),
		Note:      handler.NewNoteHandler(noteService, logger),
		Sync:      handler.NewSyncHandler(syncService, logger),
		Option:    handler.NewOptionHandler(optionService, logger),
		WebSocket: wsHandler,
	}

	r := handler.NewRouter(handler.RouterConfig{
		JWTSecret:      cfg.JWT.Secret,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	}, handlers, securityService, store, logger)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting notetree server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("database", cfg.Database.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server stopped gracefully")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Logging.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
