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

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"aksara/internal/api"
	"aksara/internal/auth"
	"aksara/internal/config"
	"aksara/internal/logging"
	"aksara/internal/redis"
	"aksara/internal/service/ai"
	"aksara/internal/service/assistant"
	"aksara/internal/storage"
	"aksara/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "aksara-server: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load(os.Getenv("AKSARA_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.BasicConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbType := os.Getenv("AKSARA_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", zap.String("driver", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer func() { err = multierr.Append(err, rdb.Close()) }()

	if err := storage.Migrate(db, dbType); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := assistant.NewService(db)
	if admin, created, err := svc.EnsureAdmin(ctx, cfg.AdminSeed); err != nil {
		return err
	} else if created {
		logger.Info("seeded admin account", zap.String("username", admin.Username))
	}

	replier, err := ai.NewReplier(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init replier: %w", err)
	}
	authService := auth.NewService(db, rdb, cfg.AccessTTL(), cfg.RefreshTTL())
	manager := worker.NewManager(svc, replier, worker.DispatcherConfig{
		MinWorkers:   cfg.BasicConfig.MinWorkers,
		MaxWorkers:   cfg.BasicConfig.MaxWorkers,
		QueueSize:    cfg.BasicConfig.QueueSize,
		IdleTimeout:  time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		ReplyTimeout: time.Duration(cfg.Chat.ReplyTimeout) * time.Second,
	}, rdb, logger)
	defer manager.Close()

	handler := api.NewHandler(svc, authService, manager, cfg.Chat, logger)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.RequestLogger(logger), api.Recovery(logger))
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("provider", cfg.Chat.Provider),
			zap.String("model", replier.Model()),
			zap.Bool("redis", rdb.Enabled()),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
