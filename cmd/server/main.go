package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	convgrpc "research-chat/backend/conversation/grpc"
	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/di"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/router"
)

func main() {
	cfg, err := config.Load(config.DefaultOptions())
	if err != nil {
		logger.New(logger.DefaultConfig()).LogError(err, "Invalid configuration")
		os.Exit(1)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)

	log.Info("Starting application",
		"version", os.Getenv("APP_VERSION"),
		"env", cfg.Server.Env,
		"local_sink", cfg.Local.Enabled,
		"remote_sink", cfg.Remote.Enabled,
		"session_store", cfg.Session.Store,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	r := router.New(container)
	r.SetupRoutes()
	go r.RateLimiter.Run(ctx)

	if cfg.Server.GRPCPort != "" {
		grpcServer := convgrpc.NewServer(log)
		container.Health.OnChange(grpcServer.SetHealthy)
		go func() {
			if err := grpcServer.ListenAndServe(ctx, cfg.Server.GRPCPort); err != nil {
				log.LogError(err, "gRPC health server failed")
			}
		}()
	}
	go container.Health.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
