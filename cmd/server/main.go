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

	"github.com/InverskProperty/propsk-sub012/internal/app"
	"github.com/InverskProperty/propsk-sub012/internal/config"
	"github.com/InverskProperty/propsk-sub012/internal/handlers"
	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/metrics"
	"github.com/InverskProperty/propsk-sub012/internal/middleware"
	"github.com/InverskProperty/propsk-sub012/internal/scheduler"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.Env)
	log.Info("Starting portfolio service", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"store":       cfg.Database.Driver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialise application", err, map[string]interface{}{
			"store": cfg.Database.Driver,
		})
	}
	defer a.Close()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// RequestID -> Logger -> Recovery -> CORS -> Actor
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	healthHandler := handlers.NewHealthHandler(a.HealthChecks(), cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Actor(0))
	v1.GET("/info", healthHandler.Info)
	handlers.RegisterRoutes(v1,
		handlers.NewBlockHandler(a.Blocks),
		handlers.NewAssignmentHandler(a.Assignments),
		handlers.NewSyncHandler(a.Sync, a.Portfolios),
	)

	sched := scheduler.New(cfg.Scheduler, cfg.Redis.LockTTL, a.Sync, a.Portfolios, a.Locker, log)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Scheduler stopped unexpectedly", err, nil)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		log.Warn("Scheduler did not stop before the shutdown deadline", nil)
	}

	log.Info("Server exited", nil)
}
