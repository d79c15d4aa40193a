package main

import (
	// Standard library
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"

	// Internal packages
	"github.com/houzhh15/refret/cmd/server/internal/api"
	"github.com/houzhh15/refret/cmd/server/internal/config"
	"github.com/houzhh15/refret/cmd/server/internal/domain/journal"
	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/domain/licks"
	"github.com/houzhh15/refret/cmd/server/internal/domain/settings"
	"github.com/houzhh15/refret/cmd/server/internal/middleware"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator"
	"github.com/houzhh15/refret/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.LogEnvironment(),
		WithSource:  !cfg.IsProduction(),
		FilePath:    cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "web-server")

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.IsProduction() {
		fmt.Println(cfg.PrintConfig())
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "file", cfg.File)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		appLogger.Error("data directory init failed", "dir", cfg.Data.Dir, "error", err)
		os.Exit(1)
	}

	// Lesson metadata store
	store, err := lessons.Open(cfg.Data.DBPath)
	if err != nil {
		appLogger.Error("lesson store init failed", "path", cfg.Data.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	appLogger.Info("lesson store ready", "path", cfg.Data.DBPath)

	// Practice stores share the lesson database
	initCtx := context.Background()
	lickStore, err := licks.New(initCtx, store.DB())
	if err != nil {
		appLogger.Error("lick store init failed", "error", err)
		os.Exit(1)
	}
	journalStore, err := journal.New(initCtx, store.DB())
	if err != nil {
		appLogger.Error("journal store init failed", "error", err)
		os.Exit(1)
	}
	settingsStore, err := settings.New(initCtx, store.DB())
	if err != nil {
		appLogger.Error("settings store init failed", "error", err)
		os.Exit(1)
	}

	// Pipeline runtime
	orchCfg := cfg.ToOrchestratorConfig()
	rt, err := orchestrator.NewFromConfig(orchCfg, store, settingsStore)
	if err != nil {
		appLogger.Error("orchestrator init failed", "error", err)
		os.Exit(1)
	}

	env := rt.Environment(initCtx)
	if !env.Ready {
		appLogger.Warn("environment not ready", "issues", env.Issues)
	}
	for _, w := range env.Warnings {
		appLogger.Warn("environment warning", "warning", w)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.MaxMultipartMemory = 32 << 20

	handler := api.NewLessonHandler(rt, store, cfg.Server.MaxUploadMB<<20)
	api.RegisterRoutes(r, handler, api.HealthDeps{
		Env:           rt,
		DB:            store,
		Degradation:   rt.Degradation,
		HealthChecker: rt.HealthChecker(),
	})
	api.RegisterPracticeRoutes(r, api.PracticeHandlers{
		Licks:    api.NewLickHandler(lickStore),
		Journal:  api.NewJournalHandler(journalStore),
		Settings: api.NewSettingsHandler(settingsStore, orchestrator.LLMDefaults(orchCfg.Summarizer)),
	})

	// Create HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
	}

	// Running pipelines finish within the same deadline
	if err := rt.Close(ctx); err != nil {
		appLogger.Error("pipelines still running at shutdown", "error", err)
	}

	appLogger.Info("server exited")
}
