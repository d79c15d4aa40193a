// Command toolrunner executes whitelisted audio tools (ffmpeg, demucs) on
// behalf of the lesson server when it runs with DEPENDENCY_MODE=remote or
// fallback. Both processes share the data volume.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/houzhh15/refret/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)
	cmd := &cobra.Command{
		Use:           "toolrunner",
		Short:         "Run whitelisted audio tools over HTTP",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, port)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/app/config/commands.yaml", "path to the commands config file")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port)")
	return cmd
}

func run(configPath string, port int) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		config.Server.Port = port
	}

	log, err := logger.Init(logger.Config{
		Level:       config.Server.LogLevel,
		Environment: os.Getenv("ENV"),
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	log = log.With("component", "toolrunner")

	auditLogger := NewAuditLoggerWithWriter(io.Discard)
	if config.Security.EnableAuditLog {
		auditLogger = NewAuditLogger(config.Security.AuditLogPath)
	}

	gin.SetMode(gin.ReleaseMode)
	handler := NewHandler(NewValidator(config), NewExecutor(config, log), auditLogger, NewConcurrencyLimiter(config), log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("tool runner starting", "port", config.Server.Port, "commands", len(config.Commands), "version", Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	log.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	log.Info("server stopped")
	return nil
}
