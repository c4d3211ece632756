package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/artpar/runnerform/internal/shell/api"
)

// =============================================================================
// Server
// =============================================================================

// Server serves the compile API.
type Server struct {
	config     *Config
	httpServer *http.Server
	cleanup    func()
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	p, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(p, api.Config{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		APIToken:     cfg.Server.APIToken,
		Timeout:      cfg.Resolver.Timeout,
		Version:      Version,
		PublicURL:    cfg.Server.PublicURL,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		cleanup:    cleanup,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"resolver", s.config.Resolver.Mode,
			"token_required", s.config.Server.APIToken != "",
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.cleanup()
		return &ExitError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.cleanup()

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Serve Command
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:         "serve",
		Usage:        "Serve the compile API over HTTP",
		OnUsageError: onUsageError,
		Flags:        []cli.Flag{configFlag()},
		Action:       runServe,
	}
}

// runServe implements "runnerform serve".
func runServe(c *cli.Context) error {
	configPath := c.String("config")
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(c.App.ErrWriter, "configuration error: %v\n", err)
		return &ExitError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}

	logger := SetupLogger(cfg, c.App.ErrWriter)
	logger.Info("starting runnerform",
		"version", Version,
		"config", configPath,
	)

	server, err := NewServer(c.Context, cfg, logger)
	if err != nil {
		return reportExitError(logger, err)
	}

	if err := server.Start(c.Context); err != nil {
		return reportExitError(logger, err)
	}

	return nil
}
