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
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/retina-api/internal/config"
	"github.com/Brownie44l1/retina-api/internal/handlers"
	"github.com/Brownie44l1/retina-api/internal/logging"
	"github.com/Brownie44l1/retina-api/internal/model"
)

func main() {
	config.LoadDotenv(".env", ".env.local")
	cfg := config.Load()
	config.BindFlags(flag.CommandLine, &cfg)
	flag.Parse()

	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("loading model", "dir", cfg.Model.Dir)
	artifact, err := model.LoadArtifact(cfg.Model.Dir)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	modelServer, err := model.NewServer(artifact, model.Options{
		SharedLibraryPath: cfg.Model.ORTLibPath,
		IntraOpThreads:    cfg.Model.IntraOpThreads,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer modelServer.Close()

	handler := handlers.NewHandler(modelServer, handlers.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		DefaultTopK:    cfg.Server.DefaultTopK,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting",
			"addr", srv.Addr,
			"labels", modelServer.Labels())
		slog.Info("endpoints",
			"health", "GET /health",
			"labels", "GET /labels",
			"form", "GET /",
			"predict", "POST /predict?top_k=N (multipart field 'file')")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
