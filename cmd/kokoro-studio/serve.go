package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucaberton/kokoro-studio/internal/dub"
	"github.com/lucaberton/kokoro-studio/internal/engine"
	"github.com/lucaberton/kokoro-studio/internal/httpapi"
	"github.com/lucaberton/kokoro-studio/internal/observability"
	"github.com/lucaberton/kokoro-studio/internal/synth"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the studio web UI and JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.CleanWorkDir(); err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	orch := synth.New(eng, cfg.OutputDir, metrics)

	ffmpegPath, ffmpegErr := engine.CheckFFmpeg(cfg.FFmpegPath)
	if ffmpegErr != nil {
		log.Printf("ffmpeg unavailable, dub retiming falls back to linear stretch: %v", ffmpegErr)
	}
	dubber := &dub.Dubber{
		Engine:     eng,
		FFmpegPath: ffmpegPath,
		WorkDir:    cfg.WorkDir,
		OutputDir:  cfg.OutputDir,
		Metrics:    metrics,
	}

	api := httpapi.New(cfg, store, orch, dubber, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("studio listening on %s (%d voices)", cfg.BindAddr, len(store.Names()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
	return nil
}
