package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/outlineworks/outliner/internal/api"
	"github.com/outlineworks/outliner/internal/config"
	"github.com/outlineworks/outliner/internal/llm"
	"github.com/outlineworks/outliner/internal/pdftext"
	"github.com/outlineworks/outliner/internal/pipeline"
	"github.com/outlineworks/outliner/internal/store"
	"github.com/outlineworks/outliner/internal/structure"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DBDir)
	if err != nil {
		log.Error("open store", "error", err)
		os.Exit(1)
	}

	// The gateway is constructed once and passed by reference through every
	// discovery, verification and subdivision call.
	llmClient := llm.NewClient(cfg.AnthropicAPIKey, log)
	extractor := pdftext.NewExtractor(pdftext.Config{
		MinCharsPerPage:   cfg.MinCharsPerPage,
		MaxCharsPerPage:   cfg.MaxCharsPerPage,
		FallbackPdftotext: cfg.PDFFallbackPdftotext,
	}, log)
	builder := structure.NewBuilder(extractor, llmClient, log)

	orch := pipeline.NewOrchestrator(cfg, builder, st, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, llmClient, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		llmClient.Close()
		st.Close()
	}()

	log.Info("starting outliner", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
