package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/config"
	"pin-clipboard/internal/logging"
	"pin-clipboard/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "invalid_config", err)
		os.Exit(1)
	}

	jsonLogs := cfg.LogFormat == "json" || (cfg.LogFormat == "" && cfg.Env == "production")
	logging.SetDefault(logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel), jsonLogs))
	for _, w := range cfg.Warnings() {
		logging.Warn("config_warning", map[string]interface{}{"warning": w})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, store, err := openStore(ctx, cfg)
	if err != nil {
		log.Printf("service=backend msg=%q store=%s err=%v", "store_open_failed", cfg.Store, err)
		os.Exit(1)
	}
	defer func() { _ = store.close() }()

	blobs, blobBackend, err := openBlobs(ctx, cfg)
	if err != nil {
		log.Printf("service=backend msg=%q blob=%s err=%v", "blob_open_failed", cfg.Blob, err)
		os.Exit(1)
	}
	defer func() { _ = blobBackend.close() }()

	checks := map[string]server.Pinger{}
	for _, b := range []backend{store, blobBackend} {
		if b.check != nil {
			checks[b.name] = b.check
		}
	}

	svc := clipboard.NewService(repo, blobs, cfg.SweepInterval)

	// Expired items are evicted in the background as well as on access.
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		svc.Sweeper.Run(ctx)
	}()

	build := server.BuildInfo{Version: cfg.Version, Commit: cfg.Commit}
	srv := server.New(server.Config{
		Addr:           cfg.Addr,
		BaseURL:        cfg.BaseURL,
		Build:          build,
		Service:        svc,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Checks:         checks,
	})

	// Start the HTTP server in a background goroutine.
	// This allows us to listen for OS signals while the server runs.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s store=%s blob=%s version=%s commit=%s",
			"starting", cfg.Addr, cfg.Store, cfg.Blob, build.Version, build.Commit)
		errCh <- srv.Start()
	}()

	// Set up signal handling for graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		// Give the server 5 seconds to finish in-flight requests.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			exitCode = 1
		}
	case err := <-errCh:
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			exitCode = 1
		}
	}

	cancel()
	<-sweepDone
	log.Printf("service=backend msg=%q", "shutdown_complete")
	if exitCode != 0 {
		// os.Exit skips deferred closes; run them first.
		_ = blobBackend.close()
		_ = store.close()
		os.Exit(exitCode)
	}
}
