package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nahidhasan98/netconf-relay/internal/handlers"
	"github.com/nahidhasan98/netconf-relay/internal/notify"
	"github.com/nahidhasan98/netconf-relay/internal/server"
)

var (
	svc     *services
	errChan = make(chan error, 2)
)

func serve(cmd *cobra.Command, _ []string) error {
	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Create a wait group for graceful shutdown
	var wg sync.WaitGroup

	// Initialize configuration and services
	if err := initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization error: %v\n", err)
		return err
	}

	// Initialize and start WhatsApp client
	if svc.waClient != nil {
		startWhatsAppClient(ctx, &wg)
	}

	// Start the web server
	startWebServer(ctx, &wg)

	// Handle shutdown signals
	waitForShutdown(cancel, &wg)
	return nil
}

func initialize(ctx context.Context) error {
	var err error

	if err = loadConfig(); err != nil {
		return err
	}
	log.Info("Starting netconf relay")

	if cfg.Repository.URL == "" {
		log.Warn("REPO_URL is not set, push events will be rejected")
	}
	if !cfg.GitHub.VerifySignature {
		log.Warn("GitHub signature verification is disabled")
	}

	svc, err = buildServices(ctx, cfg, log, false)
	if err != nil {
		return err
	}

	return nil
}

func startWhatsAppClient(ctx context.Context, wg *sync.WaitGroup) {
	wg.Go(func() {
		log.Info("Starting WhatsApp client...")
		if err := svc.waClient.Start(ctx); err != nil {
			errChan <- fmt.Errorf("failed to connect to WhatsApp: %w", err)
			return
		}

		// Keep the WhatsApp client running
		// It will handle reconnections automatically
		<-ctx.Done()
		log.Info("WhatsApp client shutting down...")
	})
}

func startWebServer(ctx context.Context, wg *sync.WaitGroup) {
	wg.Go(func() {
		log.Info("Starting HTTP server...")

		opts := []handlers.Option{handlers.WithNotifiers(notify.Names(svc.notifier))}
		if svc.waClient != nil {
			opts = append(opts, handlers.WithWhatsAppStatus(func() map[string]bool {
				return svc.waClient.Status().Map()
			}))
		}

		// Initialize HTTP handlers
		httpHandler := handlers.New(cfg, svc.pipeline, log, opts...)

		// Initialize and start HTTP server
		httpServer := server.New(cfg, httpHandler, log)
		if err := httpServer.Start(cfg); err != nil {
			errChan <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}

		// Keep the server running until shutdown
		<-ctx.Done()
		log.Info("HTTP server shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during HTTP server shutdown", err)
		}
	})
}

func waitForShutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	// Wait for either service to fail or for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("Service failed", err)
	case <-sigChan:
		log.Info("Received shutdown signal")
	}

	// Cancel context to signal goroutines to shutdown
	cancel()

	// Wait for all goroutines to finish
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	svc.close(shutdownCtx, log)

	log.Info("Application stopped")
}
