// Package server starts the HTTP server exposing the monitor's API.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/paularlott/cli"

	"github.com/KnivInstitute/IronWatch/internal/api"
	"github.com/KnivInstitute/IronWatch/internal/config"
	"github.com/KnivInstitute/IronWatch/internal/hub"
	"github.com/KnivInstitute/IronWatch/internal/log"
	"github.com/KnivInstitute/IronWatch/internal/monitor"
	"github.com/KnivInstitute/IronWatch/internal/storage"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the IronWatch server",
		Description: "Run the USB monitor with an HTTP API for status, devices, analytics, events and rule management",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			log.Configure(cfg.LogLevel, cfg.LogFormat)

			log.Info("Configuration loaded", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

			store, err := storage.NewStorage(cfg.DataDir)
			if err != nil {
				log.Error("Failed to initialize storage", "error", err)
				return err
			}
			defer store.Close()

			policySet, err := store.LoadPolicy()
			if err != nil {
				log.Error("Failed to load security policy", "error", err)
				return err
			}

			consumer, endpoint := hub.New()
			service := monitor.NewService(endpoint, policySet, monitor.Options{
				PollInterval:   cfg.PollInterval,
				Filter:         cfg.DeviceFilter,
				Audit:          store,
				PolicyProvider: store.LoadPolicy,
			})

			serviceDone := make(chan error, 1)
			go func() {
				serviceDone <- service.Run(ctx)
			}()

			if err := consumer.StartMonitoring(); err != nil {
				return err
			}

			apiHandler := api.NewHandler(consumer, store)
			mux := http.NewServeMux()
			apiHandler.RegisterRoutes(mux)

			var handler http.Handler = mux
			if cfg.IsAPIAuthEnabled() {
				handler = api.AuthMiddleware(cfg.APIAuthToken, handler)
			}
			handler = api.SecurityHeadersMiddleware(handler)

			server := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: handler,
			}

			// Handle shutdown gracefully
			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
				<-sigChan
				log.Info("Shutting down server...")
				if err := consumer.Shutdown(); err != nil {
					log.Warn("Shutdown command not delivered", "error", err)
				}
				server.Close()
			}()

			log.Info("Starting IronWatch server", "addr", cfg.ListenAddr)
			log.Info("API available", "url", "http://localhost"+cfg.ListenAddr+"/api/")
			if cfg.IsAPIAuthEnabled() {
				log.Info("API authentication enabled")
			}

			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Server error", "error", err)
				return err
			}

			// The monitoring service finishes its current cycle before
			// exiting; wait for it rather than assuming immediate stop.
			<-serviceDone
			log.Info("Server stopped")
			return nil
		},
	}
}
