package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/config"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/events"
	"github.com/alfredjeanlab/datatable/internal/query"
	"github.com/alfredjeanlab/datatable/internal/server"
	"github.com/alfredjeanlab/datatable/internal/store/postgres"
	dtsync "github.com/alfredjeanlab/datatable/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the datatable HTTP and gRPC servers",
	GroupID: "system",
	// The server does not talk to itself through the client.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")
		debug, _ := cmd.Flags().GetBool("debug")

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		// Load configuration.
		cfg, err := config.Load(envFiles...)
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = events.NoopPublisher{}
			logger.Info("events disabled (DATATABLE_NATS_URL not set)")
		}

		authn := auth.NewAuthenticator(cfg.AuthToken, cfg.JWTSecret)
		if !authn.Enabled() {
			logger.Warn("authentication disabled; the principal header is trusted")
		}

		srv := server.New(server.Options{
			Store:               store,
			Engine:              datatable.NewEngine(store.Executor(), query.Postgres, logger),
			Publisher:           publisher,
			Authenticator:       authn,
			DefaultCapabilities: cfg.DefaultCapabilities,
			Location:            cfg.Location,
			Logger:              logger,
		})
		grpcServer, healthServer := server.NewGRPCServer(authn)

		// Start gRPC listener.
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			store.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Drop cached config records changed by other instances.
		var watchCancel context.CancelFunc
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create config subscriber", "err", err)
			} else {
				var watchCtx context.Context
				watchCtx, watchCancel = context.WithCancel(context.Background())
				go func() {
					if err := srv.WatchConfigs(watchCtx, sub); err != nil {
						logger.Error("config subscriber error", "err", err)
					}
					sub.Close()
				}()
				logger.Info("config subscriber started")
			}
		}

		// Start the backup scheduler.
		var scheduler *dtsync.Scheduler
		if cfg.BackupSchedule != "" {
			dest, err := dtsync.NewS3Destination(
				context.Background(),
				cfg.BackupS3Bucket,
				cfg.BackupS3Key,
				cfg.BackupS3Region,
				cfg.BackupS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 backup destination", "err", err)
			} else {
				scheduler, err = dtsync.NewScheduler(store, []dtsync.Destination{dest}, cfg.BackupSchedule, cfg.Location, logger)
				if err == nil {
					err = scheduler.Start()
				}
				if err != nil {
					logger.Error("failed to start backup scheduler", "err", err)
					scheduler = nil
				} else {
					logger.Info("backup scheduler started",
						"schedule", cfg.BackupSchedule,
						"bucket", cfg.BackupS3Bucket,
						"key", cfg.BackupS3Key,
					)
				}
			}
		}

		logger.Info("datatable server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"timezone", cfg.Location.String(),
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		healthServer.Shutdown()

		if watchCancel != nil {
			watchCancel()
			logger.Info("config subscriber stopped")
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("backup scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringSlice("env-file", nil, "env files to read (default .env when present)")
	serveCmd.Flags().Bool("debug", false, "log at debug level")
}
