package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/commissionhub/commission-api/internal/api"
	"github.com/commissionhub/commission-api/internal/api/handler"
	"github.com/commissionhub/commission-api/internal/core/ports"
	"github.com/commissionhub/commission-api/internal/core/service"
	"github.com/commissionhub/commission-api/internal/infrastructure/db/redis"
	"github.com/commissionhub/commission-api/internal/infrastructure/storage"
	"github.com/commissionhub/commission-api/internal/pkg/config"
	"github.com/commissionhub/commission-api/pkg/logger"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply schema or indexes before serving")
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.IsDevelopment(), Service: "commissiond"})

	// --- Connections ---
	st, err := openStores(ctx, cfg, autoMigrate, log)
	if err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		st.close(context.Background())
		return err
	}

	objects, err := storage.Connect(ctx, storage.Config{
		Endpoint:     cfg.Storage.Endpoint,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		Bucket:       cfg.Storage.Bucket,
		Region:       cfg.Storage.Region,
		UseTLS:       cfg.Storage.UseTLS,
		CreateBucket: cfg.Storage.CreateBucket,
	})
	if err != nil {
		_ = rdb.Close()
		st.close(context.Background())
		return err
	}

	// --- Services ---
	var idem ports.IdempotencyStore = redis.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
	works := service.NewWorkService(st.works, st.users, objects, idem, service.WorkConfig{
		UploadTimeout:   cfg.Storage.UploadTimeout,
		DeliveryLinkTTL: cfg.Storage.DeliveryLinkTTL,
		DownloadLinkTTL: cfg.Storage.DownloadLinkTTL,
		UploadLinkTTL:   cfg.Storage.UploadLinkTTL,
	}, logger.Component("works"))
	profiles := service.NewProfileService(st.users, st.works, logger.Component("profiles"))
	identity := service.NewIdentityService(st.users, cfg.Auth.SessionSecret, cfg.Auth.IdentitySecret, cfg.Auth.TokenTTL, logger.Component("identity"))
	notifications := service.NewNotificationService(st.notifications, logger.Component("notifications"))

	e := api.NewRouter(api.Dependencies{
		Works:          works,
		Profiles:       profiles,
		Identity:       identity,
		Notifications:  notifications,
		SessionSecret:  cfg.Auth.SessionSecret,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		HealthChecks: map[string]handler.Checker{
			cfg.StoreDriver: st.check,
			"redis":         func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"storage":       objects.Ping,
		},
		Logger: logger.Component("http"),
	})

	// --- Run ---
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("driver", cfg.StoreDriver).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close")
	}
	st.close(shutdownCtx)
	log.Info().Msg("server stopped")
	return runErr
}
