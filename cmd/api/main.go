package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/app/migrate"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/cache"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/config"
	httpx "github.com/games24x7-opensource/starlink-ota-sub001/internal/http"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/logger"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/service/acquisition"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/service/adoption"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage/jsonfile"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage/postgres"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/ws"
)

func main() {
	cfgStore := config.NewStore(nil)
	cfg := cfgStore.Current()
	log := logger.New("acquisition", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.Storage
	var dbHealth func(context.Context) error

	switch cfg.StorageDriver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		pgStore := postgres.New(pool, cfg.BlobDir)
		store = pgStore
		dbHealth = pgStore.Ping
	case "jsonfile":
		fileStore, err := jsonfile.New(cfg.JSONStorePath, cfg.BlobDir)
		if err != nil {
			log.Error("failed to load json store", "path", cfg.JSONStorePath, "error", err)
			os.Exit(1)
		}
		store = fileStore
		dbHealth = fileStore.Ping
		cfgStore.Subscribe(func(config.Snapshot) {
			if err := fileStore.Reload(); err != nil {
				log.Error("json store reload failed", "error", err)
			}
		})
	default:
		log.Error("unknown storage driver", "driver", cfg.StorageDriver)
		os.Exit(1)
	}
	store = storage.WithRetry(store, 100*time.Millisecond)

	cacheStore, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		cfg.CacheTTL, cfg.RedisOpTimeout, cfg.MetricsRetention, log)
	if err != nil {
		log.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer cacheStore.Close()

	acqSvc := acquisition.New(store, cacheStore, cacheStore, log, cfgStore)

	hub := ws.NewHub()
	defer hub.Stop()
	adoptionSvc := adoption.New(store, cacheStore, hub, log, cfg.AdoptionFlushEvery)
	go adoptionSvc.Run(ctx)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			cfgStore.Reload()
			log.Info("configuration reloaded")
		}
	}()

	router := httpx.NewRouter(log, acqSvc, adoptionSvc, cfg.RequestTimeout, dbHealth, cacheStore.Ping)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("acquisition server starting", "addr", cfg.Addr, "storage_driver", cfg.StorageDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("acquisition server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
