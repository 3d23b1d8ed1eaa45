// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// main.go -- videostated serves the save_user_state and state endpoints
// backed by the tiered user-state repository.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	videoplayer "github.com/openedx/edx-platform-sub027"
	"github.com/openedx/edx-platform-sub027/internal/l1"
	"github.com/openedx/edx-platform-sub027/internal/l2"
	"github.com/openedx/edx-platform-sub027/internal/l3"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
	"github.com/openedx/edx-platform-sub027/internal/server"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "videostated:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := videoplayer.LoadServerConfig(configPath)
	if err != nil {
		return err
	}

	logging.Configure(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})
	log := logging.WithComponent("main")
	log.Info("starting", "version", videoplayer.Version(), "addr", cfg.HTTP.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		rec      metrics.MetricsRecorder = metrics.Noop{}
		gatherer prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.NewPrometheus(reg)
		gatherer = reg
	}

	cache := l1.New(l1.Options[userstate.Record]{
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
	})
	defer cache.Close()

	opts := userstate.Options{
		L1:                  cache,
		L2TTL:               cfg.Redis.TTL,
		InvalidationChannel: cfg.Redis.InvalidationChannel,
		FlushInterval:       cfg.WriteBehind.FlushInterval,
		FlushThreshold:      cfg.WriteBehind.FlushThreshold,
		MaxRetries:          cfg.WriteBehind.MaxRetries,
		Logger:              logging.WithComponent("userstate"),
		Metrics:             rec,
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		opts.L2 = l2.New(l2.Options{Client: client, KeyPrefix: cfg.Redis.KeyPrefix})
	}

	if cfg.Postgres.Enabled {
		store, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer store.Close()
		if cfg.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.Info("schema ready", "table", l3.Table)
		}
		opts.L3 = store
	}

	repo := userstate.NewRepository(opts)
	repo.Start()
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("repository close", "error", err)
		}
	}()

	var sealer *server.Sealer
	if cfg.HTTP.IdentityKey != "" {
		key, err := hex.DecodeString(cfg.HTTP.IdentityKey)
		if err != nil {
			return fmt.Errorf("identity key: %w", err)
		}
		if sealer, err = server.NewSealer(key); err != nil {
			return err
		}
	} else {
		log.Warn("identity cookie is not sealed; set http.identity_key")
	}

	handler := server.New(server.Config{
		Repo:               repo,
		Pinger:             repo,
		Gatherer:           gatherer,
		RateLimitRequests:  cfg.HTTP.RateLimitRequests,
		RateLimitWindow:    cfg.HTTP.RateLimitWindow,
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		DefaultAutoAdvance: cfg.DefaultAutoAdvance,
		Sealer:             sealer,
		Logger:             logging.WithComponent("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       2 * cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete", "dirty", repo.DirtyCount())
	return nil
}

func openPostgres(ctx context.Context, cfg videoplayer.PostgresConfig) (*l3.Store, error) {
	primary, err := newPool(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	var replica l3.DBTX
	if cfg.ReplicaDSN != "" {
		pool, err := newPool(ctx, cfg.ReplicaDSN)
		if err != nil {
			primary.Close()
			return nil, err
		}
		replica = pool
	}
	return l3.New(primary, replica), nil
}

func newPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	pgCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}
