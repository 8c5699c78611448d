package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stockpulse/internal/application/port"
	"stockpulse/internal/application/service"
	"stockpulse/internal/infrastructure/bus"
	"stockpulse/internal/infrastructure/config"
	"stockpulse/internal/infrastructure/health"
	"stockpulse/internal/infrastructure/logger"
	"stockpulse/internal/infrastructure/provider"
	"stockpulse/internal/infrastructure/storage"
	"stockpulse/internal/infrastructure/storage/composite"
	"stockpulse/internal/infrastructure/storage/postgres"
	redisrepo "stockpulse/internal/infrastructure/storage/redis"
	"stockpulse/internal/infrastructure/storage/sqlite"
	"stockpulse/internal/infrastructure/svc"
	"stockpulse/internal/interfaces/console"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// health monitor + metrics endpoint
	metrics := health.NewMetrics()
	if cfg.Health.MetricsAddr != "" {
		metrics.Serve(cfg.Health.MetricsAddr)
	}
	mon := health.NewMonitor(time.Duration(cfg.Health.WindowSec)*time.Second, metrics)
	go mon.Run(ctx)

	// staging store
	repo, err := buildRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg(svc.ErrStorageInitFailed.Error())
	}
	defer repo.Close()

	writer := service.NewStagingWriter(repo, mon, service.StagingWriterConfig{
		QueueSize:  cfg.Staging.Queue,
		RetryMax:   cfg.Staging.RetryMax,
		RetryDelay: time.Duration(cfg.Staging.RetryDelayMs) * time.Millisecond,
	})

	// internal fan-out channel
	policy := bus.DropOldest
	if cfg.Publish.Policy == "block" {
		policy = bus.Block
	}
	b := bus.New(cfg.Publish.Buffer, policy, mon)

	// provider connection
	feed := provider.NewClient(provider.Config{
		Name:        "provider",
		WsURL:       cfg.Provider.WsURL,
		APIKey:      cfg.Provider.APIKey,
		DialTimeout: time.Duration(cfg.Provider.DialTimeoutSec) * time.Second,
		Retry: provider.RetryConfig{
			InitialDelay: time.Duration(cfg.Reconnect.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Reconnect.MaxDelayMs) * time.Millisecond,
			MaxFailures:  cfg.Reconnect.MaxFailures,
		},
	}, mon)
	if err := feed.Subscribe(ctx, cfg.Symbols.List); err != nil {
		log.Fatal().Err(err).Msg("initial subscription failed")
	}

	// console status reporter
	reporter := service.NewReporter(mon, console.NewSink(),
		time.Second, time.Duration(cfg.Health.ReportEverySec)*time.Second)
	go reporter.Run(ctx)

	if err := feed.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect failed")
	}

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Symbols.List)).
		Str("staging", cfg.Staging.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Str("policy", cfg.Publish.Policy).
		Msg("stockpulse ingestion started")

	pipeline := service.NewPipeline(feed, service.NewNormalizer(), b, writer, mon)
	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("pipeline exited")
	}
}

func buildRepository(cfg *config.Config) (port.Repository, error) {
	var repos []port.Repository

	switch cfg.Staging.Driver {
	case "memory":
		repos = append(repos, storage.NewInMemoryRepository())
	case "sqlite":
		r, err := sqlite.New(cfg.Staging.Path)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	case "postgres":
		r, err := postgres.New(cfg.Staging.DSN)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}

	if cfg.Redis.Enabled {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		repos = append(repos, redisrepo.New(rdb, cfg.Redis.Prefix,
			time.Duration(cfg.Redis.TTLMin)*time.Minute))
	}

	if len(repos) == 1 {
		return repos[0], nil
	}
	return composite.New(repos...), nil
}
