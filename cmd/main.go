package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angeloszaimis/distbreaker/config"
	"github.com/angeloszaimis/distbreaker/internal/circuitbreaker"
	"github.com/angeloszaimis/distbreaker/internal/handler"
	"github.com/angeloszaimis/distbreaker/internal/httpserver"
	"github.com/angeloszaimis/distbreaker/internal/stats"
	"github.com/angeloszaimis/distbreaker/internal/store"
	"github.com/angeloszaimis/distbreaker/internal/storecheck"
	"github.com/angeloszaimis/distbreaker/internal/upstream"
	"github.com/angeloszaimis/distbreaker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	collector := stats.NewCollector(1024, log, registry)
	collector.Start(ctx)

	st, redisClient, err := buildStore(ctx, cfg, log, collector)
	if err != nil {
		log.Error("Failed to initialize store", slog.Any("err", err))
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	breakers, err := buildBreakerRegistry(cfg, st, log, collector)
	if err != nil {
		log.Error("Failed to configure breakers", slog.Any("err", err))
		os.Exit(1)
	}

	upstreams, err := initializeUpstreams(cfg, log)
	if err != nil {
		log.Error("Failed to initialize upstreams", slog.Any("err", err))
		os.Exit(1)
	}

	guardHandler := handler.NewGuardHandler(log, breakers, upstreams, collector)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(guardHandler, collector, registry))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Guard daemon started",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Store.Backend),
		slog.Int("upstreams", len(upstreams)))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error running guard daemon", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildStore(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
	collector *stats.Collector,
) (store.Store, *redis.Client, error) {
	if cfg.Store.Backend == config.StoreMemory {
		log.Warn("Using in-process store; circuit state is not shared across instances")
		return store.NewMemory(store.WithMemoryKeyPrefix(cfg.Store.KeyPrefix)), nil, nil
	}

	opTimeout, err := time.ParseDuration(cfg.Store.OperationTimeout)
	if err != nil {
		return nil, nil, err
	}
	checkInterval, err := time.ParseDuration(cfg.Store.CheckInterval)
	if err != nil {
		return nil, nil, err
	}
	samplingDuration, err := time.ParseDuration(cfg.Breaker.SamplingDuration)
	if err != nil {
		return nil, nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Address,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
	})

	go storecheck.Watch(ctx, client, checkInterval, collector, log)

	st := store.NewRedis(client, log, store.RedisOptions{
		KeyPrefix:        cfg.Store.KeyPrefix,
		OperationTimeout: opTimeout,
		SamplingDuration: samplingDuration,
	})
	return st, client, nil
}

func buildBreakerRegistry(
	cfg *config.Config,
	st store.Store,
	log *slog.Logger,
	collector *stats.Collector,
) (*circuitbreaker.Registry, error) {
	breakDuration, err := time.ParseDuration(cfg.Breaker.BreakDuration)
	if err != nil {
		return nil, err
	}
	samplingDuration, err := time.ParseDuration(cfg.Breaker.SamplingDuration)
	if err != nil {
		return nil, err
	}
	leaseTTL, err := time.ParseDuration(cfg.Breaker.LeaseTTL)
	if err != nil {
		return nil, err
	}

	return circuitbreaker.NewRegistry(st,
		circuitbreaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuitbreaker.WithMinimumThroughput(cfg.Breaker.MinimumThroughput),
		circuitbreaker.WithBreakDuration(breakDuration),
		circuitbreaker.WithSamplingDuration(samplingDuration),
		circuitbreaker.WithLeaseTTL(leaseTTL),
		circuitbreaker.WithLocalShadow(cfg.Breaker.LocalShadow),
		circuitbreaker.WithLogger(log),
		circuitbreaker.OnStateChange(func(sc circuitbreaker.StateChange) {
			collector.Record(stats.Event{
				Type:      stats.EventStateChanged,
				Timestamp: sc.At,
				Circuit:   sc.CircuitID,
				From:      sc.From.String(),
				To:        sc.To.String(),
			})
		}),
	), nil
}

func initializeUpstreams(cfg *config.Config, log *slog.Logger) ([]*upstream.Upstream, error) {
	var upstreams []*upstream.Upstream

	for _, uc := range cfg.Upstreams {
		u, err := url.Parse(uc.URL)
		if err != nil {
			log.Error("Failed to parse upstream URL",
				slog.String("name", uc.Name),
				slog.String("url", uc.URL),
				slog.String("error", err.Error()))
			return nil, err
		}

		upstreams = append(upstreams, upstream.New(uc.Name, u))
	}

	return upstreams, nil
}
