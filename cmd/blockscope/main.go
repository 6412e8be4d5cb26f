package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gabapcia/blockscope/internal/blockfeed"
	"github.com/gabapcia/blockscope/internal/blockwindow"
	"github.com/gabapcia/blockscope/internal/config"
	"github.com/gabapcia/blockscope/internal/handlers/cli"
	"github.com/gabapcia/blockscope/internal/infra/blockchain/ethereum"
	"github.com/gabapcia/blockscope/internal/infra/messaging/nats"
	"github.com/gabapcia/blockscope/internal/infra/metrics/prometheus"
	"github.com/gabapcia/blockscope/internal/infra/storage/redis"
	"github.com/gabapcia/blockscope/internal/netsession"
	"github.com/gabapcia/blockscope/internal/netstats"
	"github.com/gabapcia/blockscope/internal/pkg/logger"
	"github.com/gabapcia/blockscope/internal/pkg/resilience/retry"
	"github.com/gabapcia/blockscope/internal/pkg/telemetry"
	"github.com/gabapcia/blockscope/internal/pkg/transport/http"

	promclient "github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.ServiceName,
		telemetry.WithMetrics(cfg.TelemetryMetrics),
		telemetry.WithTracing(cfg.TelemetryTracing),
	)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error(ctx, "telemetry shutdown failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := promclient.NewRegistry()
	metrics := prometheus.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := prometheus.Serve(ctx, cfg.MetricsAddr, registry); err != nil {
				logger.Error(ctx, "metrics server stopped", "error", err)
			}
		}()
	}

	publishers := []netstats.Publisher{metrics}

	if cfg.RedisAddr != "" {
		store, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB,
			redis.WithSnapshotTTL(cfg.SnapshotTTL),
		)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer store.Close()

		publishers = append(publishers, store)
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.NewPublisher(ctx, cfg.NATSURL,
			nats.WithSubjectPrefix(cfg.NATSSubjectPrefix),
			nats.WithConnectionName(cfg.ServiceName),
		)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer publisher.Close()

		publishers = append(publishers, publisher)
	}

	window := blockwindow.New(
		blockwindow.WithBlockCapacity(cfg.BlockCapacity),
		blockwindow.WithTransactionCapacity(cfg.TransactionCapacity),
		blockwindow.WithEvictionHandler(metrics.ObserveBlockEvicted),
	)

	feed := blockfeed.New(window,
		blockfeed.WithFetchConcurrency(cfg.FetchConcurrency),
		blockfeed.WithObserver(metrics),
	)

	stats := netstats.New(window,
		netstats.WithInterval(cfg.StatsInterval),
		netstats.WithPublishers(publishers...),
	)

	httpClient := http.NewClient(
		http.WithTimeout(cfg.HTTPTimeout),
		http.WithRetryMax(cfg.HTTPRetryMax),
	)

	probeRetry := retry.New(
		retry.WithAttempts(cfg.ProbeAttempts),
		retry.WithOnRetry(func(n uint, err error) {
			logger.Warn(ctx, "network probe retry", "attempt", n+1, "error", err)
		}),
	)

	session := netsession.New(window, feed, stats,
		ethereum.NewDialer(httpClient.StandardClient(), ethereum.WithPollInterval(cfg.BlockPollInterval)),
		netsession.WithManagedEndpoints(cfg.ManagedEndpoints()),
		netsession.WithRetry(probeRetry),
		netsession.WithDisplayLimit(cfg.DisplayLimit),
		netsession.WithStateObserver(metrics.ObserveConnectionState),
	)
	defer session.Close()

	return cli.Run(ctx, session, cfg.InitialNetwork())
}
