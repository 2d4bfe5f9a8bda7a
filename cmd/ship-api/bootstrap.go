package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipTrack/config"
	"github.com/BearBump/ShipTrack/internal/api/cors"
	shipmentsapi "github.com/BearBump/ShipTrack/internal/api/shipments_api"
	"github.com/BearBump/ShipTrack/internal/broker/kafka"
	"github.com/BearBump/ShipTrack/internal/cache/rediscache"
	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/BearBump/ShipTrack/internal/services/shipments"
	"github.com/BearBump/ShipTrack/internal/storage/pgshipments"
)

type shipAPIApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   shipAPIOpts
	api    *shipmentsapi.ShipmentsAPI

	closers []func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfg, err := config.Load(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	loc, err := cfg.Location()
	if err != nil {
		panic(err)
	}
	metrics.Init()

	app := &shipAPIApp{}

	// без БД сервис поднимается в деградированном режиме
	var repo shipments.Repository
	if connString, ok := cfg.PostgresConnString(); ok {
		st := mustOpenPostgresWithRetry(connString, 60*time.Second)
		repo = st
		app.closers = append(app.closers, st.Close)
	} else {
		slog.Warn("DATABASE_URL is not set, running without storage")
	}

	var pub shipments.Publisher
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers)
		pub = producer
		app.closers = append(app.closers, func() { _ = producer.Close() })
	}

	svc := shipments.New(repo, pub, cfg.Kafka.ShipmentEventsTopicName).
		WithLocation(loc).
		WithRecentLimit(cfg.ShipTrack.RecentShipmentsLimit)
	api := shipmentsapi.New(svc)

	if addr := cfg.RedisAddr(); addr != "" {
		rl := rediscache.NewRateLimiter(addr, "shiptrack:rl")
		api.WithCodesRateLimit(rl, cfg.ShipTrack.CodesRateLimitPerMinute)
		app.closers = append(app.closers, func() { _ = rl.Close() })
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.api = api
	app.opts = shipAPIOpts{
		httpAddr:    cfg.ShipTrack.HTTPAddr,
		swaggerPath: os.Getenv("swaggerPath"),
		cors:        cors.NewPolicy(cfg.ShipTrack.CORSOrigins, cfg.ShipTrack.CORSDebug),
		trustProxy:  cfg.ShipTrack.TrustProxy,
	}
	return app
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipments.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		slog.Warn("postgres is not ready, retrying", "error", err.Error())
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.api)
}
