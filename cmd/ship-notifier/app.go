package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ShipTrack/config"
	"github.com/BearBump/ShipTrack/internal/broker/kafka"
	"github.com/BearBump/ShipTrack/internal/services/notifier"
	"github.com/pkg/errors"
)

const consumeRetryDelay = time.Second

type eventConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
	Close() error
}

type notifierFactories struct {
	newConsumer func(cfg *config.Config) (eventConsumer, error)
}

func defaultNotifierFactories() notifierFactories {
	return notifierFactories{
		newConsumer: func(cfg *config.Config) (eventConsumer, error) {
			brokers := cfg.KafkaBrokers()
			if len(brokers) == 0 {
				return nil, errors.New("kafka brokers are not configured")
			}
			return kafka.NewConsumer(brokers, cfg.Kafka.ShipmentEventsTopicName, cfg.ShipTrack.KafkaConsumerGroup), nil
		},
	}
}

func RunShipNotifier(ctx context.Context, cfg *config.Config, f notifierFactories) error {
	return runShipNotifier(ctx, cfg, f, nil)
}

func runShipNotifier(ctx context.Context, cfg *config.Config, f notifierFactories, onListen func(string)) error {
	consumer, err := f.newConsumer(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()

	n := notifier.New()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runNotifierHTTPServer(ctx, notifierHTTPOpts{
			httpAddr: cfg.ShipTrack.NotifierHTTPAddr,
			onListen: onListen,
			notifier: n,
			ready:    func() bool { return ctx.Err() == nil },
		})
	}()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumeLoop(ctx, consumer, n)
	}()

	slog.Info("ship notifier started",
		"topic", cfg.Kafka.ShipmentEventsTopicName,
		"group", cfg.ShipTrack.KafkaConsumerGroup,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumeErr:
		return err
	}
}

// consumeLoop перезапускает чтение после ошибок брокера, пока жив ctx.
func consumeLoop(ctx context.Context, c eventConsumer, n *notifier.Notifier) error {
	for {
		err := c.Consume(ctx, n.Handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("kafka consume failed, retrying", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(consumeRetryDelay):
		}
	}
}
