package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/ShipTrack/config"
	"github.com/BearBump/ShipTrack/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	metrics.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunShipNotifier(ctx, cfg, defaultNotifierFactories()); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
