package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"matchbook/internal/config"
	"matchbook/internal/engine"
	"matchbook/internal/feed"
	"matchbook/internal/journal"
	"matchbook/internal/logging"
	"matchbook/internal/monitor"
	"matchbook/internal/sim"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.LoadFromEnv("")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Fatal().Err(err).Msg("invalid log configuration")
	}

	policy, err := engine.ParseSelfTradePolicy(cfg.Engine.SelfTradePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine configuration")
	}

	// Setup the matching engine and its observers.
	eng := engine.New(engine.Options{
		SelfTrade:       policy,
		MaxFillsPerPass: cfg.Engine.MaxFillsPerPass,
		TradeLogSize:    cfg.Engine.TradeLogSize,
	}, cfg.SymbolNames()...)

	hub := monitor.NewHub()
	reporters := engine.Reporters{hub}
	if cfg.Journal.Dir != "" {
		j, err := journal.Open(cfg.Journal.Dir, journal.Options{Sync: cfg.Journal.Sync})
		if err != nil {
			log.Fatal().Err(err).Msg("unable to open journal")
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Error().Err(err).Msg("unable to close journal")
			}
		}()
		reporters = append(reporters, j)
	}
	eng.SetReporter(reporters)

	t, _ := tomb.WithContext(ctx)

	dispatcher := engine.NewDispatcher(eng, cfg.Engine.Workers, cfg.Engine.QueueSize)
	dispatcher.Start(t)

	startPrices := make(map[string]decimal.Decimal, len(cfg.Symbols))
	for _, symbol := range cfg.SymbolNames() {
		startPrices[symbol] = cfg.StartPrice(symbol)
	}
	refresher := feed.NewRefresher(feed.NewRandomWalk(startPrices, 0.002, 1), eng, cfg.Feed.Interval)
	t.Go(func() error { return refresher.Run(t) })

	stats := monitor.NewStatsLogger(eng, cfg.Monitor.Interval)
	t.Go(func() error { return stats.Run(t) })

	srv := monitor.NewServer(eng, hub, cfg.TickSizes(), cfg.Monitor.AllowedOrigins)
	t.Go(func() error { return srv.Run(t, cfg.Monitor.Addr) })

	if cfg.Sim.OrdersPerSec > 0 {
		flow := sim.NewFlow(dispatcher, eng, cfg.TickSizes(), cfg.Sim.OrdersPerSec, 1)
		t.Go(func() error { return flow.Run(t) })
	}

	log.Info().Strs("symbols", eng.Symbols()).Msg("engine running")

	// Block until a signal arrives or a task fails.
	<-t.Dying()
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine stopped with error")
	}
	log.Info().Msg("engine stopped")
}
