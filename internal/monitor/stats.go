package monitor

import (
	"time"

	"matchbook/internal/engine"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const DefaultStatsInterval = 10 * time.Second

type StatsSource interface {
	Stats() engine.Stats
}

// StatsLogger periodically logs engine counters.
type StatsLogger struct {
	source   StatsSource
	interval time.Duration
}

func NewStatsLogger(source StatsSource, interval time.Duration) *StatsLogger {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &StatsLogger{source: source, interval: interval}
}

func (l *StatsLogger) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var last engine.Stats
	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			stats := l.source.Stats()
			log.Info().
				Int("symbols", stats.Symbols).
				Uint64("accepted", stats.OrdersAccepted).
				Uint64("rejected", stats.OrdersRejected).
				Uint64("cancelled", stats.OrdersCancelled).
				Uint64("trades", stats.Trades).
				Uint64("new_trades", stats.Trades-last.Trades).
				Uint64("traded_qty", stats.TradedQuantity).
				Uint64("resting", stats.RestingOrders).
				Msg("engine stats")
			last = stats
		}
	}
}
