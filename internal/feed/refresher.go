package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

const DefaultInterval = 3 * time.Second

// TickSink receives reference prices; the engine is one.
type TickSink interface {
	ApplyExternalTick(prices map[string]decimal.Decimal) int
}

// Refresher periodically pulls prices from a Source into a TickSink. It
// never touches order books, so it runs alongside matching without
// contention.
type Refresher struct {
	source   Source
	sink     TickSink
	interval time.Duration
}

func NewRefresher(source Source, sink TickSink, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{source: source, sink: sink, interval: interval}
}

// Run refreshes once immediately and then every interval until the tomb is
// dying. Fetch failures are logged and retried on the next interval.
func (r *Refresher) Run(t *tomb.Tomb) error {
	ctx := t.Context(nil)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("ticker refresh running")
	r.refresh(ctx)
	for {
		select {
		case <-t.Dying():
			log.Info().Msg("ticker refresh stopped")
			return nil
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	prices, err := r.source.Fetch(fetchCtx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("unable to fetch ticker")
		}
		return
	}
	applied := r.sink.ApplyExternalTick(prices)
	log.Debug().Int("received", len(prices)).Int("applied", applied).Msg("ticker refreshed")
}
