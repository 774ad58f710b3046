// Package sim generates synthetic order flow around the reference prices,
// so the engine can be exercised without a client transport.
package sim

import (
	"context"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/engine"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

const (
	maxQuantity = 100
	owners      = 8
)

// Dispatcher queues engine events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev engine.Event) error
}

// QuoteSource provides reference prices.
type QuoteSource interface {
	Quote(symbol string) (engine.Quote, bool)
}

// Flow submits random limit orders at a fixed rate. Prices are drawn within
// spread of the symbol's reference price, so books cross now and then.
type Flow struct {
	dispatcher Dispatcher
	quotes     QuoteSource
	ticks      map[string]decimal.Decimal
	symbols    []string
	rate       int
	spread     float64
	rng        *rand.Rand
}

func NewFlow(dispatcher Dispatcher, quotes QuoteSource, ticks map[string]decimal.Decimal, rate int, seed uint64) *Flow {
	return &Flow{
		dispatcher: dispatcher,
		quotes:     quotes,
		ticks:      ticks,
		symbols:    slices.Sorted(maps.Keys(ticks)),
		rate:       max(rate, 1),
		spread:     0.005,
		rng:        rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func (f *Flow) Run(t *tomb.Tomb) error {
	if len(f.symbols) == 0 {
		return nil
	}
	ctx := t.Context(nil)
	ticker := time.NewTicker(time.Second / time.Duration(f.rate))
	defer ticker.Stop()

	log.Info().Int("rate", f.rate).Msg("simulated order flow running")
	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			order, ok := f.next()
			if !ok {
				continue
			}
			if err := f.dispatcher.Dispatch(ctx, engine.Event{Kind: engine.SubmitEvent, Order: order}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn().Err(err).Msg("unable to dispatch simulated order")
			}
		}
	}
}

// next draws an order, or reports false while a symbol has no reference
// price yet.
func (f *Flow) next() (common.Order, bool) {
	symbol := f.symbols[f.rng.IntN(len(f.symbols))]
	quote, ok := f.quotes.Quote(symbol)
	if !ok {
		return common.Order{}, false
	}

	side := common.Buy
	if f.rng.IntN(2) == 1 {
		side = common.Sell
	}
	offset := decimal.NewFromFloat(1 + (f.rng.Float64()*2-1)*f.spread)
	price := common.RoundToTick(quote.Price.Mul(offset), f.ticks[symbol])
	qty := uint64(f.rng.IntN(maxQuantity) + 1)

	order := common.NewOrder(uuid.NewString(), symbol, side, price, qty)
	order.Owner = "sim-" + string(rune('a'+f.rng.IntN(owners)))
	return order, true
}
