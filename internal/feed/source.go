package feed

import (
	"context"
	"maps"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
)

// Source is an external reference price feed.
type Source interface {
	Fetch(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Static always returns the same prices.
type Static map[string]decimal.Decimal

func (s Static) Fetch(context.Context) (map[string]decimal.Decimal, error) {
	return maps.Clone(s), nil
}

// RandomWalk moves each price by a random step every fetch. It stands in for
// a market data feed in development.
type RandomWalk struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	step   float64 // Maximum relative move per fetch.
	floor  decimal.Decimal
	rng    *rand.Rand
}

func NewRandomWalk(start map[string]decimal.Decimal, step float64, seed uint64) *RandomWalk {
	return &RandomWalk{
		prices: maps.Clone(start),
		step:   step,
		floor:  decimal.New(1, -2),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (w *RandomWalk) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for symbol, price := range w.prices {
		move := decimal.NewFromFloat(1 + (w.rng.Float64()*2-1)*w.step)
		next := price.Mul(move).Round(4)
		if next.LessThan(w.floor) {
			next = w.floor
		}
		w.prices[symbol] = next
	}
	return maps.Clone(w.prices), nil
}
