package engine

import (
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest external reference price of a symbol.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ticker is the shared symbol to reference price table. Its lock only guards
// the table and is independent of every order book lock.
type Ticker struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewTicker() *Ticker {
	return &Ticker{quotes: make(map[string]Quote)}
}

// Apply merges a batch of prices into the table. Non-positive prices are
// skipped. Returns the number of quotes written.
func (t *Ticker) Apply(prices map[string]decimal.Decimal, at time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for symbol, price := range prices {
		if !price.IsPositive() {
			continue
		}
		t.quotes[symbol] = Quote{Price: price, UpdatedAt: at}
		applied++
	}
	return applied
}

func (t *Ticker) Get(symbol string) (Quote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	quote, ok := t.quotes[symbol]
	return quote, ok
}

// Quotes copies the whole table.
func (t *Ticker) Quotes() map[string]Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.quotes)
}
