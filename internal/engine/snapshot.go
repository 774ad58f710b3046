package engine

import (
	"fmt"
	"time"

	"matchbook/internal/common"
)

// Snapshot is a read-only view of one symbol's book for monitoring.
type Snapshot struct {
	Symbol         string       `json:"symbol"`
	BestBid        *Level       `json:"best_bid,omitempty"`
	BestAsk        *Level       `json:"best_ask,omitempty"`
	Bids           []Level      `json:"bids"`
	Asks           []Level      `json:"asks"`
	BidOrders      uint64       `json:"bid_orders"`
	AskOrders      uint64       `json:"ask_orders"`
	BidQuantity    uint64       `json:"bid_quantity"`
	AskQuantity    uint64       `json:"ask_quantity"`
	LastTradePrice common.Price `json:"last_trade_price,omitempty"`
	Reference      *Quote       `json:"reference,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Snapshot copies up to depth levels of each side of a symbol's book, all of
// them if depth <= 0.
func (engine *Engine) Snapshot(symbol string, depth int) (Snapshot, error) {
	sb, ok := engine.book(symbol)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	snap := Snapshot{Symbol: symbol}
	sb.mu.RLock()
	snap.Bids = sb.book.Depth(common.Buy, depth)
	snap.Asks = sb.book.Depth(common.Sell, depth)
	snap.BidOrders, snap.BidQuantity = sb.book.Liquidity(common.Buy)
	snap.AskOrders, snap.AskQuantity = sb.book.Liquidity(common.Sell)
	snap.LastTradePrice = sb.lastPrice
	sb.mu.RUnlock()

	// The ticker is read outside the book lock; the two are independent.
	if quote, ok := engine.ticker.Get(symbol); ok {
		snap.Reference = &quote
	}
	if len(snap.Bids) > 0 {
		best := snap.Bids[0]
		snap.BestBid = &best
	}
	if len(snap.Asks) > 0 {
		best := snap.Asks[0]
		snap.BestAsk = &best
	}
	snap.Timestamp = engine.now()
	return snap, nil
}
