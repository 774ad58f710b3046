package monitor

import (
	"time"

	"matchbook/internal/common"
	"matchbook/internal/engine"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SymbolInfo struct {
	Symbol   string `json:"symbol"`
	TickSize string `json:"tick_size"`
}

type LevelView struct {
	Price    string `json:"price"`
	Ticks    int64  `json:"ticks"`
	Quantity uint64 `json:"quantity"`
	Orders   int    `json:"orders"`
}

type BookView struct {
	Symbol         string        `json:"symbol"`
	TickSize       string        `json:"tick_size"`
	BestBid        *LevelView    `json:"best_bid,omitempty"`
	BestAsk        *LevelView    `json:"best_ask,omitempty"`
	Bids           []LevelView   `json:"bids"`
	Asks           []LevelView   `json:"asks"`
	BidOrders      uint64        `json:"bid_orders"`
	AskOrders      uint64        `json:"ask_orders"`
	BidQuantity    uint64        `json:"bid_quantity"`
	AskQuantity    uint64        `json:"ask_quantity"`
	LastTradePrice string        `json:"last_trade_price,omitempty"`
	Reference      *engine.Quote `json:"reference,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

type TradeView struct {
	ID           string      `json:"id"`
	Seq          uint64      `json:"seq"`
	Symbol       string      `json:"symbol"`
	Price        string      `json:"price"`
	Quantity     uint64      `json:"quantity"`
	TakerSide    common.Side `json:"taker_side"`
	TakerOrderID string      `json:"taker_order_id"`
	MakerOrderID string      `json:"maker_order_id"`
	Timestamp    time.Time   `json:"timestamp"`
}

func newLevelView(level engine.Level, tick decimal.Decimal) LevelView {
	return LevelView{
		Price:    level.Price.Decimal(tick).String(),
		Ticks:    int64(level.Price),
		Quantity: level.Quantity,
		Orders:   level.Orders,
	}
}

func newLevelViews(levels []engine.Level, tick decimal.Decimal) []LevelView {
	out := make([]LevelView, len(levels))
	for i, level := range levels {
		out[i] = newLevelView(level, tick)
	}
	return out
}

func newBookView(snap engine.Snapshot, tick decimal.Decimal) BookView {
	view := BookView{
		Symbol:      snap.Symbol,
		TickSize:    tick.String(),
		Bids:        newLevelViews(snap.Bids, tick),
		Asks:        newLevelViews(snap.Asks, tick),
		BidOrders:   snap.BidOrders,
		AskOrders:   snap.AskOrders,
		BidQuantity: snap.BidQuantity,
		AskQuantity: snap.AskQuantity,
		Reference:   snap.Reference,
		Timestamp:   snap.Timestamp,
	}
	if snap.BestBid != nil {
		best := newLevelView(*snap.BestBid, tick)
		view.BestBid = &best
	}
	if snap.BestAsk != nil {
		best := newLevelView(*snap.BestAsk, tick)
		view.BestAsk = &best
	}
	if snap.LastTradePrice > 0 {
		view.LastTradePrice = snap.LastTradePrice.Decimal(tick).String()
	}
	return view
}

func newTradeView(trade common.Trade, tick decimal.Decimal) TradeView {
	return TradeView{
		ID:           trade.ID,
		Seq:          trade.Seq,
		Symbol:       trade.Symbol,
		Price:        trade.Price.Decimal(tick).String(),
		Quantity:     trade.Quantity,
		TakerSide:    trade.TakerSide,
		TakerOrderID: trade.TakerOrderID,
		MakerOrderID: trade.MakerOrderID,
		Timestamp:    trade.Timestamp,
	}
}
