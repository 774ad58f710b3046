package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"matchbook/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const defaultTradeLogSize = 10_000

type Options struct {
	SelfTrade SelfTradePolicy
	// MaxFillsPerPass bounds a single matching pass, see Matcher.MaxFills.
	MaxFillsPerPass int
	// TradeLogSize is how many recent trades each symbol keeps in memory.
	TradeLogSize int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// symbolBook is one independently lockable unit: a book and its trade log.
type symbolBook struct {
	mu        sync.RWMutex
	book      *OrderBook
	trades    []common.Trade
	lastPrice common.Price
}

// OrderResult is the outcome of one submission.
type OrderResult struct {
	// Order as it stood when the submission finished.
	Order  common.Order
	Trades []common.Trade
	// Makers are the resting orders the submission traded with.
	Makers []common.Order
	// Cancelled are resting orders removed by self-trade prevention.
	Cancelled []common.Order
}

type Stats struct {
	Symbols         int    `json:"symbols"`
	OrdersAccepted  uint64 `json:"orders_accepted"`
	OrdersRejected  uint64 `json:"orders_rejected"`
	OrdersCancelled uint64 `json:"orders_cancelled"`
	Trades          uint64 `json:"trades"`
	TradedQuantity  uint64 `json:"traded_quantity"`
	RestingOrders   uint64 `json:"resting_orders"`
	TickerUpdates   uint64 `json:"ticker_updates"`
}

// Engine routes orders to per-symbol books. Different symbols are matched in
// parallel; operations on one symbol are serialised by that symbol's lock,
// which is held for the whole submit and match. No operation ever holds two
// symbol locks.
type Engine struct {
	mu    sync.RWMutex // Guards the books map only.
	books map[string]*symbolBook

	// Live order ID to symbol, for cancels that only carry an order ID.
	live sync.Map

	ticker   *Ticker
	matcher  *Matcher
	orderSeq Sequencer
	reporter atomic.Value // reporterBox

	tradeLogSize int
	now          func() time.Time

	accepted       atomic.Uint64
	rejected       atomic.Uint64
	cancelled      atomic.Uint64
	trades         atomic.Uint64
	tradedQuantity atomic.Uint64
	tickerUpdates  atomic.Uint64
}

type reporterBox struct{ Reporter }

func New(opts Options, symbols ...string) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TradeLogSize <= 0 {
		opts.TradeLogSize = defaultTradeLogSize
	}

	matcher := NewMatcher(opts.SelfTrade, opts.MaxFillsPerPass)
	matcher.now = opts.Clock

	engine := &Engine{
		books:        make(map[string]*symbolBook),
		ticker:       NewTicker(),
		matcher:      matcher,
		tradeLogSize: opts.TradeLogSize,
		now:          opts.Clock,
	}
	engine.reporter.Store(reporterBox{nopReporter{}})

	for _, symbol := range symbols {
		engine.AddSymbol(symbol)
	}
	return engine
}

// SetReporter replaces the observer of trades and order updates.
func (engine *Engine) SetReporter(r Reporter) {
	if r == nil {
		r = nopReporter{}
	}
	engine.reporter.Store(reporterBox{r})
}

// AddSymbol makes a symbol tradable. It is a no-op for known symbols and
// reports whether the symbol was added.
func (engine *Engine) AddSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if _, ok := engine.books[symbol]; ok {
		return false
	}
	engine.books[symbol] = &symbolBook{book: NewOrderBook(symbol)}
	log.Info().Str("symbol", symbol).Msg("symbol added")
	return true
}

// Symbols lists tradable symbols, sorted.
func (engine *Engine) Symbols() []string {
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	symbols := make([]string, 0, len(engine.books))
	for symbol := range engine.books {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}

func (engine *Engine) book(symbol string) (*symbolBook, bool) {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	sb, ok := engine.books[symbol]
	return sb, ok
}

// SubmitOrder validates an order, matches it against its symbol's book and
// rests whatever is left. Rejections return the error along with the order
// in the Rejected state; no book is touched in that case.
//
// The engine owns fill state and arrival sequence: CumQuantity, Seq,
// ExchTimestamp and State are overwritten.
func (engine *Engine) SubmitOrder(ctx context.Context, order common.Order) (OrderResult, error) {
	order.CumQuantity = 0
	order.LeavesQuantity = order.Quantity
	order.Seq = 0
	order.State = common.Pending

	if err := ctx.Err(); err != nil {
		return engine.reject(order, err)
	}
	if err := validateOrder(order); err != nil {
		return engine.reject(order, err)
	}
	sb, ok := engine.book(order.Symbol)
	if !ok {
		return engine.reject(order, fmt.Errorf("%w: %s", ErrUnknownSymbol, order.Symbol))
	}
	// Order IDs are unique across the live orders of every symbol, so a
	// cancel by ID alone is unambiguous.
	if _, loaded := engine.live.LoadOrStore(order.ID, order.Symbol); loaded {
		return engine.reject(order, fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID))
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	// Sequenced under the symbol lock so that arrival order within a symbol
	// is lock order.
	order.Seq = engine.orderSeq.Next()
	order.ExchTimestamp = engine.now()

	aggressor := &order
	matched, err := engine.matcher.Match(sb.book, aggressor)
	if err != nil {
		engine.live.CompareAndDelete(order.ID, order.Symbol)
		return engine.reject(order, err)
	}
	if aggressor.State.Terminal() {
		engine.live.CompareAndDelete(aggressor.ID, aggressor.Symbol)
	}
	for _, maker := range matched.Makers {
		if maker.State.Terminal() {
			engine.live.CompareAndDelete(maker.ID, maker.Symbol)
		}
	}
	for _, cancelled := range matched.Cancelled {
		engine.live.CompareAndDelete(cancelled.ID, cancelled.Symbol)
	}

	engine.record(sb, matched.Trades)
	engine.accepted.Add(1)
	engine.cancelled.Add(uint64(len(matched.Cancelled)))
	if aggressor.State == common.Cancelled {
		engine.cancelled.Add(1)
	}

	result := OrderResult{
		Order:     *aggressor,
		Trades:    matched.Trades,
		Makers:    matched.Makers,
		Cancelled: matched.Cancelled,
	}
	engine.report(result)

	log.Debug().
		Str("symbol", order.Symbol).
		Str("order", order.ID).
		Uint64("seq", aggressor.Seq).
		Int("trades", len(result.Trades)).
		Stringer("state", aggressor.State).
		Msg("order processed")
	return result, nil
}

func (engine *Engine) reject(order common.Order, err error) (OrderResult, error) {
	order.State = common.Rejected
	engine.rejected.Add(1)
	log.Debug().Err(err).Str("order", order.ID).Str("symbol", order.Symbol).Msg("order rejected")
	return OrderResult{Order: order}, err
}

// record appends trades to the symbol's bounded trade log. Callers hold the
// symbol lock.
func (engine *Engine) record(sb *symbolBook, trades []common.Trade) {
	if len(trades) == 0 {
		return
	}
	sb.trades = append(sb.trades, trades...)
	if over := len(sb.trades) - engine.tradeLogSize; over > 0 {
		sb.trades = slices.Delete(sb.trades, 0, over)
	}
	sb.lastPrice = trades[len(trades)-1].Price

	var qty uint64
	for _, trade := range trades {
		qty += trade.Quantity
	}
	engine.trades.Add(uint64(len(trades)))
	engine.tradedQuantity.Add(qty)
}

// report pushes a submission's events to the reporter. Callers hold the
// symbol lock.
func (engine *Engine) report(result OrderResult) {
	r := engine.reporter.Load().(reporterBox)
	for _, trade := range result.Trades {
		if err := r.ReportTrade(trade); err != nil {
			log.Error().Err(err).Str("trade", trade.ID).Msg("unable to report trade")
		}
	}
	updates := make([]common.Order, 0, 1+len(result.Makers)+len(result.Cancelled))
	updates = append(updates, result.Cancelled...)
	updates = append(updates, result.Makers...)
	updates = append(updates, result.Order)
	for _, order := range updates {
		if err := r.ReportOrder(order); err != nil {
			log.Error().Err(err).Str("order", order.ID).Msg("unable to report order")
		}
	}
}

// CancelOrder removes a resting order from its book. Orders that never
// existed, are already filled or already cancelled give ErrOrderNotFound; a
// cancel racing with a match either wins the symbol lock or finds the order
// gone.
func (engine *Engine) CancelOrder(id string) (common.Order, error) {
	value, ok := engine.live.Load(id)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	symbol := value.(string)
	sb, ok := engine.book(symbol)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	order, ok := sb.book.Remove(id)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	order.State = common.Cancelled
	engine.live.CompareAndDelete(id, symbol)
	engine.cancelled.Add(1)

	r := engine.reporter.Load().(reporterBox)
	if err := r.ReportOrder(*order); err != nil {
		log.Error().Err(err).Str("order", id).Msg("unable to report order")
	}
	log.Debug().Str("symbol", symbol).Str("order", id).Msg("order cancelled")
	return *order, nil
}

// Order looks up a resting order by ID.
func (engine *Engine) Order(id string) (common.Order, bool) {
	value, ok := engine.live.Load(id)
	if !ok {
		return common.Order{}, false
	}
	sb, ok := engine.book(value.(string))
	if !ok {
		return common.Order{}, false
	}

	sb.mu.RLock()
	defer sb.mu.RUnlock()
	order, ok := sb.book.Get(id)
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

// ApplyExternalTick merges reference prices into the ticker table. Unknown
// symbols and non-positive prices are ignored. No order book is touched.
func (engine *Engine) ApplyExternalTick(prices map[string]decimal.Decimal) int {
	known := make(map[string]decimal.Decimal, len(prices))
	engine.mu.RLock()
	for symbol, price := range prices {
		if _, ok := engine.books[symbol]; ok {
			known[symbol] = price
		} else {
			log.Debug().Str("symbol", symbol).Msg("tick for unknown symbol ignored")
		}
	}
	engine.mu.RUnlock()

	applied := engine.ticker.Apply(known, engine.now())
	engine.tickerUpdates.Add(uint64(applied))
	return applied
}

// Quote returns the latest reference price of a symbol.
func (engine *Engine) Quote(symbol string) (Quote, bool) {
	return engine.ticker.Get(symbol)
}

// Quotes copies the reference price table.
func (engine *Engine) Quotes() map[string]Quote {
	return engine.ticker.Quotes()
}

// Trades returns up to limit of the most recent trades of a symbol, oldest
// first. A non-positive limit returns the whole retained log.
func (engine *Engine) Trades(symbol string, limit int) ([]common.Trade, error) {
	sb, ok := engine.book(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	sb.mu.RLock()
	defer sb.mu.RUnlock()
	trades := sb.trades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return slices.Clone(trades), nil
}

func (engine *Engine) Stats() Stats {
	stats := Stats{
		OrdersAccepted:  engine.accepted.Load(),
		OrdersRejected:  engine.rejected.Load(),
		OrdersCancelled: engine.cancelled.Load(),
		Trades:          engine.trades.Load(),
		TradedQuantity:  engine.tradedQuantity.Load(),
		TickerUpdates:   engine.tickerUpdates.Load(),
	}
	for _, symbol := range engine.Symbols() {
		sb, _ := engine.book(symbol)
		sb.mu.RLock()
		stats.RestingOrders += uint64(sb.book.Len())
		sb.mu.RUnlock()
		stats.Symbols++
	}
	return stats
}
