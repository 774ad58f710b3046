package engine_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"matchbook/internal/common"
	"matchbook/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(symbols ...string) *engine.Engine {
	return engine.New(engine.Options{Clock: func() time.Time { return fixedTime }}, symbols...)
}

func limitOrder(id, symbol string, side common.Side, price common.Price, qty uint64) common.Order {
	return common.NewOrder(id, symbol, side, price, qty)
}

// recorder keeps every reported event in arrival order.
type recorder struct {
	mu     sync.Mutex
	trades []common.Trade
	orders []common.Order
}

func (r *recorder) ReportTrade(trade common.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
	return nil
}

func (r *recorder) ReportOrder(order common.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	return nil
}

func (r *recorder) orderStates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.orders))
	for i, order := range r.orders {
		out[i] = order.ID + ":" + order.State.String()
	}
	return out
}

func TestSubmitOrder_Rejections(t *testing.T) {
	eng := newTestEngine("AAPL")
	ctx := context.Background()

	res, err := eng.SubmitOrder(ctx, limitOrder("o1", "MSFT", common.Buy, 100, 1))
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
	assert.Equal(t, common.Rejected, res.Order.State)

	_, err = eng.SubmitOrder(ctx, limitOrder("o2", "AAPL", common.Buy, 100, 0))
	assert.ErrorIs(t, err, engine.ErrInvalidOrder)
	_, err = eng.SubmitOrder(ctx, limitOrder("o3", "AAPL", common.Buy, -1, 10))
	assert.ErrorIs(t, err, engine.ErrInvalidOrder)
	_, err = eng.SubmitOrder(ctx, limitOrder("", "AAPL", common.Buy, 100, 10))
	assert.ErrorIs(t, err, engine.ErrInvalidOrder)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = eng.SubmitOrder(cancelled, limitOrder("o4", "AAPL", common.Buy, 100, 10))
	assert.ErrorIs(t, err, context.Canceled)

	snap, err := eng.Snapshot("AAPL", 0)
	require.NoError(t, err)
	assert.Zero(t, snap.BidOrders)
	assert.Equal(t, uint64(5), eng.Stats().OrdersRejected)
	assert.Zero(t, eng.Stats().OrdersAccepted)
}

func TestSubmitOrder_Duplicate(t *testing.T) {
	eng := newTestEngine("AAPL", "GOOGL")
	ctx := context.Background()

	_, err := eng.SubmitOrder(ctx, limitOrder("dup", "AAPL", common.Buy, 100, 10))
	require.NoError(t, err)

	// Live IDs are unique across symbols.
	_, err = eng.SubmitOrder(ctx, limitOrder("dup", "AAPL", common.Buy, 101, 10))
	assert.ErrorIs(t, err, engine.ErrDuplicateOrder)
	_, err = eng.SubmitOrder(ctx, limitOrder("dup", "GOOGL", common.Sell, 101, 10))
	assert.ErrorIs(t, err, engine.ErrDuplicateOrder)

	snap, err := eng.Snapshot("AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.BidOrders)
	assert.Equal(t, uint64(10), snap.BidQuantity)

	// Once the order is gone its ID can be reused.
	_, err = eng.CancelOrder("dup")
	require.NoError(t, err)
	_, err = eng.SubmitOrder(ctx, limitOrder("dup", "GOOGL", common.Sell, 101, 10))
	assert.NoError(t, err)
}

func TestSubmitOrder_EngineOwnsFillState(t *testing.T) {
	eng := newTestEngine("AAPL")

	order := limitOrder("o1", "AAPL", common.Buy, 100, 10)
	order.CumQuantity = 4
	order.LeavesQuantity = 1
	order.Seq = 99
	order.State = common.Filled

	res, err := eng.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Order.CumQuantity)
	assert.Equal(t, uint64(10), res.Order.LeavesQuantity)
	assert.Equal(t, uint64(1), res.Order.Seq)
	assert.Equal(t, common.Resting, res.Order.State)
	assert.Equal(t, fixedTime, res.Order.ExchTimestamp)
}

func TestSubmitOrder_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("maker price", func(t *testing.T) {
		eng := newTestEngine("AAPL")
		_, err := eng.SubmitOrder(ctx, limitOrder("bid", "AAPL", common.Buy, 1000, 5))
		require.NoError(t, err)

		res, err := eng.SubmitOrder(ctx, limitOrder("ask", "AAPL", common.Sell, 950, 3))
		require.NoError(t, err)
		require.Len(t, res.Trades, 1)
		assert.Equal(t, common.Price(1000), res.Trades[0].Price)
		assert.Equal(t, uint64(3), res.Trades[0].Quantity)
		assert.Equal(t, fixedTime, res.Trades[0].Timestamp)
		assert.Equal(t, common.Filled, res.Order.State)

		bid, ok := eng.Order("bid")
		require.True(t, ok)
		assert.Equal(t, uint64(2), bid.LeavesQuantity)
		assert.Equal(t, common.PartiallyFilled, bid.State)
		_, ok = eng.Order("ask")
		assert.False(t, ok)
	})

	t.Run("time priority", func(t *testing.T) {
		eng := newTestEngine("AAPL")
		_, err := eng.SubmitOrder(ctx, limitOrder("b1", "AAPL", common.Buy, 1000, 5))
		require.NoError(t, err)
		_, err = eng.SubmitOrder(ctx, limitOrder("b2", "AAPL", common.Buy, 1000, 5))
		require.NoError(t, err)

		res, err := eng.SubmitOrder(ctx, limitOrder("s1", "AAPL", common.Sell, 1000, 7))
		require.NoError(t, err)
		assert.Equal(t, []fill{{"b1", 1000, 5}, {"b2", 1000, 2}}, fills(res.Trades))

		snap, err := eng.Snapshot("AAPL", 1)
		require.NoError(t, err)
		require.NotNil(t, snap.BestBid)
		assert.Equal(t, engine.Level{Price: 1000, Quantity: 3, Orders: 1}, *snap.BestBid)
		assert.Nil(t, snap.BestAsk)
		assert.Equal(t, common.Price(1000), snap.LastTradePrice)
	})

	t.Run("cancel then cross", func(t *testing.T) {
		eng := newTestEngine("AAPL")
		_, err := eng.SubmitOrder(ctx, limitOrder("bid", "AAPL", common.Buy, 1000, 5))
		require.NoError(t, err)

		cancelled, err := eng.CancelOrder("bid")
		require.NoError(t, err)
		assert.Equal(t, common.Cancelled, cancelled.State)
		assert.Equal(t, uint64(5), cancelled.LeavesQuantity)

		_, err = eng.CancelOrder("bid")
		assert.ErrorIs(t, err, engine.ErrOrderNotFound)

		res, err := eng.SubmitOrder(ctx, limitOrder("ask", "AAPL", common.Sell, 1000, 5))
		require.NoError(t, err)
		assert.Empty(t, res.Trades)
		assert.Equal(t, common.Resting, res.Order.State)
	})
}

func TestCancelOrder(t *testing.T) {
	eng := newTestEngine("AAPL")
	ctx := context.Background()

	_, err := eng.CancelOrder("never")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	_, err = eng.SubmitOrder(ctx, limitOrder("bid", "AAPL", common.Buy, 100, 5))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(ctx, limitOrder("ask", "AAPL", common.Sell, 100, 5))
	require.NoError(t, err)

	// Filled orders cannot be cancelled.
	_, err = eng.CancelOrder("bid")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
	_, err = eng.CancelOrder("ask")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	stats := eng.Stats()
	assert.Equal(t, uint64(2), stats.OrdersAccepted)
	assert.Equal(t, uint64(1), stats.Trades)
	assert.Equal(t, uint64(5), stats.TradedQuantity)
	assert.Zero(t, stats.RestingOrders)
}

func TestAddSymbol(t *testing.T) {
	eng := newTestEngine()
	assert.True(t, eng.AddSymbol("AAPL"))
	assert.False(t, eng.AddSymbol("AAPL"))
	assert.False(t, eng.AddSymbol(""))
	assert.True(t, eng.AddSymbol("GOOGL"))
	assert.Equal(t, []string{"AAPL", "GOOGL"}, eng.Symbols())

	_, err := eng.SubmitOrder(context.Background(), limitOrder("o1", "AAPL", common.Buy, 100, 1))
	require.NoError(t, err)
	// Re-adding keeps the existing book.
	eng.AddSymbol("AAPL")
	_, ok := eng.Order("o1")
	assert.True(t, ok)
}

func TestApplyExternalTick(t *testing.T) {
	eng := newTestEngine("AAPL", "GOOGL")

	applied := eng.ApplyExternalTick(map[string]decimal.Decimal{
		"AAPL":  decimal.RequireFromString("190.25"),
		"GOOGL": decimal.Zero,
		"MSFT":  decimal.RequireFromString("410"),
	})
	assert.Equal(t, 1, applied)

	quote, ok := eng.Quote("AAPL")
	require.True(t, ok)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("190.25")))
	assert.Equal(t, fixedTime, quote.UpdatedAt)
	_, ok = eng.Quote("GOOGL")
	assert.False(t, ok)
	_, ok = eng.Quote("MSFT")
	assert.False(t, ok)

	// Later ticks overwrite, and books stay untouched.
	eng.ApplyExternalTick(map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("191")})
	quote, _ = eng.Quote("AAPL")
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(191)))
	assert.Len(t, eng.Quotes(), 1)

	snap, err := eng.Snapshot("AAPL", 0)
	require.NoError(t, err)
	require.NotNil(t, snap.Reference)
	assert.Empty(t, snap.Bids)
	assert.Equal(t, uint64(2), eng.Stats().TickerUpdates)
}

func TestSnapshot(t *testing.T) {
	eng := newTestEngine("AAPL")
	ctx := context.Background()

	for i, price := range []common.Price{99, 98, 97, 96} {
		_, err := eng.SubmitOrder(ctx, limitOrder(fmt.Sprintf("b%d", i), "AAPL", common.Buy, price, 10))
		require.NoError(t, err)
	}
	_, err := eng.SubmitOrder(ctx, limitOrder("a1", "AAPL", common.Sell, 101, 7))
	require.NoError(t, err)

	snap, err := eng.Snapshot("AAPL", 2)
	require.NoError(t, err)
	assert.Equal(t, []engine.Level{{Price: 99, Quantity: 10, Orders: 1}, {Price: 98, Quantity: 10, Orders: 1}}, snap.Bids)
	assert.Equal(t, []engine.Level{{Price: 101, Quantity: 7, Orders: 1}}, snap.Asks)
	assert.Equal(t, uint64(4), snap.BidOrders)
	assert.Equal(t, uint64(40), snap.BidQuantity)
	assert.Equal(t, uint64(7), snap.AskQuantity)
	assert.Nil(t, snap.Reference)
	assert.Equal(t, fixedTime, snap.Timestamp)

	_, err = eng.Snapshot("MSFT", 2)
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
}

func TestTrades_Log(t *testing.T) {
	eng := engine.New(engine.Options{TradeLogSize: 3}, "AAPL")
	ctx := context.Background()

	_, err := eng.SubmitOrder(ctx, limitOrder("ask", "AAPL", common.Sell, 100, 100))
	require.NoError(t, err)
	for i := range 5 {
		_, err := eng.SubmitOrder(ctx, limitOrder(fmt.Sprintf("bid-%d", i), "AAPL", common.Buy, 100, 1))
		require.NoError(t, err)
	}

	trades, err := eng.Trades("AAPL", 0)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, []string{"bid-2", "bid-3", "bid-4"}, []string{trades[0].TakerOrderID, trades[1].TakerOrderID, trades[2].TakerOrderID})

	trades, err = eng.Trades("AAPL", 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "bid-4", trades[1].TakerOrderID)

	_, err = eng.Trades("MSFT", 2)
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
	assert.Equal(t, uint64(5), eng.Stats().Trades)
}

func TestReporter_EventOrder(t *testing.T) {
	eng := newTestEngine("AAPL")
	rec := &recorder{}
	eng.SetReporter(engine.Reporters{rec})
	ctx := context.Background()

	_, err := eng.SubmitOrder(ctx, limitOrder("b1", "AAPL", common.Buy, 100, 5))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(ctx, limitOrder("b2", "AAPL", common.Buy, 100, 5))
	require.NoError(t, err)
	_, err = eng.SubmitOrder(ctx, limitOrder("s1", "AAPL", common.Sell, 100, 7))
	require.NoError(t, err)
	_, err = eng.CancelOrder("b2")
	require.NoError(t, err)
	_, err = eng.SubmitOrder(ctx, limitOrder("s1", "AAPL", common.Sell, 0, 7))
	require.Error(t, err)

	assert.Len(t, rec.trades, 2)
	assert.Equal(t, []string{
		"b1:resting",
		"b2:resting",
		"b1:filled",
		"b2:partially_filled",
		"s1:filled",
		"b2:cancelled",
	}, rec.orderStates())
}

// blockingReporter parks the first order update of one symbol until released.
type blockingReporter struct {
	symbol   string
	once     sync.Once
	entered  chan struct{}
	released chan struct{}
}

func (r *blockingReporter) ReportTrade(common.Trade) error { return nil }

func (r *blockingReporter) ReportOrder(order common.Order) error {
	if order.Symbol != r.symbol {
		return nil
	}
	r.once.Do(func() {
		close(r.entered)
		<-r.released
	})
	return nil
}

func TestConcurrency_SymbolsProgressIndependently(t *testing.T) {
	eng := newTestEngine("AAPL", "GOOGL")
	blocker := &blockingReporter{
		symbol:   "AAPL",
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
	eng.SetReporter(blocker)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := eng.SubmitOrder(ctx, limitOrder("a1", "AAPL", common.Buy, 100, 1))
		done <- err
	}()
	<-blocker.entered

	// AAPL's lock is held; GOOGL must still make progress.
	finished := make(chan error, 1)
	go func() {
		_, err := eng.SubmitOrder(ctx, limitOrder("g1", "GOOGL", common.Sell, 100, 1))
		finished <- err
	}()
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("submission on GOOGL blocked behind AAPL")
	}

	select {
	case <-done:
		t.Fatal("AAPL submission finished while its reporter was blocked")
	default:
	}
	close(blocker.released)
	require.NoError(t, <-done)
}

type tradeKey struct {
	Taker, Maker string
	Price        common.Price
	Qty          uint64
}

func tradeKeys(trades []common.Trade) []tradeKey {
	out := make([]tradeKey, len(trades))
	for i, trade := range trades {
		out[i] = tradeKey{trade.TakerOrderID, trade.MakerOrderID, trade.Price, trade.Quantity}
	}
	return out
}

func TestConcurrency_SameSymbolIsSerialisable(t *testing.T) {
	const (
		workers = 8
		perWork = 200
	)
	eng := newTestEngine("AAPL")
	ctx := context.Background()

	var (
		mu       sync.Mutex
		accepted []common.Order
		wg       sync.WaitGroup
	)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWork {
				side := common.Buy
				if (w+i)%2 == 1 {
					side = common.Sell
				}
				price := common.Price(95 + (w*7+i*3)%11)
				qty := uint64(1 + (w+i*5)%9)
				order := limitOrder(fmt.Sprintf("w%d-%d", w, i), "AAPL", side, price, qty)
				order.Owner = fmt.Sprintf("w%d", w)

				res, err := eng.SubmitOrder(ctx, order)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				submitted := order
				submitted.Seq = res.Order.Seq
				accepted = append(accepted, submitted)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, accepted, workers*perWork)

	concurrent, err := eng.Trades("AAPL", 0)
	require.NoError(t, err)

	// Replaying in sequence order on a fresh engine must give the same trades.
	slices.SortFunc(accepted, func(a, b common.Order) int { return int(a.Seq) - int(b.Seq) })
	replay := newTestEngine("AAPL")
	for _, order := range accepted {
		_, err := replay.SubmitOrder(ctx, order)
		require.NoError(t, err)
	}
	serial, err := replay.Trades("AAPL", 0)
	require.NoError(t, err)

	assert.Equal(t, tradeKeys(serial), tradeKeys(concurrent))

	live, err := eng.Snapshot("AAPL", 0)
	require.NoError(t, err)
	again, err := replay.Snapshot("AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, again.Bids, live.Bids)
	assert.Equal(t, again.Asks, live.Asks)
}

func TestConcurrency_ManySymbols(t *testing.T) {
	symbols := []string{"AAPL", "GOOGL", "MSFT", "NVDA"}
	eng := newTestEngine(symbols...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				_, err := eng.SubmitOrder(ctx, limitOrder(fmt.Sprintf("%s-b%d", symbol, i), symbol, common.Buy, 100, 1))
				assert.NoError(t, err)
				_, err = eng.SubmitOrder(ctx, limitOrder(fmt.Sprintf("%s-s%d", symbol, i), symbol, common.Sell, 100, 1))
				assert.NoError(t, err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = eng.Snapshot(symbol, 5)
				eng.ApplyExternalTick(map[string]decimal.Decimal{symbol: decimal.NewFromInt(100)})
			}
		}()
	}
	wg.Wait()

	stats := eng.Stats()
	assert.Equal(t, uint64(800), stats.OrdersAccepted)
	assert.Equal(t, uint64(400), stats.Trades)
	assert.Zero(t, stats.RestingOrders)
	for _, symbol := range symbols {
		trades, err := eng.Trades(symbol, 0)
		require.NoError(t, err)
		assert.Len(t, trades, 100)
	}
}
