package engine

import (
	"fmt"

	"matchbook/internal/common"

	"github.com/rs/zerolog/log"
)

// OrderBook holds the resting orders of one symbol. It does no matching of
// its own and is not safe for concurrent use: the engine serialises access
// per symbol.
type OrderBook struct {
	symbol string

	// Price levels to orders sat on the price level, sorted by arrival.
	bids *bidSide
	asks *askSide

	// Order ID to the live order, for existence checks and cancels.
	index map[string]*common.Order
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   newBidSide(),
		asks:   newAskSide(),
		index:  make(map[string]*common.Order),
	}
}

func (book *OrderBook) Symbol() string {
	return book.symbol
}

// Len returns the number of resting orders.
func (book *OrderBook) Len() int {
	return len(book.index)
}

// validate checks an order can rest in this book. Nothing is mutated.
func (book *OrderBook) validate(order *common.Order) error {
	if order.Symbol != book.symbol {
		return fmt.Errorf("%w: symbol %q on book %q", ErrInvalidOrder, order.Symbol, book.symbol)
	}
	if err := validateOrder(*order); err != nil {
		return err
	}
	if order.LeavesQuantity == 0 || !order.Consistent() {
		return fmt.Errorf("%w: %s has leaves %d, cum %d of %d",
			ErrInvalidOrder, order.ID, order.LeavesQuantity, order.CumQuantity, order.Quantity)
	}
	if _, ok := book.index[order.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	return nil
}

// Add rests the order on its side of the book. The book keeps the pointer.
// The order is not matched.
func (book *OrderBook) Add(order *common.Order) error {
	if err := book.validate(order); err != nil {
		return err
	}

	// The side is decided here, once. Each side only compares its own levels.
	switch order.Side {
	case common.Buy:
		book.bids.add(order)
	case common.Sell:
		book.asks.add(order)
	}
	book.index[order.ID] = order
	return nil
}

// Best peeks at the top of book order of a side.
func (book *OrderBook) Best(side common.Side) (*common.Order, bool) {
	if side == common.Buy {
		return book.bids.best()
	}
	return book.asks.best()
}

// Get looks up a resting order.
func (book *OrderBook) Get(id string) (*common.Order, bool) {
	order, ok := book.index[id]
	return order, ok
}

// Remove takes an order out of the index and its side. The index entry is
// only dropped once the side has let go of the order.
func (book *OrderBook) Remove(id string) (*common.Order, bool) {
	order, ok := book.index[id]
	if !ok {
		return nil, false
	}
	if !book.side(order.Side).remove(order) {
		log.Error().Str("symbol", book.symbol).Str("id", id).Msg("indexed order missing from its side")
		return nil, false
	}
	delete(book.index, id)
	return order, true
}

// UpdateLeaves records a fill against a resting order by lowering its leaves
// quantity. An order reaching zero leaves is removed. Leaves can never grow.
func (book *OrderBook) UpdateLeaves(id string, leaves uint64) error {
	order, ok := book.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if leaves > order.LeavesQuantity {
		return fmt.Errorf("%w: leaves of %s cannot grow from %d to %d",
			ErrInvalidOrder, id, order.LeavesQuantity, leaves)
	}
	book.fill(order, order.LeavesQuantity-leaves)
	return nil
}

// fill consumes qty of a resting order, removing it once fully filled.
func (book *OrderBook) fill(order *common.Order, qty uint64) {
	side := book.side(order.Side)
	side.fill(order, qty)
	if order.LeavesQuantity == 0 {
		if !side.remove(order) {
			log.Error().Str("symbol", book.symbol).Str("id", order.ID).Msg("filled order missing from its side")
			return
		}
		delete(book.index, order.ID)
	}
}

func (book *OrderBook) side(side common.Side) *bookSide {
	if side == common.Buy {
		return &book.bids.bookSide
	}
	return &book.asks.bookSide
}

// opposite returns the side an aggressor of the given side trades against.
func (book *OrderBook) opposite(side common.Side) restingSide {
	if side == common.Buy {
		return book.asks
	}
	return book.bids
}

// Levels flattens a side of the book, best level first.
func (book *OrderBook) Levels(side common.Side) []FlatPriceLevel {
	return book.side(side).flatten()
}

// Depth aggregates up to n levels of a side, best first.
func (book *OrderBook) Depth(side common.Side, n int) []Level {
	return book.side(side).depth(n)
}

// Liquidity returns the number of resting orders and their total leaves
// quantity on a side.
func (book *OrderBook) Liquidity(side common.Side) (orders uint64, quantity uint64) {
	s := book.side(side)
	return s.nOrders, s.quantity
}

// validateOrder rejects orders that can never be matched or rested.
func validateOrder(order common.Order) error {
	switch {
	case order.ID == "":
		return fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	case !order.Side.Valid():
		return fmt.Errorf("%w: %s has side %v", ErrInvalidOrder, order.ID, order.Side)
	case order.Price <= 0:
		return fmt.Errorf("%w: %s has price %d", ErrInvalidOrder, order.ID, order.Price)
	case order.Quantity == 0:
		return fmt.Errorf("%w: %s has zero quantity", ErrInvalidOrder, order.ID)
	}
	return nil
}
