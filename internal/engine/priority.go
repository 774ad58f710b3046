package engine

import (
	"slices"
	"sort"

	"matchbook/internal/common"

	"github.com/tidwall/btree"
)

// priceLevel is the FIFO queue of orders resting at one price. Orders are kept
// sorted by arrival sequence, which is time priority within the level.
type priceLevel struct {
	price    common.Price
	orders   []*common.Order
	quantity uint64 // Sum of leaves quantity at this level.
}

// insert places the order by sequence. Orders normally arrive in sequence
// order, so this is an append.
func (level *priceLevel) insert(order *common.Order) {
	n := len(level.orders)
	if n == 0 || level.orders[n-1].Seq < order.Seq {
		level.orders = append(level.orders, order)
	} else {
		i := sort.Search(n, func(i int) bool { return level.orders[i].Seq > order.Seq })
		level.orders = append(level.orders, nil)
		copy(level.orders[i+1:], level.orders[i:])
		level.orders[i] = order
	}
	level.quantity += order.LeavesQuantity
}

// indexOf finds the order by identity. Orders sharing a sequence sit next to
// each other, so the run after the binary search is scanned too.
func (level *priceLevel) indexOf(order *common.Order) int {
	i := sort.Search(len(level.orders), func(i int) bool { return level.orders[i].Seq >= order.Seq })
	for ; i < len(level.orders) && level.orders[i].Seq == order.Seq; i++ {
		if level.orders[i] == order {
			return i
		}
	}
	// Seq changed after the order rested.
	return slices.Index(level.orders, order)
}

func (level *priceLevel) remove(order *common.Order) bool {
	i := level.indexOf(order)
	if i < 0 {
		return false
	}
	copy(level.orders[i:], level.orders[i+1:])
	level.orders[len(level.orders)-1] = nil
	level.orders = level.orders[:len(level.orders)-1]
	level.quantity -= order.LeavesQuantity
	return true
}

type PriceLevels = btree.BTreeG[*priceLevel]

// bookSide holds the price levels of a single side, best level first. It is
// only ever built through newBidSide or newAskSide, so one tree never holds
// levels of both sides.
type bookSide struct {
	levels   *PriceLevels
	nOrders  uint64 // Track the number of orders on this side.
	quantity uint64 // Track the liquidity of this side.
}

func newBookSide(less func(a, b *priceLevel) bool) bookSide {
	return bookSide{levels: btree.NewBTreeG(less)}
}

func (side *bookSide) add(order *common.Order) {
	// Levels comparator only accounts for price levels, so we create a dummy
	// price level for the search.
	level, ok := side.levels.GetMut(&priceLevel{price: order.Price})
	if ok {
		level.insert(order)
	} else {
		level = &priceLevel{price: order.Price}
		level.insert(order)
		side.levels.Set(level)
	}
	side.nOrders++
	side.quantity += order.LeavesQuantity
}

func (side *bookSide) remove(order *common.Order) bool {
	level, ok := side.levels.GetMut(&priceLevel{price: order.Price})
	if !ok || !level.remove(order) {
		return false
	}
	if len(level.orders) == 0 {
		side.levels.Delete(level)
	}
	side.nOrders--
	side.quantity -= order.LeavesQuantity
	return true
}

// fill consumes qty from a resting order without changing its priority.
func (side *bookSide) fill(order *common.Order, qty uint64) {
	if level, ok := side.levels.GetMut(&priceLevel{price: order.Price}); ok {
		level.quantity -= qty
	}
	side.quantity -= qty
	order.Fill(qty)
}

func (side *bookSide) best() (*common.Order, bool) {
	level, ok := side.levels.Min()
	if !ok || len(level.orders) == 0 {
		return nil, false
	}
	return level.orders[0], true
}

func (side *bookSide) bestPrice() (common.Price, bool) {
	level, ok := side.levels.Min()
	if !ok {
		return 0, false
	}
	return level.price, true
}

// FlatPriceLevel is a copy of one price level, for inspection.
type FlatPriceLevel struct {
	PriceLevel common.Price
	Orders     []common.Order
}

func (side *bookSide) flatten() []FlatPriceLevel {
	var out []FlatPriceLevel
	side.levels.Scan(func(level *priceLevel) bool {
		flat := FlatPriceLevel{
			PriceLevel: level.price,
			Orders:     make([]common.Order, len(level.orders)),
		}
		for i, order := range level.orders {
			flat.Orders[i] = *order
		}
		out = append(out, flat)
		return true
	})
	return out
}

// Level is the aggregated view of one price level.
type Level struct {
	Price    common.Price `json:"price"`
	Quantity uint64       `json:"quantity"`
	Orders   int          `json:"orders"`
}

// depth returns up to n aggregated levels, all of them if n <= 0.
func (side *bookSide) depth(n int) []Level {
	var out []Level
	side.levels.Scan(func(level *priceLevel) bool {
		if n > 0 && len(out) >= n {
			return false
		}
		out = append(out, Level{
			Price:    level.price,
			Quantity: level.quantity,
			Orders:   len(level.orders),
		})
		return true
	})
	return out
}

// bidSide holds buy orders: highest price first, then earliest arrival.
type bidSide struct{ bookSide }

func newBidSide() *bidSide {
	// Sorted greatest first.
	return &bidSide{newBookSide(func(a, b *priceLevel) bool {
		return a.price > b.price
	})}
}

// crossedBy reports whether a sell at the given price trades with the best bid.
func (bids *bidSide) crossedBy(sellPrice common.Price) bool {
	price, ok := bids.bestPrice()
	return ok && sellPrice <= price
}

// askSide holds sell orders: lowest price first, then earliest arrival.
type askSide struct{ bookSide }

func newAskSide() *askSide {
	// Sorted least first.
	return &askSide{newBookSide(func(a, b *priceLevel) bool {
		return a.price < b.price
	})}
}

// crossedBy reports whether a buy at the given price trades with the best ask.
func (asks *askSide) crossedBy(buyPrice common.Price) bool {
	price, ok := asks.bestPrice()
	return ok && buyPrice >= price
}

// restingSide is the view of the opposite side the matcher works against.
type restingSide interface {
	crossedBy(price common.Price) bool
	best() (*common.Order, bool)
}
