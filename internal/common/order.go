package common

import (
	"fmt"
	"time"
)

type Order struct {
	ID             string     // Caller assigned identifier
	Symbol         string     // Specific asset identifier
	Side           Side       // Order side
	Price          Price      // Limiting price, in ticks
	Quantity       uint64     // Total volume requested
	CumQuantity    uint64     // Volume filled so far
	LeavesQuantity uint64     // Remaining quantity
	Owner          string     // Who owns this order
	Seq            uint64     // Arrival sequence, assigned by the engine
	Timestamp      time.Time  // Time the client created the order
	ExchTimestamp  time.Time  // Time of arrival of order into the engine
	State          OrderState //
}

// NewOrder builds an unfilled limit order.
func NewOrder(id, symbol string, side Side, price Price, quantity uint64) Order {
	return Order{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Price:          price,
		Quantity:       quantity,
		LeavesQuantity: quantity,
		Timestamp:      time.Now(),
	}
}

// Fill moves qty from leaves to cum. Callers make sure qty <= LeavesQuantity.
func (order *Order) Fill(qty uint64) {
	order.LeavesQuantity -= qty
	order.CumQuantity += qty
}

// Consistent reports whether the fill quantities add up.
func (order Order) Consistent() bool {
	return order.CumQuantity+order.LeavesQuantity == order.Quantity
}

// SettleState derives the state of an order that has been through matching
// and was not cancelled.
func (order Order) SettleState() OrderState {
	switch {
	case order.LeavesQuantity == 0:
		return Filled
	case order.CumQuantity > 0:
		return PartiallyFilled
	default:
		return Resting
	}
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ID:            %v
Symbol:        %s
Side:          %v
Price:         %d
Quantity:      %d (Cum: %d, Leaves: %d)
Owner:         %s
Seq:           %d
State:         %v
Timestamp:     %v
ExchTimestamp: %v`,
		order.ID,
		order.Symbol,
		order.Side,
		order.Price,
		order.Quantity,
		order.CumQuantity,
		order.LeavesQuantity,
		order.Owner,
		order.Seq,
		order.State,
		order.Timestamp.Format(time.RFC3339),
		order.ExchTimestamp.Format(time.RFC3339),
	)
}
