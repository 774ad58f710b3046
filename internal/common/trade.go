package common

import (
	"fmt"
	"time"
)

// Trade accounts for the two parties who matched. The taker is the aggressor,
// the maker is the order that was resting in the book and set the price.
type Trade struct {
	ID           string
	Seq          uint64
	Symbol       string
	Price        Price
	Quantity     uint64
	TakerSide    Side
	TakerOrderID string
	MakerOrderID string
	TakerOwner   string
	MakerOwner   string
	Timestamp    time.Time
}

// OrderIDFor returns the order on the given side of the trade.
func (t Trade) OrderIDFor(side Side) string {
	if side == t.TakerSide {
		return t.TakerOrderID
	}
	return t.MakerOrderID
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:             %s
Seq:            %d
Symbol:         %s
Taker:          %s (%v, %s)
Maker:          %s (%s)
Timestamp:      %v
Quantity:       %d
Price:          %d`,
		t.ID,
		t.Seq,
		t.Symbol,
		t.TakerOrderID,
		t.TakerSide,
		t.TakerOwner,
		t.MakerOrderID,
		t.MakerOwner,
		t.Timestamp.Format(time.RFC3339),
		t.Quantity,
		t.Price,
	)
}
