package common

import "fmt"

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "buy":
		*s = Buy
	case "sell":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", text)
	}
	return nil
}

type OrderState int

const (
	// Pending orders have been accepted but not yet run through matching.
	Pending OrderState = iota
	// Resting orders sit in the book without any fills.
	Resting
	// PartiallyFilled orders have some fills and still rest in the book.
	PartiallyFilled
	// Filled orders have no leaves quantity and are gone from the book.
	Filled
	// Cancelled orders were removed before being fully filled.
	Cancelled
	// Rejected orders never entered the book.
	Rejected
)

var orderStateNames = map[OrderState]string{
	Pending:         "pending",
	Resting:         "resting",
	PartiallyFilled: "partially_filled",
	Filled:          "filled",
	Cancelled:       "cancelled",
	Rejected:        "rejected",
}

func (s OrderState) String() string {
	if name, ok := orderStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s OrderState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderState) UnmarshalText(text []byte) error {
	for state, name := range orderStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown order state %q", text)
}

// Terminal reports whether no further fills or cancels can happen.
func (s OrderState) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}
