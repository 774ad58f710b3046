package common

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrNonPositivePrice = errors.New("price must be positive")
	ErrOffTickPrice     = errors.New("price is not a multiple of the tick size")
	ErrInvalidTickSize  = errors.New("tick size must be positive")
	ErrPriceOutOfRange  = errors.New("price is out of range")
)

var maxTicks = decimal.NewFromInt(math.MaxInt64)

// DefaultTickSize is used for symbols configured without an explicit tick.
var DefaultTickSize = decimal.New(1, -2)

// Price is a limit price expressed as a whole number of ticks. Keeping prices
// integral makes priority ordering and cross detection exact.
type Price int64

// PriceFromDecimal converts a decimal price into ticks of the given size.
func PriceFromDecimal(price, tick decimal.Decimal) (Price, error) {
	if !tick.IsPositive() {
		return 0, ErrInvalidTickSize
	}
	if !price.IsPositive() {
		return 0, ErrNonPositivePrice
	}
	ticks := price.Div(tick)
	if !ticks.Equal(ticks.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s (tick %s)", ErrOffTickPrice, price, tick)
	}
	if ticks.GreaterThan(maxTicks) {
		return 0, fmt.Errorf("%w: %s (tick %s)", ErrPriceOutOfRange, price, tick)
	}
	return Price(ticks.IntPart()), nil
}

// ParsePrice parses a decimal string such as "10.25" into ticks.
func ParsePrice(s string, tick decimal.Decimal) (Price, error) {
	price, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return PriceFromDecimal(price, tick)
}

// Decimal converts ticks back into a decimal price.
func (p Price) Decimal(tick decimal.Decimal) decimal.Decimal {
	return tick.Mul(decimal.NewFromInt(int64(p)))
}

// RoundToTick rounds an arbitrary decimal price to the nearest tick, clamped
// to [1, math.MaxInt64] ticks.
func RoundToTick(price, tick decimal.Decimal) Price {
	ticks := price.Div(tick).Round(0)
	if ticks.GreaterThan(maxTicks) {
		return Price(math.MaxInt64)
	}
	if n := ticks.IntPart(); n >= 1 {
		return Price(n)
	}
	return 1
}
