package engine

import "errors"

var (
	ErrDuplicateOrder = errors.New("duplicate order")
	ErrInvalidOrder   = errors.New("invalid order")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrOrderNotFound  = errors.New("order not found")
	ErrEngineStopped  = errors.New("engine stopped")
)
