package engine

import (
	"errors"

	"matchbook/internal/common"
)

// Reporter observes the engine's outbound events. Calls are made while the
// symbol's book is locked, so events of one symbol arrive in order. A
// Reporter must not block for long and must not call back into the engine.
type Reporter interface {
	ReportTrade(trade common.Trade) error
	ReportOrder(order common.Order) error
}

// Reporters fans events out to several reporters.
type Reporters []Reporter

func (rs Reporters) ReportTrade(trade common.Trade) error {
	var errs []error
	for _, r := range rs {
		if err := r.ReportTrade(trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rs Reporters) ReportOrder(order common.Order) error {
	var errs []error
	for _, r := range rs {
		if err := r.ReportOrder(order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopReporter struct{}

func (nopReporter) ReportTrade(common.Trade) error { return nil }
func (nopReporter) ReportOrder(common.Order) error { return nil }
