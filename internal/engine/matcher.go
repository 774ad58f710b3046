package engine

import (
	"fmt"
	"time"

	"matchbook/internal/common"

	"github.com/google/uuid"
)

// SelfTradePolicy decides what happens when an aggressor would trade with a
// resting order of the same owner.
type SelfTradePolicy int

const (
	// SelfTradeAllow ignores owners.
	SelfTradeAllow SelfTradePolicy = iota
	// SelfTradeCancelResting cancels the resting order and keeps matching.
	SelfTradeCancelResting
	// SelfTradeCancelAggressor stops matching and cancels the aggressor's remainder.
	SelfTradeCancelAggressor
)

var selfTradePolicyNames = map[SelfTradePolicy]string{
	SelfTradeAllow:           "allow",
	SelfTradeCancelResting:   "cancel-resting",
	SelfTradeCancelAggressor: "cancel-aggressor",
}

func (p SelfTradePolicy) String() string {
	if name, ok := selfTradePolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParseSelfTradePolicy(s string) (SelfTradePolicy, error) {
	for policy, name := range selfTradePolicyNames {
		if name == s {
			return policy, nil
		}
	}
	return SelfTradeAllow, fmt.Errorf("unknown self-trade policy %q", s)
}

// Matcher runs continuous matching of one aggressor against a book.
type Matcher struct {
	SelfTrade SelfTradePolicy
	// MaxFills bounds the number of resting orders one pass may consume. When
	// reached, the aggressor's remainder is cancelled instead of rested so
	// the book is never left crossed. Zero means unbounded.
	MaxFills int

	tradeSeq *Sequencer
	now      func() time.Time
}

func NewMatcher(policy SelfTradePolicy, maxFills int) *Matcher {
	return &Matcher{
		SelfTrade: policy,
		MaxFills:  maxFills,
		tradeSeq:  &Sequencer{},
		now:       time.Now,
	}
}

// MatchResult is everything one matching pass changed.
type MatchResult struct {
	Trades []common.Trade
	// Makers are the resting orders that traded, as they stood after the pass.
	Makers []common.Order
	// Cancelled are resting orders removed by self-trade prevention.
	Cancelled []common.Order
}

// Match consumes the opposite side of the book while it crosses the
// aggressor, best price first and earliest arrival first within a price. Each
// fill executes at the resting order's price. Whatever the aggressor has left
// afterwards rests in the book with its original sequence number, unless the
// pass was cut short, in which case the remainder is cancelled.
//
// The aggressor is fully validated before the book is touched; an error
// means nothing changed.
func (m *Matcher) Match(book *OrderBook, aggressor *common.Order) (MatchResult, error) {
	var result MatchResult
	if err := book.validate(aggressor); err != nil {
		return result, err
	}

	opposite := book.opposite(aggressor.Side)
	truncated := false
	steps := 0

	for aggressor.LeavesQuantity > 0 && opposite.crossedBy(aggressor.Price) {
		if m.MaxFills > 0 && steps >= m.MaxFills {
			truncated = true
			break
		}
		steps++

		resting, _ := opposite.best()
		if m.selfTrade(aggressor, resting) {
			if m.SelfTrade == SelfTradeCancelAggressor {
				truncated = true
				break
			}
			book.Remove(resting.ID)
			resting.State = common.Cancelled
			result.Cancelled = append(result.Cancelled, *resting)
			continue
		}

		matchQty := min(aggressor.LeavesQuantity, resting.LeavesQuantity)
		result.Trades = append(result.Trades, m.trade(aggressor, resting, matchQty))

		aggressor.Fill(matchQty)
		// Removes the resting order once it has nothing left; a partial
		// fill leaves it at the head of its level.
		book.fill(resting, matchQty)
		resting.State = resting.SettleState()
		// A maker trades at most once per pass: either it is used up, or
		// the aggressor is.
		result.Makers = append(result.Makers, *resting)
	}

	switch {
	case aggressor.LeavesQuantity == 0:
		aggressor.State = common.Filled
	case truncated:
		aggressor.State = common.Cancelled
	default:
		aggressor.State = aggressor.SettleState()
		if err := book.Add(aggressor); err != nil {
			// Validated above, and matching never adds orders.
			panic(fmt.Sprintf("resting validated order %s: %v", aggressor.ID, err))
		}
	}
	return result, nil
}

func (m *Matcher) selfTrade(aggressor, resting *common.Order) bool {
	return m.SelfTrade != SelfTradeAllow &&
		aggressor.Owner != "" &&
		aggressor.Owner == resting.Owner
}

func (m *Matcher) trade(taker, maker *common.Order, qty uint64) common.Trade {
	return common.Trade{
		ID:           uuid.NewString(),
		Seq:          m.tradeSeq.Next(),
		Symbol:       maker.Symbol,
		Price:        maker.Price,
		Quantity:     qty,
		TakerSide:    taker.Side,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		TakerOwner:   taker.Owner,
		MakerOwner:   maker.Owner,
		Timestamp:    m.now(),
	}
}
