package engine_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"matchbook/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicker_Apply(t *testing.T) {
	ticker := engine.NewTicker()
	at := time.Unix(1_700_000_000, 0)

	applied := ticker.Apply(map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("190.10"),
		"BAD":  decimal.RequireFromString("-1"),
	}, at)
	assert.Equal(t, 1, applied)

	quote, ok := ticker.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "190.1", quote.Price.String())
	assert.Equal(t, at, quote.UpdatedAt)
	_, ok = ticker.Get("BAD")
	assert.False(t, ok)

	// Quotes hands out a copy.
	quotes := ticker.Quotes()
	delete(quotes, "AAPL")
	_, ok = ticker.Get("AAPL")
	assert.True(t, ok)
}

func TestTicker_ConcurrentAccess(t *testing.T) {
	ticker := engine.NewTicker()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 200 {
				ticker.Apply(map[string]decimal.Decimal{
					fmt.Sprintf("S%d", w): decimal.NewFromInt(int64(i + 1)),
				}, time.Now())
			}
		}()
		go func() {
			defer wg.Done()
			for range 200 {
				ticker.Get(fmt.Sprintf("S%d", w))
				ticker.Quotes()
			}
		}()
	}
	wg.Wait()

	quotes := ticker.Quotes()
	require.Len(t, quotes, 4)
	for _, quote := range quotes {
		assert.True(t, quote.Price.Equal(decimal.NewFromInt(200)))
	}
}

func TestSequencer(t *testing.T) {
	var seq engine.Sequencer
	assert.Zero(t, seq.Current())

	var wg sync.WaitGroup
	seen := make([][]uint64, 8)
	for w := range seen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				seen[w] = append(seen[w], seq.Next())
			}
		}()
	}
	wg.Wait()

	unique := make(map[uint64]struct{})
	for _, numbers := range seen {
		for i, n := range numbers {
			if i > 0 {
				assert.Greater(t, n, numbers[i-1])
			}
			unique[n] = struct{}{}
		}
	}
	assert.Len(t, unique, 800)
	assert.Equal(t, uint64(800), seq.Current())
}
