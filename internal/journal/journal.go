// Package journal keeps an append-only audit trail of trades and the latest
// state of every order the engine reported, in a pebble database. It is an
// audit log, not a way to rebuild books.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"

	"matchbook/internal/common"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// FS overrides the filesystem, vfs.NewMem() in tests.
	FS vfs.FS
	// Sync makes every write durable before the engine carries on.
	Sync bool
}

type Journal struct {
	db   *pebble.DB
	sync bool
}

func Open(dir string, opts Options) (*Journal, error) {
	pebbleOpts := &pebble.Options{}
	if opts.FS != nil {
		pebbleOpts.FS = opts.FS
	}
	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", dir, err)
	}
	log.Info().Str("dir", dir).Bool("sync", opts.Sync).Msg("journal opened")
	return &Journal{db: db, sync: opts.Sync}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) writeOptions() *pebble.WriteOptions {
	if j.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// keys: t/<2-byte symbol length><symbol><8-byte seq>, o/<order id>
// The length keeps one symbol's range from covering another's, e.g. BTC and
// BTC/USD.
func tradePrefix(symbol string) []byte {
	prefix := binary.BigEndian.AppendUint16([]byte("t/"), uint16(len(symbol)))
	return append(prefix, symbol...)
}

func tradeKey(symbol string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(tradePrefix(symbol), seq)
}

func orderKey(id string) []byte {
	return []byte("o/" + id)
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// ReportTrade appends a trade. Trades are keyed by symbol and sequence, so a
// symbol's trades read back in execution order.
func (j *Journal) ReportTrade(trade common.Trade) error {
	data, err := jsoniter.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", trade.ID, err)
	}
	if err := j.db.Set(tradeKey(trade.Symbol, trade.Seq), data, j.writeOptions()); err != nil {
		return fmt.Errorf("write trade %s: %w", trade.ID, err)
	}
	return nil
}

// ReportOrder stores the latest state of an order.
func (j *Journal) ReportOrder(order common.Order) error {
	data, err := jsoniter.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", order.ID, err)
	}
	if err := j.db.Set(orderKey(order.ID), data, j.writeOptions()); err != nil {
		return fmt.Errorf("write order %s: %w", order.ID, err)
	}
	return nil
}

// Trades reads back every journalled trade of a symbol in sequence order.
func (j *Journal) Trades(symbol string) ([]common.Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []common.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var trade common.Trade
		if err := jsoniter.Unmarshal(iter.Value(), &trade); err != nil {
			return nil, fmt.Errorf("decode trade at %q: %w", iter.Key(), err)
		}
		trades = append(trades, trade)
	}
	return trades, iter.Error()
}

// Order reads back the last journalled state of an order.
func (j *Journal) Order(id string) (common.Order, bool, error) {
	val, closer, err := j.db.Get(orderKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return common.Order{}, false, nil
		}
		return common.Order{}, false, err
	}
	defer closer.Close()

	var order common.Order
	if err := jsoniter.Unmarshal(val, &order); err != nil {
		return common.Order{}, false, fmt.Errorf("decode order %s: %w", id, err)
	}
	return order, true, nil
}
