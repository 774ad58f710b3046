package engine

import (
	"context"
	"errors"
	"fmt"

	"matchbook/internal/common"
	"matchbook/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"
)

type EventKind int

const (
	SubmitEvent EventKind = iota
	CancelEvent
	TickEvent
)

func (k EventKind) String() string {
	switch k {
	case SubmitEvent:
		return "submit"
	case CancelEvent:
		return "cancel"
	case TickEvent:
		return "tick"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one inbound request for the engine.
type Event struct {
	Kind    EventKind
	Order   common.Order               // SubmitEvent
	OrderID string                     // CancelEvent
	Prices  map[string]decimal.Decimal // TickEvent

	// Reply, when set, receives at most one result. It should be buffered.
	// Events still queued at shutdown never reply.
	Reply chan<- EventResult
}

type EventResult struct {
	Kind    EventKind
	Result  OrderResult  // SubmitEvent
	Order   common.Order // CancelEvent
	Applied int          // TickEvent
	Err     error
}

// Dispatcher feeds queued events to the engine from a pool of workers.
// Events for different symbols run in parallel; the engine serialises events
// of one symbol.
type Dispatcher struct {
	engine *Engine
	pool   *worker.Pool[Event]
}

func NewDispatcher(engine *Engine, workers, queueSize int) *Dispatcher {
	d := &Dispatcher{engine: engine}
	d.pool = worker.New(workers, queueSize, d.handle)
	return d
}

// Start runs the workers until the tomb dies.
func (d *Dispatcher) Start(t *tomb.Tomb) {
	d.pool.Start(t)
	log.Info().Int("workers", d.pool.Size()).Msg("dispatcher running")
}

// Queued returns the number of events waiting for a worker.
func (d *Dispatcher) Queued() int {
	return d.pool.Queued()
}

// Dispatch queues an event. It blocks while the queue is full.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if err := d.pool.Submit(ctx, ev); err != nil {
		if errors.Is(err, worker.ErrPoolStopped) {
			return ErrEngineStopped
		}
		return err
	}
	return nil
}

// Submit dispatches an order and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, order common.Order) (OrderResult, error) {
	res, err := d.roundTrip(ctx, Event{Kind: SubmitEvent, Order: order})
	if err != nil {
		return OrderResult{}, err
	}
	return res.Result, res.Err
}

// Cancel dispatches a cancel and waits for its result.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (common.Order, error) {
	res, err := d.roundTrip(ctx, Event{Kind: CancelEvent, OrderID: id})
	if err != nil {
		return common.Order{}, err
	}
	return res.Order, res.Err
}

func (d *Dispatcher) roundTrip(ctx context.Context, ev Event) (EventResult, error) {
	reply := make(chan EventResult, 1)
	ev.Reply = reply
	if err := d.Dispatch(ctx, ev); err != nil {
		return EventResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return EventResult{}, ctx.Err()
	case <-d.pool.Stopped():
	}

	// Shutting down: the event either runs on a worker that is finishing up or
	// never runs at all.
	select {
	case <-d.pool.Done():
	case <-ctx.Done():
		return EventResult{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	default:
		return EventResult{}, ErrEngineStopped
	}
}

// handle runs one event. Engine errors are results, not worker failures, so
// they go back on the reply channel and never stop the pool.
func (d *Dispatcher) handle(t *tomb.Tomb, ev Event) error {
	res := EventResult{Kind: ev.Kind}
	switch ev.Kind {
	case SubmitEvent:
		res.Result, res.Err = d.engine.SubmitOrder(t.Context(nil), ev.Order)
	case CancelEvent:
		res.Order, res.Err = d.engine.CancelOrder(ev.OrderID)
	case TickEvent:
		res.Applied = d.engine.ApplyExternalTick(ev.Prices)
	default:
		res.Err = fmt.Errorf("unknown event kind %v", ev.Kind)
	}

	if ev.Reply == nil {
		if res.Err != nil {
			log.Debug().Err(res.Err).Stringer("kind", ev.Kind).Msg("event failed")
		}
		return nil
	}
	select {
	case ev.Reply <- res:
		return nil
	default:
	}
	select {
	case ev.Reply <- res:
	case <-t.Dying():
	}
	return nil
}
