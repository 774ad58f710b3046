package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const DefaultQueueSize = 100

var ErrPoolStopped = errors.New("worker pool stopped")

// Func handles one task. Any error returned is fatal to the pool: the worker
// exits and the tomb starts dying.
type Func[T any] func(t *tomb.Tomb, task T) error

// Pool is a fixed set of workers fed from a bounded task queue.
type Pool[T any] struct {
	n     int     // number of workers
	tasks chan T  // task queue
	work  Func[T] // do work method

	start   sync.Once
	stopped chan struct{}
	done    chan struct{}
}

func New[T any](n, queueSize int, work Func[T]) *Pool[T] {
	if n < 1 {
		n = 1
	}
	if queueSize < 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool[T]{
		n:       n,
		tasks:   make(chan T, queueSize),
		work:    work,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the workers under the tomb. Calling it again is a no-op.
func (pool *Pool[T]) Start(t *tomb.Tomb) {
	pool.start.Do(func() {
		t.Go(func() error {
			<-t.Dying()
			close(pool.stopped)
			return nil
		})
		var wg sync.WaitGroup
		wg.Add(pool.n)
		for id := range pool.n {
			t.Go(func() error {
				defer wg.Done()
				return pool.worker(t, id)
			})
		}
		t.Go(func() error {
			wg.Wait()
			close(pool.done)
			return nil
		})
	})
}

// Submit queues a task, blocking while the queue is full.
func (pool *Pool[T]) Submit(ctx context.Context, task T) error {
	select {
	case <-pool.stopped:
		return ErrPoolStopped
	default:
	}

	select {
	case pool.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-pool.stopped:
		return ErrPoolStopped
	}
}

// Stopped is closed once the pool's tomb starts dying. Tasks still queued at
// that point may never run.
func (pool *Pool[T]) Stopped() <-chan struct{} {
	return pool.stopped
}

// Done is closed once every worker has returned. No task runs after that.
func (pool *Pool[T]) Done() <-chan struct{} {
	return pool.done
}

// Queued returns the number of tasks waiting for a worker.
func (pool *Pool[T]) Queued() int {
	return len(pool.tasks)
}

// Size returns the number of workers.
func (pool *Pool[T]) Size() int {
	return pool.n
}

// Workers wait on tasks in the queue and action them. Once the tomb is dying
// no new task is started.
func (pool *Pool[T]) worker(t *tomb.Tomb, id int) error {
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := pool.work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
