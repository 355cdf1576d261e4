// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"companion-billing/internal/infra/metrics"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool stopped")
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Submit never
// blocks; Stop runs whatever is still queued before returning.
type Pool struct {
	name string
	n    int
	jobs chan Task
	wg   sync.WaitGroup
	log  *zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func NewPool(name string, workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	l := logger.With().Str("component", "worker_pool").Str("pool", name).Logger()
	return &Pool{name: name, n: workers, jobs: make(chan Task, queue), log: &l}
}

// Start launches the workers. Tasks receive ctx, so cancelling it aborts
// in-flight work but does not stop the workers; call Stop for that.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				if err := task(ctx); err != nil {
					p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
					metrics.IncJobRun(p.name, "error")
					continue
				}
				metrics.IncJobRun(p.name, "ok")
			}
		}(i)
	}
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		metrics.IncJobRun(p.name, "dropped")
		return ErrQueueFull
	}
}
