package engine

import (
	"context"
	"sync"
	"time"

	"github.com/memodiary/memo/internal/log"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
	// taskTimeout bounds one background task; enrichment that takes longer
	// than this is stuck, not slow.
	taskTimeout = 2 * time.Minute
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// taskPool runs memory enrichment off the conversational path: fixed worker
// count, bounded queue, no caller-side cancellation. Tasks that fail or find
// no queue room are recorded in the dead-letter log and dropped; last-write-
// wins storage makes losing an enrichment pass safe.
type taskPool struct {
	queue chan task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	logger log.Logger
}

func newTaskPool(workers, queueSize int, logger log.Logger) *taskPool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = log.NewNop()
	}

	p := &taskPool{
		queue:  make(chan task, queueSize),
		logger: logger.With("component", "tasks"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *taskPool) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		if err := t.fn(ctx); err != nil {
			p.logger.Error("background task failed, dropping", "task", t.name, "error", err)
		}
		cancel()
	}
}

// submit enqueues a task without blocking. A full queue dead-letters the task
// immediately; the turn that spawned it has already been answered.
func (p *taskPool) submit(name string, fn func(ctx context.Context) error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Error("task submitted after shutdown, dropping", "task", name)
		return false
	}
	select {
	case p.queue <- task{name: name, fn: fn}:
		return true
	default:
		p.logger.Error("task queue full, dropping", "task", name)
		return false
	}
}

// drain stops intake and waits for queued tasks to finish.
func (p *taskPool) drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}
