package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/memodiary/memo/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTaskPoolRunsSubmittedTasks(t *testing.T) {
	p := newTaskPool(2, 8, log.NewNop())

	var ran atomic.Int32
	for range 5 {
		ok := p.submit("count", func(context.Context) error {
			ran.Add(1)
			return nil
		})
		if !ok {
			t.Fatal("submit rejected with room in the queue")
		}
	}
	p.drain()

	if got := ran.Load(); got != 5 {
		t.Errorf("tasks ran = %d, want 5", got)
	}
}

func TestTaskPoolDropsOnOverflow(t *testing.T) {
	p := newTaskPool(1, 1, log.NewNop())

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	p.submit("blocker", func(context.Context) error {
		defer wg.Done()
		<-block
		return nil
	})
	// One slot in the queue, then overflow.
	p.submit("queued", func(context.Context) error { return nil })

	if ok := p.submit("overflow", func(context.Context) error { return nil }); ok {
		t.Error("submit accepted past queue capacity")
	}

	close(block)
	wg.Wait()
	p.drain()
}

func TestTaskPoolFailedTaskDoesNotStopWorkers(t *testing.T) {
	p := newTaskPool(1, 8, log.NewNop())

	var ran atomic.Bool
	p.submit("failing", func(context.Context) error { return errors.New("boom") })
	p.submit("after", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	p.drain()

	if !ran.Load() {
		t.Error("worker stopped after a failed task")
	}
}

func TestTaskPoolSubmitAfterDrain(t *testing.T) {
	p := newTaskPool(1, 8, log.NewNop())
	p.drain()

	if ok := p.submit("late", func(context.Context) error { return nil }); ok {
		t.Error("submit accepted after drain")
	}
	// Double drain must not panic.
	p.drain()
}
