package worker

import (
	"context"
	"errors"
	"sync"
)

// Job is a unit of background work.
type Job func(context.Context) error

// Group tracks background jobs so their teardown can be awaited. Jobs
// cancelled through their context are not reported as failures.
type Group struct {
	wg sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// Go runs job on a new goroutine.
func (g *Group) Go(ctx context.Context, job Job) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every started job has returned and reports the joined
// errors collected so far. Collected errors are reset.
func (g *Group) Wait() error {
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.errs) == 0 {
		return nil
	}
	err := errors.Join(g.errs...)
	g.errs = nil
	return err
}
