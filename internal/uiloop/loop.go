// Package uiloop provides a single-goroutine execution context for UI state.
// Background goroutines hand work to it with Post; everything posted runs in
// order on the goroutine that called Run.
package uiloop

import (
	"context"
	"sync"
)

// Loop serializes posted functions onto one goroutine.
type Loop struct {
	queue chan func()
	done  chan struct{}
	stop  sync.Once
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{
		queue: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

// Post schedules fn on the loop goroutine. Functions posted from one
// goroutine run in the order they were posted. Post drops fn once the loop
// has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
	case l.queue <- fn:
	}
}

// Call runs fn on the loop goroutine and waits for it to return. It must not
// be called from the loop goroutine itself. It returns false if the loop
// stopped before fn ran.
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return true
	case <-l.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Run executes posted functions until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Stop ends Run. Pending functions are discarded.
func (l *Loop) Stop() {
	l.stop.Do(func() { close(l.done) })
}
