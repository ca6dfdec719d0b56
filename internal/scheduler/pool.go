package scheduler

import (
	"context"
	"sync"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

// LocalPool runs fires in-process with at most Workers running at once.
// Excess fires wait for a slot; none are dropped.
type LocalPool struct {
	fire FireFunc
	sem  chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewLocalPool(workers int, fire FireFunc) *LocalPool {
	if workers <= 0 {
		workers = 20
	}
	return &LocalPool{
		fire: fire,
		sem:  make(chan struct{}, workers),
	}
}

func (p *LocalPool) Dispatch(ctx context.Context, job models.ScheduledJob) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.wg.Add(1)
	p.mu.Unlock()

	// delivery attempts are not cancelled mid-flight
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		// Fire logs its own failures and keeps the timer for another run
		p.fire(ctx, job)
	}()
	return nil
}

// Stop refuses new fires and waits for queued and running ones, or for ctx.
func (p *LocalPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
