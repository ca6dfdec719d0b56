// Package scheduler arms one timer per post, fires matured timers through a
// bounded dispatcher and guarantees that fires for the same post never run
// concurrently.
//
// Timers are persisted in a JobStore before they are armed in memory, so
// Start can rebuild the exact set of pending fires after a restart. Overdue
// timers fire immediately.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/metrics"
	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

type Scheduler struct {
	cfg   Config
	store JobStore
	disp  Dispatcher
	pool  *LocalPool
	now   func() time.Time

	hmu     sync.RWMutex
	handler FireFunc

	// armLocks serializes arm/disarm per post; fireLocks serializes fires.
	armLocks  keyedMutex
	fireLocks keyedMutex

	mu          sync.Mutex
	ctx         context.Context
	stopped     bool
	timers      map[int64]*armedTimer
	dispatching map[int64]int64
}

type armedTimer struct {
	job models.ScheduledJob
	t   *time.Timer
}

// New builds a scheduler. With a nil dispatcher fires run on an in-process
// pool of cfg.Workers goroutines.
func New(cfg Config, store JobStore, dispatcher Dispatcher) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:         cfg,
		store:       store,
		now:         time.Now,
		ctx:         context.Background(),
		timers:      map[int64]*armedTimer{},
		dispatching: map[int64]int64{},
	}
	if dispatcher == nil {
		s.pool = NewLocalPool(cfg.Workers, s.Fire)
		dispatcher = s.pool
	}
	s.disp = dispatcher
	return s
}

// Handle registers the delivery attempt run for every fire.
func (s *Scheduler) Handle(fn FireFunc) {
	s.hmu.Lock()
	s.handler = fn
	s.hmu.Unlock()
}

// Start reloads persisted timers and arms them.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load armed timers: %w", err)
	}

	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.stopped = false
	overdue := 0
	for _, job := range jobs {
		if !job.FireAt.After(s.now()) {
			overdue++
		}
		s.armLocked(job)
	}
	s.mu.Unlock()

	log.Info().Int("timers", len(jobs)).Int("overdue", overdue).Msg("scheduler started")
	return nil
}

// Stop drops in-memory timers and waits for in-process fires. Persisted
// timers stay in the store for the next Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, at := range s.timers {
		at.t.Stop()
		delete(s.timers, id)
	}
	metrics.ArmedTimers.Set(0)
	s.mu.Unlock()

	log.Info().Msg("scheduler stopped")
	if s.pool != nil {
		return s.pool.Stop(ctx)
	}
	return nil
}

// Arm registers or replaces the timer for postID. The previous timer, if any,
// will not fire after Arm returns.
func (s *Scheduler) Arm(ctx context.Context, postID int64, at time.Time) error {
	unlock := s.armLocks.Lock(postID)
	defer unlock()

	job, err := s.store.Save(ctx, postID, at)
	if err != nil {
		return fmt.Errorf("persist timer for post %d: %w", postID, err)
	}

	s.mu.Lock()
	s.armLocked(job)
	s.mu.Unlock()

	metrics.TimersArmedTotal.Inc()
	log.Debug().Int64("post_id", postID).Time("fire_at", at).Int64("version", job.Version).Msg("timer armed")
	return nil
}

// PublishNow arms postID to fire immediately.
func (s *Scheduler) PublishNow(ctx context.Context, postID int64) error {
	return s.Arm(ctx, postID, s.now())
}

// Disarm removes the timer for postID. It reports false when there was
// nothing pending to cancel.
func (s *Scheduler) Disarm(ctx context.Context, postID int64) (bool, error) {
	unlock := s.armLocks.Lock(postID)
	defer unlock()

	s.mu.Lock()
	at, ok := s.timers[postID]
	if ok {
		at.t.Stop()
		delete(s.timers, postID)
		metrics.ArmedTimers.Set(float64(len(s.timers)))
	}
	delete(s.dispatching, postID)
	s.mu.Unlock()

	if _, err := s.store.Remove(ctx, postID); err != nil {
		return ok, fmt.Errorf("remove timer for post %d: %w", postID, err)
	}
	if ok {
		log.Debug().Int64("post_id", postID).Msg("timer disarmed")
	}
	return ok, nil
}

// ListArmed returns the pending timers ordered by fire time.
func (s *Scheduler) ListArmed() []models.ScheduledJob {
	s.mu.Lock()
	out := make([]models.ScheduledJob, 0, len(s.timers))
	for _, at := range s.timers {
		out = append(out, at.job)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].FireAt.Equal(out[k].FireAt) {
			return out[i].PostID < out[k].PostID
		}
		return out[i].FireAt.Before(out[k].FireAt)
	})
	return out
}

// HasTimer reports whether a timer for postID is persisted, including one
// whose fire is currently running.
func (s *Scheduler) HasTimer(ctx context.Context, postID int64) (bool, error) {
	_, ok, err := s.Timer(ctx, postID)
	return ok, err
}

// Timer returns the persisted timer for postID.
func (s *Scheduler) Timer(ctx context.Context, postID int64) (models.ScheduledJob, bool, error) {
	return s.store.Get(ctx, postID)
}

func (s *Scheduler) IsArmed(postID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[postID]
	return ok
}

// Fire runs one delivery attempt for job. Fires for the same post are
// serialized. A fire whose timer was disarmed or re-armed after it matured
// is skipped. When the handler fails the persisted timer is kept and the
// fire runs again after DispatchRetry.
func (s *Scheduler) Fire(ctx context.Context, job models.ScheduledJob) error {
	unlock := s.fireLocks.Lock(job.PostID)
	defer unlock()

	cur, ok, err := s.store.Get(ctx, job.PostID)
	if err != nil {
		metrics.FiresTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Int64("post_id", job.PostID).Msg("load timer before fire")
		s.rearmLater(job, false)
		return fmt.Errorf("load timer for post %d: %w", job.PostID, err)
	}
	if !ok || cur.Version != job.Version {
		metrics.FiresTotal.WithLabelValues("stale").Inc()
		log.Debug().Int64("post_id", job.PostID).Int64("version", job.Version).Msg("skipping superseded fire")
		return nil
	}

	s.hmu.RLock()
	fn := s.handler
	s.hmu.RUnlock()
	if fn == nil {
		return ErrNoHandler
	}

	if err := s.run(ctx, fn, job); err != nil {
		metrics.FiresTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Int64("post_id", job.PostID).Dur("retry_in", s.cfg.DispatchRetry).Msg("fire failed, keeping timer")
		s.rearmLater(job, false)
		return err
	}
	metrics.FiresTotal.WithLabelValues("handled").Inc()

	if err := s.store.RemoveFired(ctx, job); err != nil {
		log.Error().Err(err).Int64("post_id", job.PostID).Msg("clear fired timer")
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context, fn FireFunc, job models.ScheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.FiresTotal.WithLabelValues("panic").Inc()
			err = fmt.Errorf("panic firing post %d: %v", job.PostID, r)
		}
	}()
	return fn(ctx, job)
}

func (s *Scheduler) armLocked(job models.ScheduledJob) {
	if s.stopped {
		return
	}
	if cur, ok := s.timers[job.PostID]; ok {
		if cur.job.Version > job.Version {
			return
		}
		cur.t.Stop()
	}
	delete(s.dispatching, job.PostID)

	delay := job.FireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	at := &armedTimer{job: job}
	at.t = time.AfterFunc(delay, func() { s.onTimer(job) })
	s.timers[job.PostID] = at
	metrics.ArmedTimers.Set(float64(len(s.timers)))
}

func (s *Scheduler) onTimer(job models.ScheduledJob) {
	s.mu.Lock()
	cur, ok := s.timers[job.PostID]
	if s.stopped || !ok || cur.job.Version != job.Version {
		s.mu.Unlock()
		return
	}
	delete(s.timers, job.PostID)
	s.dispatching[job.PostID] = job.Version
	metrics.ArmedTimers.Set(float64(len(s.timers)))
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.disp.Dispatch(ctx, job); err != nil {
		metrics.DispatchErrorsTotal.Inc()
		log.Warn().Err(err).Int64("post_id", job.PostID).Dur("retry_in", s.cfg.DispatchRetry).Msg("dispatch failed")
		s.rearmLater(job, true)
		return
	}

	s.mu.Lock()
	if v, ok := s.dispatching[job.PostID]; ok && v == job.Version {
		delete(s.dispatching, job.PostID)
	}
	s.mu.Unlock()
	log.Debug().Int64("post_id", job.PostID).Int64("version", job.Version).Msg("fire dispatched")
}

// rearmLater puts job back in memory after DispatchRetry unless it was
// superseded in the meantime. With dispatched set, job must also still be
// waiting on the dispatcher, which a Disarm clears.
func (s *Scheduler) rearmLater(job models.ScheduledJob, dispatched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, armed := s.timers[job.PostID]; armed {
		return
	}
	if dispatched {
		v, ok := s.dispatching[job.PostID]
		if !ok || v != job.Version {
			return
		}
	}
	delete(s.dispatching, job.PostID)
	job.FireAt = s.now().Add(s.cfg.DispatchRetry)
	s.armLocked(job)
}
