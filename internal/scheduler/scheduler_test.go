package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

type recorder struct {
	mu    sync.Mutex
	fired []models.ScheduledJob
	at    []time.Time
}

func (r *recorder) handle(_ context.Context, job models.ScheduledJob) error {
	r.mu.Lock()
	r.fired = append(r.fired, job)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func newTestScheduler(t *testing.T, workers int) (*Scheduler, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	s := New(Config{Workers: workers, DispatchRetry: 20 * time.Millisecond}, store, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, store
}

func TestArmFires(t *testing.T) {
	s, store := newTestScheduler(t, 4)
	rec := &recorder{}
	s.Handle(rec.handle)

	ctx := context.Background()
	require.NoError(t, s.Arm(ctx, 1, time.Now().Add(30*time.Millisecond)))
	assert.Len(t, s.ListArmed(), 1)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		jobs, _ := store.List(ctx)
		return len(jobs) == 0
	}, time.Second, 5*time.Millisecond, "fired timer clears itself")
	assert.Empty(t, s.ListArmed())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestRearmReplacesTimer(t *testing.T) {
	s, _ := newTestScheduler(t, 4)
	rec := &recorder{}
	s.Handle(rec.handle)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, s.Arm(ctx, 1, start.Add(40*time.Millisecond)))
	require.NoError(t, s.Arm(ctx, 1, start.Add(150*time.Millisecond)))

	armed := s.ListArmed()
	require.Len(t, armed, 1)
	assert.Equal(t, int64(2), armed[0].Version)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.fired, 1)
	assert.Equal(t, int64(2), rec.fired[0].Version)
	assert.GreaterOrEqual(t, rec.at[0].Sub(start), 150*time.Millisecond)
}

func TestDisarmIdempotent(t *testing.T) {
	s, store := newTestScheduler(t, 4)
	rec := &recorder{}
	s.Handle(rec.handle)

	ctx := context.Background()
	require.NoError(t, s.Arm(ctx, 9, time.Now().Add(40*time.Millisecond)))

	removed, err := s.Disarm(ctx, 9)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Disarm(ctx, 9)
	require.NoError(t, err)
	assert.False(t, removed, "nothing to cancel")

	removed, err = s.Disarm(ctx, 404)
	require.NoError(t, err)
	assert.False(t, removed)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Empty(t, s.ListArmed())
	jobs, _ := store.List(ctx)
	assert.Empty(t, jobs)
}

func TestConcurrentArmLeavesOneTimer(t *testing.T) {
	s, store := newTestScheduler(t, 4)
	rec := &recorder{}
	s.Handle(rec.handle)

	ctx := context.Background()
	at := time.Now().Add(80 * time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Arm(ctx, 3, at))
		}()
	}
	wg.Wait()

	armed := s.ListArmed()
	require.Len(t, armed, 1)
	cur, ok, _ := store.Get(ctx, 3)
	require.True(t, ok)
	assert.Equal(t, cur.Version, armed[0].Version, "memory and store agree on the winner")

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestFiresForSamePostAreSerialized(t *testing.T) {
	s, _ := newTestScheduler(t, 8)

	var inflight, maxInflight, calls int32
	release := make(chan struct{})
	s.Handle(func(ctx context.Context, job models.ScheduledJob) error {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
		atomic.AddInt32(&inflight, -1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, s.PublishNow(ctx, 5))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inflight) == 1 }, time.Second, 5*time.Millisecond)

	// forced immediate re-arm while the first attempt is still running
	require.NoError(t, s.PublishNow(ctx, 5))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second fire waits for the first")

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInflight))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	s, _ := newTestScheduler(t, 2)

	var inflight, maxInflight, done int32
	s.Handle(func(ctx context.Context, job models.ScheduledJob) error {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		atomic.AddInt32(&done, 1)
		return nil
	})

	ctx := context.Background()
	for id := int64(1); id <= 6; id++ {
		require.NoError(t, s.PublishNow(ctx, id))
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 6 }, 2*time.Second, 5*time.Millisecond, "queued fires are not dropped")
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInflight), int32(2))
}

func TestStartRecoversOverdueTimers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Save(ctx, 11, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.Save(ctx, 12, time.Now().Add(time.Hour))
	require.NoError(t, err)

	s := New(Config{Workers: 2}, store, nil)
	rec := &recorder{}
	s.Handle(rec.handle)
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, int64(11), rec.fired[0].PostID)
	rec.mu.Unlock()

	armed := s.ListArmed()
	require.Len(t, armed, 1)
	assert.Equal(t, int64(12), armed[0].PostID)
}

func TestStopKeepsPersistedTimers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := New(Config{}, store, nil)
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Arm(ctx, 1, time.Now().Add(time.Hour)))
	require.NoError(t, s.Stop(ctx))

	assert.Empty(t, s.ListArmed())
	jobs, _ := store.List(ctx)
	assert.Len(t, jobs, 1)

	again := New(Config{}, store, nil)
	require.NoError(t, again.Start(ctx))
	defer again.Stop(ctx)
	assert.Len(t, again.ListArmed(), 1)
}

func TestFireSkipsSupersededJob(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, 2)
	rec := &recorder{}
	s.Handle(rec.handle)

	require.NoError(t, s.Arm(ctx, 4, time.Now().Add(time.Hour)))
	require.NoError(t, s.Arm(ctx, 4, time.Now().Add(2*time.Hour)))

	require.NoError(t, s.Fire(ctx, models.ScheduledJob{PostID: 4, Version: 1}))
	assert.Equal(t, 0, rec.count())

	_, err := s.Disarm(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, s.Fire(ctx, models.ScheduledJob{PostID: 4, Version: 2}))
	assert.Equal(t, 0, rec.count(), "disarmed before the fire started")

	cur, _ := store.Save(ctx, 4, time.Now())
	require.NoError(t, s.Fire(ctx, cur))
	assert.Equal(t, 1, rec.count())
}

func TestFireRecoversPanic(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, 2)
	s.Handle(func(ctx context.Context, job models.ScheduledJob) error {
		panic("boom")
	})

	job, err := store.Save(ctx, 8, time.Now())
	require.NoError(t, err)
	err = s.Fire(ctx, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "timer kept after a panic")
	_, err = s.Disarm(ctx, 8)
	require.NoError(t, err)
}

func TestFireFailureKeepsTimer(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, 2)
	var calls int32
	s.Handle(func(ctx context.Context, job models.ScheduledJob) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("result not written")
		}
		return nil
	})

	require.NoError(t, s.Arm(ctx, 6, time.Now().Add(10*time.Millisecond)))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond, "failed fire runs again")
	require.Eventually(t, func() bool {
		jobs, _ := store.List(ctx)
		return len(jobs) == 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFireWithoutHandler(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, 1)
	job, _ := store.Save(ctx, 2, time.Now())
	assert.ErrorIs(t, s.Fire(ctx, job), ErrNoHandler)
}

type flakyDispatcher struct {
	fails int32
	calls int32
	jobs  chan models.ScheduledJob
}

func (d *flakyDispatcher) Dispatch(_ context.Context, job models.ScheduledJob) error {
	if atomic.AddInt32(&d.calls, 1) <= atomic.LoadInt32(&d.fails) {
		return errors.New("redis unavailable")
	}
	d.jobs <- job
	return nil
}

func TestDispatchFailureRearms(t *testing.T) {
	ctx := context.Background()
	d := &flakyDispatcher{fails: 2, jobs: make(chan models.ScheduledJob, 1)}
	s := New(Config{DispatchRetry: 20 * time.Millisecond}, NewMemoryStore(), d)
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.NoError(t, s.PublishNow(ctx, 1))
	select {
	case job := <-d.jobs:
		assert.Equal(t, int64(1), job.PostID)
	case <-time.After(time.Second):
		t.Fatal("fire was dropped after dispatch failures")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&d.calls))
}

func TestDisarmStopsDispatchRetry(t *testing.T) {
	ctx := context.Background()
	d := &flakyDispatcher{fails: 1000, jobs: make(chan models.ScheduledJob, 1)}
	s := New(Config{DispatchRetry: 30 * time.Millisecond}, NewMemoryStore(), d)
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.NoError(t, s.PublishNow(ctx, 1))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&d.calls) >= 1 }, time.Second, time.Millisecond)
	_, err := s.Disarm(ctx, 1)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	calls := atomic.LoadInt32(&d.calls)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&d.calls))
	assert.Empty(t, s.ListArmed())
}
