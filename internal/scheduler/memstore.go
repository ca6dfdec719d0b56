package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

// MemoryStore is a JobStore that lives only as long as the process. It is
// used in tests and when no database is configured for timers.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[int64]models.ScheduledJob
	version map[int64]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    map[int64]models.ScheduledJob{},
		version: map[int64]int64{},
	}
}

func (m *MemoryStore) Save(_ context.Context, postID int64, fireAt time.Time) (models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version[postID]++
	job := models.ScheduledJob{PostID: postID, FireAt: fireAt, Version: m.version[postID]}
	m.jobs[postID] = job
	return job, nil
}

func (m *MemoryStore) Get(_ context.Context, postID int64) (models.ScheduledJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[postID]
	return job, ok, nil
}

func (m *MemoryStore) Remove(_ context.Context, postID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[postID]
	delete(m.jobs, postID)
	return ok, nil
}

func (m *MemoryStore) RemoveFired(_ context.Context, job models.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.jobs[job.PostID]; ok && cur.Version == job.Version {
		delete(m.jobs, job.PostID)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]models.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ScheduledJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out, nil
}
