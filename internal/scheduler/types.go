package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

// Config controls the scheduler core.
type Config struct {
	// Workers bounds the number of fires executing at once when the
	// in-process pool is used.
	Workers int
	// DispatchRetry is how long a matured timer waits before another
	// dispatch attempt when the dispatcher refused it.
	DispatchRetry time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 20
	}
	if c.DispatchRetry <= 0 {
		c.DispatchRetry = time.Minute
	}
	return c
}

// JobStore persists armed timers so they survive a restart.
type JobStore interface {
	// Save upserts the timer for postID and returns it with a version
	// strictly greater than any version previously saved for that post.
	Save(ctx context.Context, postID int64, fireAt time.Time) (models.ScheduledJob, error)
	// Get returns the current timer for postID, if any.
	Get(ctx context.Context, postID int64) (models.ScheduledJob, bool, error)
	// Remove deletes the timer for postID and reports whether one existed.
	Remove(ctx context.Context, postID int64) (bool, error)
	// RemoveFired deletes the timer only if it is still at job.Version.
	RemoveFired(ctx context.Context, job models.ScheduledJob) error
	List(ctx context.Context) ([]models.ScheduledJob, error)
}

// Dispatcher hands a matured timer to whatever executes fires. Dispatch must
// not wait for the fire itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, job models.ScheduledJob) error
}

// FireFunc performs one delivery attempt for job.PostID.
type FireFunc func(ctx context.Context, job models.ScheduledJob) error

var (
	ErrNoHandler = errors.New("scheduler: no fire handler registered")
	ErrStopped   = errors.New("scheduler: stopped")
)
