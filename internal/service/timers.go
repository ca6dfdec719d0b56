package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

// Timers is the part of the scheduler the services drive.
type Timers interface {
	Arm(ctx context.Context, postID int64, at time.Time) error
	PublishNow(ctx context.Context, postID int64) error
	Disarm(ctx context.Context, postID int64) (bool, error)
	ListArmed() []models.ScheduledJob
	HasTimer(ctx context.Context, postID int64) (bool, error)
	// Timer returns the persisted timer for postID, if any.
	Timer(ctx context.Context, postID int64) (models.ScheduledJob, bool, error)
}

// RetryPolicy bounds automatic redelivery of failed posts.
type RetryPolicy struct {
	Cap     int
	Backoff time.Duration
	// Resume is how soon a fire whose result could not be written runs
	// again.
	Resume time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Cap <= 0 {
		p.Cap = models.DefaultRetryCap
	}
	if p.Backoff <= 0 {
		p.Backoff = 30 * time.Minute
	}
	if p.Resume <= 0 {
		p.Resume = time.Minute
	}
	return p
}

// restoreTimer puts back the timer a failed post write had replaced or
// removed.
func restoreTimer(ctx context.Context, timers Timers, postID int64, prev models.ScheduledJob, had bool) {
	var err error
	if had {
		err = timers.Arm(ctx, postID, prev.FireAt)
	} else {
		_, err = timers.Disarm(ctx, postID)
	}
	if err != nil {
		log.Error().Err(err).Int64("post_id", postID).Msg("restore timer after failed write")
	}
}
