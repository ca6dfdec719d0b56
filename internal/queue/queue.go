package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

// attemptTimeout bounds one delivery attempt inside a worker.
const attemptTimeout = 5 * time.Minute

func taskID(job models.ScheduledJob) string {
	return fmt.Sprintf("post:%d:%d", job.PostID, job.Version)
}

// Dispatch enqueues job for immediate processing. asynq's own retries are
// disabled; the scheduler decides about retries. Enqueueing the same job
// twice is a no-op.
func (q *Queue) Dispatch(ctx context.Context, job models.ScheduledJob) error {
	payload, err := json.Marshal(FirePostPayload{PostID: job.PostID, Version: job.Version})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeFirePost, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID(job)),
		asynq.Queue(q.name),
		asynq.MaxRetry(0),
		asynq.Timeout(attemptTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Debug().Int64("post_id", job.PostID).Int64("version", job.Version).Msg("fire already enqueued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue fire for post %d: %w", job.PostID, err)
	}

	log.Debug().Int64("post_id", job.PostID).Int64("version", job.Version).Str("queue", q.name).Msg("fire enqueued")
	return nil
}
