package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

// FireFunc runs the delivery attempt for a dequeued fire.
type FireFunc func(ctx context.Context, job models.ScheduledJob) error

type Worker struct {
	fire FireFunc
}

func NewWorker(fire FireFunc) *Worker {
	return &Worker{fire: fire}
}

func (w *Worker) HandleFirePostTask(ctx context.Context, task *asynq.Task) error {
	var payload FirePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode fire payload: %v: %w", err, asynq.SkipRetry)
	}
	return w.fire(ctx, models.ScheduledJob{PostID: payload.PostID, Version: payload.Version})
}

// NewServeMux routes fire tasks to w.
func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeFirePost, w.HandleFirePostTask)
	return mux
}
