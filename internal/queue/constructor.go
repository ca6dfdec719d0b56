package queue

import (
	"context"

	"github.com/hibiken/asynq"
)

const TaskTypeFirePost = "post:fire"

// FirePostPayload identifies one matured timer. Version lets the worker
// tell a current fire from one superseded by a later arm or a disarm.
type FirePostPayload struct {
	PostID  int64 `json:"post_id"`
	Version int64 `json:"version"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands matured timers to asynq workers, which may live in this
// process or in others sharing the same Redis.
type Queue struct {
	client enqueuer
	name   string
}

func NewQueue(client *asynq.Client, name string) *Queue {
	return newQueue(client, name)
}

func newQueue(client enqueuer, name string) *Queue {
	if name == "" {
		name = "default"
	}
	return &Queue{client: client, name: name}
}
