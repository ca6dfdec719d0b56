package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/service"
)

type ReconcileJob struct {
	ps      service.PostService
	timeout time.Duration
}

func NewReconcileJob(ps service.PostService) *ReconcileJob {
	return &ReconcileJob{ps: ps, timeout: time.Minute}
}

// Run re-arms scheduled posts that lost their timer.
func (j *ReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.ps.Reconcile(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile scheduled posts")
		return
	}
	if n > 0 {
		log.Info().Int("armed", n).Msg("reconciled scheduled posts")
	}
}
