package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/scheduler"
)

type scheduledJobRepository struct {
	db *sql.DB
}

// NewScheduledJobRepository returns the durable timer store backing the
// scheduler.
func NewScheduledJobRepository(db *sql.DB) scheduler.JobStore {
	return &scheduledJobRepository{db: db}
}

func (r *scheduledJobRepository) Save(ctx context.Context, postID int64, fireAt time.Time) (models.ScheduledJob, error) {
	query := `
		INSERT INTO scheduled_jobs (post_id, fire_at, version)
		VALUES ($1, $2, nextval('scheduled_job_version_seq'))
		ON CONFLICT (post_id) DO UPDATE
		SET fire_at = EXCLUDED.fire_at,
			version = EXCLUDED.version
		RETURNING version
	`
	job := models.ScheduledJob{PostID: postID, FireAt: fireAt}
	if err := r.db.QueryRowContext(ctx, query, postID, fireAt).Scan(&job.Version); err != nil {
		log.Error().Err(err).Int64("post_id", postID).Msg("save scheduled job")
		return models.ScheduledJob{}, err
	}
	return job, nil
}

func (r *scheduledJobRepository) Get(ctx context.Context, postID int64) (models.ScheduledJob, bool, error) {
	var job models.ScheduledJob
	err := r.db.QueryRowContext(ctx, `SELECT post_id, fire_at, version FROM scheduled_jobs WHERE post_id = $1`, postID).
		Scan(&job.PostID, &job.FireAt, &job.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ScheduledJob{}, false, nil
		}
		log.Error().Err(err).Int64("post_id", postID).Msg("get scheduled job")
		return models.ScheduledJob{}, false, err
	}
	return job, true, nil
}

func (r *scheduledJobRepository) Remove(ctx context.Context, postID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE post_id = $1`, postID)
	if err != nil {
		log.Error().Err(err).Int64("post_id", postID).Msg("delete scheduled job")
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *scheduledJobRepository) RemoveFired(ctx context.Context, job models.ScheduledJob) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE post_id = $1 AND version = $2`, job.PostID, job.Version)
	if err != nil {
		log.Error().Err(err).Int64("post_id", job.PostID).Msg("delete fired job")
		return err
	}
	return nil
}

func (r *scheduledJobRepository) List(ctx context.Context) ([]models.ScheduledJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT post_id, fire_at, version FROM scheduled_jobs ORDER BY fire_at`)
	if err != nil {
		log.Error().Err(err).Msg("list scheduled jobs")
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ScheduledJob
	for rows.Next() {
		var job models.ScheduledJob
		if err := rows.Scan(&job.PostID, &job.FireAt, &job.Version); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
