package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

type DeliveryAttemptRepository interface {
	Create(ctx context.Context, a *models.DeliveryAttempt) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.DeliveryAttempt, bool, error)
	GetByPostID(ctx context.Context, postID int64) ([]*models.DeliveryAttempt, error)
	// SetRemoteID stores the remote post id on an in-flight attempt as soon
	// as the publish call returns it.
	SetRemoteID(ctx context.Context, id int64, remotePostID string) error
	// Finish replaces the outcome of an attempt once the post is updated. An
	// empty remotePostID keeps the stored one.
	Finish(ctx context.Context, id int64, outcome models.AttemptOutcome, remotePostID, errorMessage string) error
}

type deliveryAttemptRepository struct {
	db *sql.DB
}

func NewDeliveryAttemptRepository(db *sql.DB) DeliveryAttemptRepository {
	return &deliveryAttemptRepository{db: db}
}

const attemptColumns = `id, user_id, post_id, outcome, remote_post_id, error_message, created_at`

func scanAttempt(row scanner) (*models.DeliveryAttempt, error) {
	var a models.DeliveryAttempt
	if err := row.Scan(&a.ID, &a.UserID, &a.PostID, &a.Outcome, &a.RemotePostID, &a.ErrorMessage, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *deliveryAttemptRepository) Create(ctx context.Context, a *models.DeliveryAttempt) (int64, error) {
	query := `
		INSERT INTO delivery_attempts (user_id, post_id, outcome, remote_post_id, error_message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, a.UserID, a.PostID, a.Outcome, a.RemotePostID, a.ErrorMessage).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		log.Error().Err(err).Int64("post_id", a.PostID).Msg("insert delivery attempt")
		return 0, err
	}
	return a.ID, nil
}

func (r *deliveryAttemptRepository) GetByID(ctx context.Context, id int64) (*models.DeliveryAttempt, bool, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts WHERE id = $1`
	a, err := scanAttempt(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		log.Error().Err(err).Int64("attempt_id", id).Msg("get delivery attempt")
		return nil, false, err
	}
	return a, true, nil
}

func (r *deliveryAttemptRepository) GetByPostID(ctx context.Context, postID int64) ([]*models.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts WHERE post_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		log.Error().Err(err).Int64("post_id", postID).Msg("list delivery attempts")
		return nil, err
	}
	defer rows.Close()

	var out []*models.DeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			log.Error().Err(err).Msg("scan delivery attempt")
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *deliveryAttemptRepository) SetRemoteID(ctx context.Context, id int64, remotePostID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE delivery_attempts SET remote_post_id = $1 WHERE id = $2`, remotePostID, id)
	if err != nil {
		log.Error().Err(err).Int64("attempt_id", id).Msg("store remote post id")
	}
	return err
}

func (r *deliveryAttemptRepository) Finish(ctx context.Context, id int64, outcome models.AttemptOutcome, remotePostID, errorMessage string) error {
	query := `
		UPDATE delivery_attempts
		SET outcome = $1, remote_post_id = COALESCE(NULLIF($2, ''), remote_post_id), error_message = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, outcome, remotePostID, errorMessage, id)
	if err != nil {
		log.Error().Err(err).Int64("attempt_id", id).Msg("finish delivery attempt")
	}
	return err
}
