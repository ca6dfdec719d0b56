package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) (int64, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	ListByStatus(ctx context.Context, statuses ...models.PostStatus) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	// Update loads the post under a row lock, applies fn and writes the
	// result back. fn runs inside the transaction; returning an error from
	// it discards every change.
	Update(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, content, media_ref, status, scheduled_time, published_time,
	remote_post_id, error_message, retry_count, in_flight_attempt_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*models.Post, error) {
	var p models.Post
	err := row.Scan(&p.ID, &p.UserID, &p.Content, &p.MediaRef, &p.Status, &p.ScheduledTime, &p.PublishedTime,
		&p.RemotePostID, &p.ErrorMessage, &p.RetryCount, &p.InFlightAttemptID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (int64, error) {
	if err := post.CheckInvariants(); err != nil {
		return 0, err
	}
	query := `
		INSERT INTO posts (user_id, content, media_ref, status, scheduled_time, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, post.UserID, post.Content, post.MediaRef, post.Status,
		post.ScheduledTime, post.RetryCount, post.CreatedAt, post.UpdatedAt).Scan(&id)
	if err != nil {
		log.Error().Err(err).Int64("user_id", post.UserID).Msg("insert post")
		return 0, err
	}
	post.ID = id
	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Int64("post_id", id).Msg("get post")
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *postRepository) ListByStatus(ctx context.Context, statuses ...models.PostStatus) ([]*models.Post, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = ANY($1) ORDER BY id`
	return r.list(ctx, query, pq.Array(names))
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Msg("list posts")
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			log.Error().Err(err).Msg("scan post")
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		log.Error().Err(err).Int64("post_id", postID).Msg("check post owner")
		return false, err
	}
	return result == 1, nil
}

func (r *postRepository) Update(ctx context.Context, id int64, fn func(*models.Post) error) (*models.Post, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin post update: %w", err)
	}
	defer tx.Rollback()

	post, err := scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPostNotFound
		}
		log.Error().Err(err).Int64("post_id", id).Msg("lock post")
		return nil, err
	}

	if err := fn(post); err != nil {
		return nil, err
	}
	if err := post.CheckInvariants(); err != nil {
		return nil, err
	}

	query := `
		UPDATE posts
		SET content = $1,
			media_ref = $2,
			status = $3,
			scheduled_time = $4,
			published_time = $5,
			remote_post_id = $6,
			error_message = $7,
			retry_count = $8,
			in_flight_attempt_id = $9,
			updated_at = $10
		WHERE id = $11
	`
	_, err = tx.ExecContext(ctx, query, post.Content, post.MediaRef, post.Status, post.ScheduledTime, post.PublishedTime,
		post.RemotePostID, post.ErrorMessage, post.RetryCount, post.InFlightAttemptID, post.UpdatedAt, id)
	if err != nil {
		log.Error().Err(err).Int64("post_id", id).Msg("update post")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit post update: %w", err)
	}
	return post, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		log.Error().Err(err).Int64("post_id", id).Msg("delete post")
		return err
	}
	return nil
}
