package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, bool, error)
	GetByLinkedInID(ctx context.Context, linkedinID string) (*models.User, bool, error)
	// Upsert creates the user on first login and refreshes profile and
	// credential on later ones.
	Upsert(ctx context.Context, user *models.User) (int64, error)
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
	// ListExpiring returns users holding a refresh token whose access token
	// expires before the given time.
	ListExpiring(ctx context.Context, before time.Time) ([]*models.User, error)
	Remove(ctx context.Context, id int64) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, linkedin_id, name, email, profile_picture, access_token, refresh_token,
	token_expires_at, created_at, last_login`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.LinkedInID, &u.Name, &u.Email, &u.ProfilePicture, &u.AccessToken, &u.RefreshToken,
		&u.TokenExpiresAt, &u.CreatedAt, &u.LastLogin)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) getOne(ctx context.Context, query string, arg any) (*models.User, bool, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		log.Error().Err(err).Msg("get user")
		return nil, false, err
	}
	return user, true, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, bool, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) GetByLinkedInID(ctx context.Context, linkedinID string) (*models.User, bool, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE linkedin_id = $1`, linkedinID)
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (linkedin_id, name, email, profile_picture, access_token, refresh_token, token_expires_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (linkedin_id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			profile_picture = EXCLUDED.profile_picture,
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN users.refresh_token ELSE EXCLUDED.refresh_token END,
			token_expires_at = EXCLUDED.token_expires_at,
			last_login = NOW()
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, user.LinkedInID, user.Name, user.Email, user.ProfilePicture,
		user.AccessToken, user.RefreshToken, user.TokenExpiresAt).Scan(&id)
	if err != nil {
		log.Error().Err(err).Str("linkedin_id", user.LinkedInID).Msg("upsert user")
		return 0, err
	}
	user.ID = id
	return id, nil
}

func (r *userRepository) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE users
		SET access_token = $1,
			refresh_token = CASE WHEN $2::text = '' THEN refresh_token ELSE $2::text END,
			token_expires_at = $3
		WHERE id = $4
	`
	res, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("update token")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE refresh_token <> '' AND token_expires_at IS NOT NULL AND token_expires_at < $1`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		log.Error().Err(err).Msg("list expiring users")
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			log.Error().Err(err).Msg("scan user")
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepository) Remove(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("delete user")
		return err
	}
	return nil
}
