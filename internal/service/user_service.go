package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
)

type UserService interface {
	GetUserInfo(ctx context.Context, id int64) (*models.User, error)
	// RemoveUser deletes the owner together with every post, disarming
	// their timers and releasing their images first.
	RemoveUser(ctx context.Context, userID int64) error
}

type userService struct {
	u      repository.UserRepository
	p      repository.PostRepository
	media  MediaStore
	timers Timers
}

func NewUserService(u repository.UserRepository, p repository.PostRepository, media MediaStore, timers Timers) UserService {
	return &userService{
		u:      u,
		p:      p,
		media:  media,
		timers: timers,
	}
}

func (s *userService) GetUserInfo(ctx context.Context, id int64) (*models.User, error) {
	user, isExist, err := s.u.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	if !isExist {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

func (s *userService) RemoveUser(ctx context.Context, userID int64) error {
	if _, err := s.GetUserInfo(ctx, userID); err != nil {
		return err
	}

	posts, err := s.p.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, post := range posts {
		if _, err := s.timers.Disarm(ctx, post.ID); err != nil {
			return fmt.Errorf("disarm post %d: %w", post.ID, err)
		}
	}

	// posts and delivery attempts go with the user row
	if err := s.u.Remove(ctx, userID); err != nil {
		return err
	}

	for _, post := range posts {
		if post.MediaRef == "" {
			continue
		}
		if err := s.media.Remove(ctx, post.MediaRef); err != nil {
			log.Warn().Err(err).Str("media_ref", post.MediaRef).Msg("release media")
		}
	}
	log.Info().Int64("user_id", userID).Int("posts", len(posts)).Msg("user deleted")
	return nil
}
