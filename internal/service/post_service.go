package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
	"github.com/maheshrc27/linkedin-scheduler/internal/transfer"
)

// StatsClient fetches engagement data for a published post.
type StatsClient interface {
	PostStats(ctx context.Context, accessToken, remotePostID string) (json.RawMessage, error)
}

// ErrNotPublished is returned when stats are requested for a post that has
// no remote counterpart yet.
var ErrNotPublished = errors.New("post is not published")

var errNothingToArm = errors.New("nothing to arm")

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, image []byte) (*models.Post, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Schedule(ctx context.Context, postID, userID int64, at time.Time) (*models.Post, error)
	PublishNow(ctx context.Context, postID, userID int64) (*models.Post, error)
	Cancel(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, postID, userID int64) error
	Attempts(ctx context.Context, postID, userID int64) ([]*models.DeliveryAttempt, error)
	Stats(ctx context.Context, postID, userID int64) (json.RawMessage, error)
	ArmedTimers(ctx context.Context, userID int64) ([]transfer.ArmedTimer, error)
	// Reconcile arms every scheduled post that has no persisted timer and
	// returns how many were armed.
	Reconcile(ctx context.Context) (int, error)
}

type postService struct {
	pr       repository.PostRepository
	ur       repository.UserRepository
	attempts repository.DeliveryAttemptRepository
	media    MediaStore
	timers   Timers
	stats    StatsClient
	sealer   CredentialOpener
	maxImage int64
	now      func() time.Time
}

func NewPostService(
	pr repository.PostRepository,
	ur repository.UserRepository,
	attempts repository.DeliveryAttemptRepository,
	media MediaStore,
	timers Timers,
	stats StatsClient,
	sealer CredentialOpener,
	maxImage int64) PostService {
	return &postService{
		pr:       pr,
		ur:       ur,
		attempts: attempts,
		media:    media,
		timers:   timers,
		stats:    stats,
		sealer:   sealer,
		maxImage: maxImage,
		now:      time.Now,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, image []byte) (*models.Post, error) {
	now := s.now()

	var at time.Time
	if pc.ScheduledTime != "" {
		var err error
		at, err = time.Parse(time.RFC3339, pc.ScheduledTime)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled_time: %w", err)
		}
		if !at.After(now) {
			return nil, models.ErrScheduledTimeInPast
		}
	}

	post, err := models.NewPost(userID, pc.Content, "", now)
	if err != nil {
		return nil, err
	}

	if len(image) > 0 {
		img, err := ValidateImage(image, s.maxImage)
		if err != nil {
			return nil, err
		}
		if post.MediaRef, err = s.media.Save(ctx, img); err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
	}

	if _, err := s.pr.Create(ctx, post); err != nil {
		s.releaseMedia(ctx, post.MediaRef)
		return nil, fmt.Errorf("create post: %w", err)
	}
	log.Info().Int64("post_id", post.ID).Int64("user_id", userID).Msg("post created")

	if at.IsZero() {
		return post, nil
	}
	return s.arm(ctx, post.ID, func(p *models.Post) error { return p.Schedule(at, now) })
}

func (s *postService) owned(ctx context.Context, postID, userID int64) error {
	if userID == 0 {
		return models.ErrUserNotFound
	}
	if postID == 0 {
		return models.ErrPostNotFound
	}
	ok, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrPostNotFound
	}
	return nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	if err := s.owned(ctx, postID, userID); err != nil {
		return nil, err
	}
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, models.ErrPostNotFound
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func (s *postService) Schedule(ctx context.Context, postID, userID int64, at time.Time) (*models.Post, error) {
	if err := s.owned(ctx, postID, userID); err != nil {
		return nil, err
	}
	if err := s.checkCredential(ctx, userID); err != nil {
		return nil, err
	}
	now := s.now()
	return s.arm(ctx, postID, func(p *models.Post) error { return p.Schedule(at, now) })
}

func (s *postService) PublishNow(ctx context.Context, postID, userID int64) (*models.Post, error) {
	if err := s.owned(ctx, postID, userID); err != nil {
		return nil, err
	}
	if err := s.checkCredential(ctx, userID); err != nil {
		return nil, err
	}
	now := s.now()
	return s.arm(ctx, postID, func(p *models.Post) error { return p.PublishNow(now) })
}

// arm applies mutate, which must leave the post Scheduled, and arms its
// timer under the same row lock. When arming fails the post is saved as a
// draft and ErrArmFailed is returned along with it. When the row write
// itself fails the previous timer is put back.
func (s *postService) arm(ctx context.Context, postID int64, mutate func(*models.Post) error) (*models.Post, error) {
	var (
		armErr  error
		touched bool
		prev    models.ScheduledJob
		had     bool
	)
	post, err := s.pr.Update(ctx, postID, func(p *models.Post) error {
		if err := mutate(p); err != nil {
			return err
		}
		var err error
		if prev, had, err = s.timers.Timer(ctx, p.ID); err != nil {
			return err
		}
		touched = true
		armErr = s.timers.Arm(ctx, p.ID, *p.ScheduledTime)
		if armErr == nil {
			return nil
		}
		if _, err := s.timers.Disarm(ctx, p.ID); err != nil {
			log.Error().Err(err).Int64("post_id", p.ID).Msg("clear timer after arm failure")
		}
		return p.RevertToDraft(s.now())
	})
	if err != nil {
		if touched {
			restoreTimer(ctx, s.timers, postID, prev, had)
		}
		return nil, err
	}
	if armErr != nil {
		log.Error().Err(armErr).Int64("post_id", postID).Msg("arm failed, post reverted to draft")
		return post, fmt.Errorf("%w: %v", models.ErrArmFailed, armErr)
	}
	log.Info().Int64("post_id", post.ID).Time("fire_at", *post.ScheduledTime).Msg("post scheduled")
	return post, nil
}

func (s *postService) checkCredential(ctx context.Context, userID int64) error {
	user, ok, err := s.ur.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrUserNotFound
	}
	if user.TokenExpired(s.now()) {
		return models.ErrCredentialExpired
	}
	return nil
}

func (s *postService) Cancel(ctx context.Context, postID, userID int64) (*models.Post, error) {
	if err := s.owned(ctx, postID, userID); err != nil {
		return nil, err
	}
	var (
		touched bool
		prev    models.ScheduledJob
		had     bool
	)
	post, err := s.pr.Update(ctx, postID, func(p *models.Post) error {
		if err := p.Cancel(s.now()); err != nil {
			return err
		}
		var err error
		if prev, had, err = s.timers.Timer(ctx, p.ID); err != nil {
			return err
		}
		touched = true
		_, err = s.timers.Disarm(ctx, p.ID)
		return err
	})
	if err != nil {
		if touched {
			restoreTimer(ctx, s.timers, postID, prev, had)
		}
		return nil, err
	}
	log.Info().Int64("post_id", postID).Msg("post cancelled")
	return post, nil
}

func (s *postService) Remove(ctx context.Context, postID, userID int64) error {
	if err := s.owned(ctx, postID, userID); err != nil {
		return err
	}
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return models.ErrPostNotFound
	}
	return s.remove(ctx, post)
}

// remove disarms, deletes the row and then releases the image.
func (s *postService) remove(ctx context.Context, post *models.Post) error {
	prev, had, err := s.timers.Timer(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("load timer of post %d: %w", post.ID, err)
	}
	if _, err := s.timers.Disarm(ctx, post.ID); err != nil {
		return fmt.Errorf("disarm post %d: %w", post.ID, err)
	}
	if err := s.pr.Remove(ctx, post.ID); err != nil {
		restoreTimer(ctx, s.timers, post.ID, prev, had)
		return fmt.Errorf("delete post %d: %w", post.ID, err)
	}
	s.releaseMedia(ctx, post.MediaRef)
	log.Info().Int64("post_id", post.ID).Msg("post deleted")
	return nil
}

func (s *postService) releaseMedia(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.media.Remove(ctx, ref); err != nil {
		log.Warn().Err(err).Str("media_ref", ref).Msg("release media")
	}
}

func (s *postService) Attempts(ctx context.Context, postID, userID int64) ([]*models.DeliveryAttempt, error) {
	if err := s.owned(ctx, postID, userID); err != nil {
		return nil, err
	}
	return s.attempts.GetByPostID(ctx, postID)
}

func (s *postService) Stats(ctx context.Context, postID, userID int64) (json.RawMessage, error) {
	post, err := s.PostInfo(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPublished {
		return nil, ErrNotPublished
	}
	user, ok, err := s.ur.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrUserNotFound
	}
	token, err := s.sealer.Open(user.AccessToken)
	if err != nil || user.TokenExpired(s.now()) {
		return nil, models.ErrCredentialExpired
	}
	return s.stats.PostStats(ctx, token, post.RemotePostID)
}

func (s *postService) ArmedTimers(ctx context.Context, userID int64) ([]transfer.ArmedTimer, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	mine := make(map[int64]struct{}, len(posts))
	for _, p := range posts {
		mine[p.ID] = struct{}{}
	}

	out := []transfer.ArmedTimer{}
	for _, job := range s.timers.ListArmed() {
		if _, ok := mine[job.PostID]; ok {
			out = append(out, transfer.ArmedTimer{PostID: job.PostID, FireAt: job.FireAt})
		}
	}
	return out, nil
}

func (s *postService) Reconcile(ctx context.Context) (int, error) {
	posts, err := s.pr.ListByStatus(ctx, models.PostStatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("list scheduled posts: %w", err)
	}

	armed := 0
	for _, p := range posts {
		var at time.Time
		_, err := s.pr.Update(ctx, p.ID, func(cur *models.Post) error {
			if cur.Status != models.PostStatusScheduled || cur.ScheduledTime == nil {
				return errNothingToArm
			}
			// overdue posts and posts with an unwritten result fire immediately
			at = *cur.ScheduledTime
			ok, err := s.timers.HasTimer(ctx, cur.ID)
			if err != nil {
				return err
			}
			if ok {
				return errNothingToArm
			}
			return s.timers.Arm(ctx, cur.ID, at)
		})
		switch {
		case errors.Is(err, errNothingToArm), errors.Is(err, models.ErrPostNotFound):
			continue
		case err != nil:
			log.Error().Err(err).Int64("post_id", p.ID).Msg("re-arm scheduled post")
			continue
		}
		armed++
		log.Info().Int64("post_id", p.ID).Time("fire_at", at).Msg("re-armed scheduled post")
	}
	return armed, nil
}
