package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/metrics"
	"github.com/maheshrc27/linkedin-scheduler/internal/models"
	"github.com/maheshrc27/linkedin-scheduler/internal/repository"
)

// CredentialOpener unseals a stored access token.
type CredentialOpener interface {
	Open(sealed string) (string, error)
}

// DeliveryService runs the delivery attempt for a fired timer and records
// its outcome on the post.
type DeliveryService interface {
	Deliver(ctx context.Context, job models.ScheduledJob) error
}

type deliveryService struct {
	posts        repository.PostRepository
	users        repository.UserRepository
	attempts     repository.DeliveryAttemptRepository
	media        MediaStore
	client       DeliveryClient
	timers       Timers
	sealer       CredentialOpener
	policy       RetryPolicy
	now          func() time.Time
	writeBackoff time.Duration
}

// writeAttempts bounds how often a delivery result write is tried before
// the fire is handed back to the scheduler.
const writeAttempts = 3

// errInterrupted is recorded when a fire finds an attempt that never wrote
// its result and never stored a remote post id.
var errInterrupted = errors.New("previous delivery attempt was interrupted")

var errNotDeliverable = errors.New("post is not deliverable")

func NewDeliveryService(
	posts repository.PostRepository,
	users repository.UserRepository,
	attempts repository.DeliveryAttemptRepository,
	media MediaStore,
	client DeliveryClient,
	timers Timers,
	sealer CredentialOpener,
	policy RetryPolicy) DeliveryService {
	return &deliveryService{
		posts:        posts,
		users:        users,
		attempts:     attempts,
		media:        media,
		client:       client,
		timers:       timers,
		sealer:       sealer,
		policy:       policy.withDefaults(),
		now:          time.Now,
		writeBackoff: 200 * time.Millisecond,
	}
}

// Deliver returns an error only when the outcome could not be recorded. The
// post then keeps a timer, and its in-flight attempt makes the next fire
// write the stored result instead of publishing again.
func (s *deliveryService) Deliver(ctx context.Context, job models.ScheduledJob) error {
	start := time.Now()
	defer func() { metrics.DeliveryDuration.Observe(time.Since(start).Seconds()) }()

	post, err := s.posts.GetByID(ctx, job.PostID)
	if err != nil {
		return fmt.Errorf("load post %d: %w", job.PostID, err)
	}
	if post == nil {
		log.Info().Int64("post_id", job.PostID).Msg("post deleted before delivery")
		metrics.DeliveriesTotal.WithLabelValues(string(models.AttemptSkipped)).Inc()
		return nil
	}
	if post.InFlightAttemptID != nil {
		return s.resume(ctx, post, *post.InFlightAttemptID)
	}
	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusFailed {
		log.Info().Int64("post_id", post.ID).Str("status", string(post.Status)).Msg("post not deliverable, skipping")
		s.record(ctx, post, models.AttemptSkipped, "", "post is "+string(post.Status))
		return nil
	}

	owner, ok, err := s.users.GetByID(ctx, post.UserID)
	if err != nil {
		return fmt.Errorf("load owner of post %d: %w", post.ID, err)
	}
	if !ok {
		log.Warn().Int64("post_id", post.ID).Msg("owner missing, skipping delivery")
		s.record(ctx, post, models.AttemptSkipped, "", models.ErrUserNotFound.Error())
		return nil
	}

	attemptID, started, err := s.begin(ctx, post)
	if err != nil || !started {
		return err
	}

	res := s.attempt(ctx, post, owner)
	if res.OK() {
		err := s.retryWrite(ctx, func() error { return s.attempts.SetRemoteID(ctx, attemptID, res.ID) })
		if err != nil {
			log.Error().Err(err).Int64("post_id", post.ID).Str("remote_post_id", res.ID).Msg("remote post id not stored")
		}
	}
	return s.apply(ctx, post, attemptID, res)
}

// begin writes an in-flight attempt and marks the post with it before any
// remote call is made. It reports false when the post stopped being
// deliverable in the meantime.
func (s *deliveryService) begin(ctx context.Context, post *models.Post) (int64, bool, error) {
	attemptID, err := s.attempts.Create(ctx, &models.DeliveryAttempt{
		UserID:  post.UserID,
		PostID:  post.ID,
		Outcome: models.AttemptInFlight,
	})
	if err != nil {
		return 0, false, fmt.Errorf("start delivery of post %d: %w", post.ID, err)
	}

	var status models.PostStatus
	_, err = s.posts.Update(ctx, post.ID, func(p *models.Post) error {
		status = p.Status
		if p.Status != models.PostStatusScheduled && p.Status != models.PostStatusFailed {
			return errNotDeliverable
		}
		p.InFlightAttemptID = &attemptID
		return nil
	})
	switch {
	case errors.Is(err, errNotDeliverable):
		s.finish(ctx, post, attemptID, models.AttemptSkipped, "", "post is "+string(status))
		return 0, false, nil
	case errors.Is(err, models.ErrPostNotFound):
		return 0, false, nil
	case err != nil:
		s.finish(ctx, post, attemptID, models.AttemptSkipped, "", "delivery not started: "+err.Error())
		return 0, false, fmt.Errorf("start delivery of post %d: %w", post.ID, err)
	}
	return attemptID, true, nil
}

// resume settles an attempt whose result was never written: a stored remote
// id means the post went out, anything else counts as a failed attempt.
func (s *deliveryService) resume(ctx context.Context, post *models.Post, attemptID int64) error {
	a, ok, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("load attempt %d of post %d: %w", attemptID, post.ID, err)
	}
	res := Failed(FailureTransient, MsgPublishFailed, errInterrupted)
	if ok && a.RemotePostID != "" {
		res = Succeeded(a.RemotePostID)
	}
	log.Warn().Int64("post_id", post.ID).Int64("attempt_id", attemptID).Bool("published", res.OK()).
		Msg("settling unrecorded delivery attempt")
	return s.apply(ctx, post, attemptID, res)
}

// attempt performs the remote calls. Panics are turned into a transient
// failure so they follow the normal retry path.
func (s *deliveryService) attempt(ctx context.Context, post *models.Post, owner *models.User) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("post_id", post.ID).Msg("delivery panicked")
			res = Failed(FailureTransient, MsgPublishFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	if owner.TokenExpired(s.now()) {
		return Failed(FailureCredential, MsgTokenExpired, nil)
	}
	token, err := s.sealer.Open(owner.AccessToken)
	if err != nil || token == "" {
		return Failed(FailureCredential, MsgTokenExpired, err)
	}

	var mediaHandle string
	if post.MediaRef != "" {
		data, err := s.media.Load(ctx, post.MediaRef)
		if err != nil {
			return Failed(FailureTransient, MsgUploadFailed, err)
		}
		up := s.client.UploadMedia(ctx, token, owner.LinkedInID, data)
		if !up.OK() {
			return up
		}
		mediaHandle = up.ID
	}

	return s.client.Publish(ctx, token, owner.LinkedInID, post.Content, mediaHandle)
}

// apply writes res onto the post under its row lock. A retry is armed in
// the same critical section so a concurrent cancel either runs first and
// makes the write fail, or runs after and disarms the retry.
func (s *deliveryService) apply(ctx context.Context, post *models.Post, attemptID int64, res Result) error {
	now := s.now()
	var retryAt *time.Time

	var updated *models.Post
	err := s.retryWrite(ctx, func() error {
		retryAt = nil
		var err error
		updated, err = s.posts.Update(ctx, post.ID, func(p *models.Post) error {
			p.InFlightAttemptID = nil
			switch {
			case res.OK():
				if err := p.MarkPublished(res.ID, now); err != nil {
					return err
				}
			case res.Failure.Kind == FailureCredential:
				if err := p.MarkCredentialExpired(res.Failure.Reason, now); err != nil {
					return err
				}
			default:
				retry, err := p.MarkFailed(res.Failure.Reason, res.Failure.Kind.Retryable(), s.policy.Cap, now)
				if err != nil {
					return err
				}
				if retry {
					at := now.Add(s.policy.Backoff)
					if err := s.timers.Arm(ctx, p.ID, at); err != nil {
						// the failure is still recorded, just without a retry
						log.Error().Err(err).Int64("post_id", p.ID).Msg("arm retry")
					} else {
						retryAt = &at
					}
				}
			}
			if retryAt == nil {
				if _, err := s.timers.Disarm(ctx, p.ID); err != nil {
					log.Error().Err(err).Int64("post_id", p.ID).Msg("clear timer after delivery")
				}
			}
			return nil
		})
		return err
	})

	var terr *models.TransitionError
	switch {
	case errors.As(err, &terr):
		log.Info().Int64("post_id", post.ID).Str("status", string(terr.From)).Msg("delivery result dropped, post changed meanwhile")
		s.clearInFlight(ctx, post.ID, attemptID)
		s.finish(ctx, post, attemptID, models.AttemptSkipped, res.ID, "result dropped: "+terr.Error())
		return nil
	case errors.Is(err, models.ErrPostNotFound):
		log.Info().Int64("post_id", post.ID).Msg("post deleted during delivery")
		return nil
	case err != nil:
		// the callback may have moved the timer before the write was lost
		at := now.Add(s.policy.Resume)
		if armErr := s.timers.Arm(ctx, post.ID, at); armErr != nil {
			log.Error().Err(armErr).Int64("post_id", post.ID).Msg("re-arm unrecorded delivery")
		}
		return fmt.Errorf("record delivery of post %d: %w", post.ID, err)
	}

	ev := log.Info().Int64("post_id", updated.ID).Str("status", string(updated.Status)).Int("retry_count", updated.RetryCount)
	if res.OK() {
		ev.Str("remote_post_id", res.ID).Msg("post published")
		s.finish(ctx, updated, attemptID, models.AttemptPublished, res.ID, "")
		return nil
	}
	if retryAt != nil {
		ev = ev.Time("retry_at", *retryAt)
	}
	ev.Str("kind", res.Failure.Kind.String()).AnErr("cause", res.Failure.Err).Msg(res.Failure.Reason)
	s.finish(ctx, updated, attemptID, models.AttemptFailed, "", res.Failure.Error())
	return nil
}

func (s *deliveryService) clearInFlight(ctx context.Context, postID, attemptID int64) {
	_, err := s.posts.Update(ctx, postID, func(p *models.Post) error {
		if p.InFlightAttemptID != nil && *p.InFlightAttemptID == attemptID {
			p.InFlightAttemptID = nil
		}
		return nil
	})
	if err != nil && !errors.Is(err, models.ErrPostNotFound) {
		log.Error().Err(err).Int64("post_id", postID).Msg("clear in-flight attempt")
	}
}

// retryWrite runs fn up to writeAttempts times with doubling backoff.
// Errors that another try cannot fix are returned at once.
func (s *deliveryService) retryWrite(ctx context.Context, fn func() error) error {
	backoff := s.writeBackoff
	var err error
	for i := 1; ; i++ {
		err = fn()
		if err == nil || !transientWriteError(err) || i == writeAttempts {
			return err
		}
		log.Warn().Err(err).Int("try", i).Msg("delivery write failed, retrying")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func transientWriteError(err error) bool {
	var terr *models.TransitionError
	var ierr *models.InvariantError
	switch {
	case errors.As(err, &terr), errors.As(err, &ierr):
		return false
	case errors.Is(err, models.ErrPostNotFound), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// finish replaces the in-flight outcome of attemptID.
func (s *deliveryService) finish(ctx context.Context, post *models.Post, attemptID int64, outcome models.AttemptOutcome, remoteID, msg string) {
	metrics.DeliveriesTotal.WithLabelValues(string(outcome)).Inc()
	if err := s.attempts.Finish(ctx, attemptID, outcome, remoteID, msg); err != nil {
		log.Error().Err(err).Int64("post_id", post.ID).Int64("attempt_id", attemptID).Msg("finish delivery attempt")
	}
}

func (s *deliveryService) record(ctx context.Context, post *models.Post, outcome models.AttemptOutcome, remoteID, msg string) {
	metrics.DeliveriesTotal.WithLabelValues(string(outcome)).Inc()
	_, err := s.attempts.Create(ctx, &models.DeliveryAttempt{
		UserID:       post.UserID,
		PostID:       post.ID,
		Outcome:      outcome,
		RemotePostID: remoteID,
		ErrorMessage: msg,
	})
	if err != nil {
		log.Error().Err(err).Int64("post_id", post.ID).Msg("record delivery attempt")
	}
}
