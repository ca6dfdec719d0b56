package models

import "time"

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusFailed    PostStatus = "failed"
	PostStatusCancelled PostStatus = "cancelled"
)

// DefaultRetryCap is the number of failed delivery attempts after which no
// automatic retry is armed.
const DefaultRetryCap = 3

type Post struct {
	ID            int64      `db:"id" json:"id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	Content       string     `db:"content" json:"content"`
	MediaRef      string     `db:"media_ref" json:"media_ref,omitempty"`
	Status        PostStatus `db:"status" json:"status"`
	ScheduledTime *time.Time `db:"scheduled_time" json:"scheduled_time,omitempty"`
	PublishedTime *time.Time `db:"published_time" json:"published_time,omitempty"`
	RemotePostID  string     `db:"remote_post_id" json:"remote_post_id,omitempty"`
	ErrorMessage  string     `db:"error_message" json:"error_message,omitempty"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	// InFlightAttemptID points at the delivery attempt whose result has not
	// been written back yet.
	InFlightAttemptID *int64 `db:"in_flight_attempt_id" json:"-"`
}

// NewPost returns a draft owned by userID.
func NewPost(userID int64, content, mediaRef string, now time.Time) (*Post, error) {
	if userID == 0 {
		return nil, ErrUserNotFound
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	return &Post{
		UserID:    userID,
		Content:   content,
		MediaRef:  mediaRef,
		Status:    PostStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Schedule moves a draft (or an already scheduled post) to at.
func (p *Post) Schedule(at, now time.Time) error {
	if at.IsZero() {
		return ErrScheduledTimeRequired
	}
	if !at.After(now) {
		return ErrScheduledTimeInPast
	}
	if p.Content == "" {
		return ErrEmptyContent
	}
	ev := EventSchedule
	if p.Status == PostStatusScheduled {
		ev = EventReschedule
	}
	next, err := NextStatus(p.Status, ev)
	if err != nil {
		return err
	}
	p.Status = next
	p.ScheduledTime = timePtr(at)
	p.UpdatedAt = now
	return nil
}

// PublishNow arms the post for immediate delivery. Only drafts and failed
// posts may be pushed out this way.
func (p *Post) PublishNow(now time.Time) error {
	if p.Content == "" {
		return ErrEmptyContent
	}
	next, err := NextStatus(p.Status, EventPublishNow)
	if err != nil {
		return err
	}
	p.Status = next
	p.ScheduledTime = timePtr(now)
	p.UpdatedAt = now
	return nil
}

func (p *Post) Cancel(now time.Time) error {
	next, err := NextStatus(p.Status, EventCancel)
	if err != nil {
		return err
	}
	p.Status = next
	p.ScheduledTime = nil
	p.ErrorMessage = ""
	p.UpdatedAt = now
	return nil
}

// RevertToDraft is used when the timer for a scheduled post could not be
// armed.
func (p *Post) RevertToDraft(now time.Time) error {
	next, err := NextStatus(p.Status, EventArmFailed)
	if err != nil {
		return err
	}
	p.Status = next
	p.ScheduledTime = nil
	p.UpdatedAt = now
	return nil
}

func (p *Post) MarkPublished(remotePostID string, now time.Time) error {
	next, err := NextStatus(p.Status, EventDeliverySucceeded)
	if err != nil {
		return err
	}
	p.Status = next
	p.ScheduledTime = nil
	p.PublishedTime = timePtr(now)
	p.RemotePostID = remotePostID
	p.ErrorMessage = ""
	p.UpdatedAt = now
	return nil
}

// MarkFailed records a failed delivery attempt and reports whether another
// automatic attempt may be armed. retry_count saturates at retryCap.
func (p *Post) MarkFailed(reason string, retryable bool, retryCap int, now time.Time) (bool, error) {
	next, err := NextStatus(p.Status, EventDeliveryFailed)
	if err != nil {
		return false, err
	}
	if retryCap <= 0 {
		retryCap = DefaultRetryCap
	}
	p.Status = next
	p.ScheduledTime = nil
	p.ErrorMessage = reason
	if p.RetryCount < retryCap {
		p.RetryCount++
	}
	p.UpdatedAt = now
	return retryable && p.RetryCount < retryCap, nil
}

// MarkCredentialExpired fails the post without consuming a retry. The post
// stays failed until the owner reconnects and publishes it again.
func (p *Post) MarkCredentialExpired(reason string, now time.Time) error {
	next, err := NextStatus(p.Status, EventCredentialExpired)
	if err != nil {
		return err
	}
	p.Status = next
	p.ScheduledTime = nil
	p.ErrorMessage = reason
	p.UpdatedAt = now
	return nil
}

// CheckInvariants verifies the field presence rules tied to status.
func (p *Post) CheckInvariants() error {
	if !p.Status.Valid() {
		return &InvariantError{PostID: p.ID, Msg: "unknown status " + string(p.Status)}
	}
	if (p.ScheduledTime != nil) != (p.Status == PostStatusScheduled) {
		return &InvariantError{PostID: p.ID, Msg: "scheduled_time must be set if and only if status is scheduled"}
	}
	published := p.Status == PostStatusPublished
	if (p.PublishedTime != nil) != published || (p.RemotePostID != "") != published {
		return &InvariantError{PostID: p.ID, Msg: "published_time and remote_post_id must be set if and only if status is published"}
	}
	if p.RetryCount < 0 {
		return &InvariantError{PostID: p.ID, Msg: "negative retry_count"}
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
