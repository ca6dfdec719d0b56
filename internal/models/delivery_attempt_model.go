package models

import "time"

type AttemptOutcome string

const (
	AttemptPublished AttemptOutcome = "published"
	AttemptFailed    AttemptOutcome = "failed"
	AttemptSkipped   AttemptOutcome = "skipped"
	// AttemptInFlight is written before the remote call and replaced by the
	// final outcome once the post has been updated.
	AttemptInFlight  AttemptOutcome = "in_flight"
)

// DeliveryAttempt is one row of the per-post delivery log.
type DeliveryAttempt struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	PostID       int64          `db:"post_id" json:"post_id"`
	Outcome      AttemptOutcome `db:"outcome" json:"outcome"`
	RemotePostID string         `db:"remote_post_id" json:"remote_post_id,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
