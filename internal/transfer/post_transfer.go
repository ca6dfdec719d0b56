package transfer

import "time"

// PostCreation carries the form fields of a new post. ScheduledTime is
// RFC 3339; empty means the post stays a draft.
type PostCreation struct {
	Content       string `form:"content" json:"content"`
	ScheduledTime string `form:"scheduled_time" json:"scheduled_time"`
}

type Reschedule struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

// ArmedTimer is one entry of the scheduler diagnostics listing.
type ArmedTimer struct {
	PostID int64     `json:"post_id"`
	FireAt time.Time `json:"fire_at"`
}
