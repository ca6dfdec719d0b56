package models

import "time"

// ScheduledJob is an armed timer for a post. Version grows every time the
// timer is re-armed so a stale fire can be told apart from the current one.
type ScheduledJob struct {
	PostID  int64     `db:"post_id" json:"post_id"`
	FireAt  time.Time `db:"fire_at" json:"fire_at"`
	Version int64     `db:"version" json:"version"`
}
