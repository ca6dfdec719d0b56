package models

import "fmt"

// PostEvent is anything that moves a post between statuses.
type PostEvent string

const (
	EventSchedule          PostEvent = "schedule"
	EventReschedule        PostEvent = "reschedule"
	EventCancel            PostEvent = "cancel"
	EventPublishNow        PostEvent = "publish_now"
	EventArmFailed         PostEvent = "arm_failed"
	EventDeliverySucceeded PostEvent = "delivery_succeeded"
	EventDeliveryFailed    PostEvent = "delivery_failed"
	EventCredentialExpired PostEvent = "credential_expired"
)

// postTransitions is the single source of truth for status changes.
//
// Failed posts accept delivery events because an armed retry fires while the
// post is failed. Cancelled accepts a delivery success so that a publish which
// was already in flight when the post got cancelled is still recorded.
var postTransitions = map[PostStatus]map[PostEvent]PostStatus{
	PostStatusDraft: {
		EventSchedule:   PostStatusScheduled,
		EventPublishNow: PostStatusScheduled,
	},
	PostStatusScheduled: {
		EventReschedule:        PostStatusScheduled,
		EventCancel:            PostStatusCancelled,
		EventArmFailed:         PostStatusDraft,
		EventDeliverySucceeded: PostStatusPublished,
		EventDeliveryFailed:    PostStatusFailed,
		EventCredentialExpired: PostStatusFailed,
	},
	PostStatusFailed: {
		EventPublishNow:        PostStatusScheduled,
		EventCancel:            PostStatusCancelled,
		EventDeliverySucceeded: PostStatusPublished,
		EventDeliveryFailed:    PostStatusFailed,
		EventCredentialExpired: PostStatusFailed,
	},
	PostStatusCancelled: {
		EventDeliverySucceeded: PostStatusPublished,
	},
	PostStatusPublished: {},
}

func (s PostStatus) Valid() bool {
	_, ok := postTransitions[s]
	return ok
}

// Terminal reports whether no caller-driven event can leave s.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPublished || s == PostStatusCancelled
}

// NextStatus returns the status reached by applying ev to from.
func NextStatus(from PostStatus, ev PostEvent) (PostStatus, error) {
	events, ok := postTransitions[from]
	if !ok {
		return "", &TransitionError{From: from, Event: ev}
	}
	to, ok := events[ev]
	if !ok {
		return "", &TransitionError{From: from, Event: ev}
	}
	return to, nil
}

// CanApply is NextStatus without the error.
func CanApply(from PostStatus, ev PostEvent) bool {
	_, err := NextStatus(from, ev)
	return err == nil
}

type TransitionError struct {
	From  PostStatus
	Event PostEvent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("post in status %q does not accept %q", e.From, e.Event)
}

type InvariantError struct {
	PostID int64
	Msg    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("post %d: %s", e.PostID, e.Msg)
}
