package models

import "errors"

var (
	ErrPostNotFound          = errors.New("post not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrEmptyContent          = errors.New("post content is required")
	ErrScheduledTimeRequired = errors.New("scheduled time is required")
	ErrScheduledTimeInPast   = errors.New("scheduled time must be in the future")
	ErrArmFailed             = errors.New("failed to schedule post, saved as draft")
	ErrCredentialExpired     = errors.New("linkedin access expired, reconnect your account")
	ErrMediaNotFound         = errors.New("media file not found")
	ErrInvalidImage          = errors.New("image must be png, jpg or gif")
	ErrImageTooLarge         = errors.New("image exceeds the upload size limit")
)
