package service

import (
	"context"
	"fmt"
)

// Failure reasons recorded on a post.
const (
	MsgTokenExpired  = "Access token expired. Please reconnect your LinkedIn account."
	MsgUploadFailed  = "Failed to upload image to LinkedIn"
	MsgPublishFailed = "Failed to create post on LinkedIn"
)

type FailureKind int

const (
	// FailureTransient failures are retried up to the retry cap.
	FailureTransient FailureKind = iota
	// FailureCredential means the owner must reconnect; never retried.
	FailureCredential
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureCredential:
		return "credential"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

func (k FailureKind) Retryable() bool {
	return k == FailureTransient
}

// DeliveryError is the failure arm of a delivery Result.
type DeliveryError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Result is the outcome of one call to the publishing API: a remote
// identifier on success, a DeliveryError otherwise.
type Result struct {
	ID      string
	Failure *DeliveryError
}

func Succeeded(id string) Result {
	return Result{ID: id}
}

func Failed(kind FailureKind, reason string, err error) Result {
	return Result{Failure: &DeliveryError{Kind: kind, Reason: reason, Err: err}}
}

func (r Result) OK() bool { return r.Failure == nil }

// DeliveryClient publishes to LinkedIn on behalf of an owner.
type DeliveryClient interface {
	// UploadMedia registers and uploads an image, returning the asset URN.
	UploadMedia(ctx context.Context, token, remoteUserID string, data []byte) Result
	// Publish creates the post, returning the remote post URN.
	Publish(ctx context.Context, token, remoteUserID, content, mediaHandle string) Result
}
