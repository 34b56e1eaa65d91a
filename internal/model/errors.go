package model

import (
	"errors"
	"fmt"
	"strings"
)

// Comment errors
var (
	ErrCommentNotFound = errors.New("comment not found")
	ErrReplyNotFound   = errors.New("reply not found")
	ErrNotCommentOwner = errors.New("not the owner of this comment")
	ErrBodyRequired    = errors.New("comment body is required")
	ErrBodyTooLong     = errors.New("comment body too long")
	ErrReplyDepth      = errors.New("replies cannot be nested")
	ErrThreadClosed    = errors.New("thread subscription is closed")
)

// ErrWriteFailed is the sentinel for any failed write call. Concrete failures
// are *WriteError values that match it via errors.Is.
var ErrWriteFailed = errors.New("write failed")

// WriteError carries the status and message returned by the write API.
type WriteError struct {
	Status  int
	Code    string
	Message string
}

func (e *WriteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("write failed: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("write failed: status %d", e.Status)
}

// Is lets errors.Is(err, ErrWriteFailed) match any *WriteError.
func (e *WriteError) Is(target error) bool {
	return target == ErrWriteFailed
}

// ErrModerationRejected is the sentinel for content blocked by the moderation
// filter. Concrete rejections are *ModerationError values.
var ErrModerationRejected = errors.New("moderation rejected")

// ModerationError reports which moderation categories blocked the text.
// The original body is preserved so the caller can hand it back to the author.
type ModerationError struct {
	Body    string
	Reasons []string
}

func (e *ModerationError) Error() string {
	return "moderation rejected: " + strings.Join(e.Reasons, ", ")
}

// Is lets errors.Is(err, ErrModerationRejected) match any *ModerationError.
func (e *ModerationError) Is(target error) bool {
	return target == ErrModerationRejected
}
