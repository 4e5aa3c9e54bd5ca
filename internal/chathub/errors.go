package chathub

import (
	"errors"

	"chatrelay/backend/internal/auth"
)

// Errors returned by router operations. Each is reported only to the
// connection that sent the offending event.
var (
	ErrNotAMember        = errors.New("not a member of this room")
	ErrInvalidRoom       = errors.New("invalid room")
	ErrAlreadyPending    = errors.New("chat request already pending")
	ErrNoSuchRequest     = errors.New("no such chat request")
	ErrEmptyMessage      = errors.New("message has neither text nor attachment")
	ErrPersistenceFailed = errors.New("message could not be stored")
	ErrNotFound          = errors.New("not found")
	ErrTargetOffline     = errors.New("target user is offline")
	ErrNotConnected      = errors.New("connection is not registered")
	ErrBadEvent          = errors.New("malformed event")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotAMember, "not_a_member"},
	{ErrInvalidRoom, "invalid_room"},
	{ErrAlreadyPending, "already_pending"},
	{ErrNoSuchRequest, "no_such_request"},
	{ErrEmptyMessage, "empty_message"},
	{ErrPersistenceFailed, "persistence_failed"},
	{ErrNotFound, "not_found"},
	{ErrTargetOffline, "target_offline"},
	{ErrNotConnected, "not_connected"},
	{ErrBadEvent, "bad_event"},
	{auth.ErrAuth, "auth_error"},
}

const codeInternal = "internal"

// ErrorCode returns the stable code clients see in an ack for err.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return codeInternal
}
