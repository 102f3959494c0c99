package domain

import (
	"errors"
	"net/http"
)

var (
	ErrMemberNotFound           = errors.New("member not found")
	ErrRoomNotFound             = errors.New("room not found")
	ErrMessageNotFound          = errors.New("message not found")
	ErrInsufficientParticipants = errors.New("a room needs at least two distinct members")
	ErrDuplicateMembers         = errors.New("member ids must be distinct")
	ErrRoomExists               = errors.New("room already exists for member set")
	ErrNotRoomMember            = errors.New("member does not belong to room")
	ErrMemberExists             = errors.New("member already exists")

	ErrMissingCredential = errors.New("missing member credential")
	ErrInvalidCredential = errors.New("invalid member credential")
	ErrForbidden         = errors.New("forbidden")

	ErrNotAuthenticated   = errors.New("connection is not authenticated")
	ErrAlreadyConnected   = errors.New("connection is already authenticated")
	ErrConnectionClosed   = errors.New("connection is closed")
	ErrInvalidFrame       = errors.New("invalid frame")
	ErrInvalidDestination = errors.New("invalid destination")
	ErrDeliveryFailure    = errors.New("delivery failed")
)

// Error codes carried in {code, message} payloads.
const (
	CodeMemberNotFound           = "MEMBER_NOT_FOUND"
	CodeRoomNotFound             = "ROOM_NOT_FOUND"
	CodeInsufficientParticipants = "INSUFFICIENT_PARTICIPANTS"
	CodeDuplicateMembers         = "DUPLICATE_MEMBERS"
	CodeNotRoomMember            = "NOT_ROOM_MEMBER"
	CodeMemberExists             = "MEMBER_EXISTS"
	CodeMissingCredential        = "MISSING_CREDENTIAL"
	CodeInvalidCredential        = "INVALID_CREDENTIAL"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeBadRequest               = "BAD_REQUEST"
	CodeInternalError            = "INTERNAL_ERROR"
)

var errorTable = []struct {
	err    error
	code   string
	status int
}{
	{ErrMemberNotFound, CodeMemberNotFound, http.StatusNotFound},
	{ErrRoomNotFound, CodeRoomNotFound, http.StatusNotFound},
	{ErrInsufficientParticipants, CodeInsufficientParticipants, http.StatusBadRequest},
	{ErrDuplicateMembers, CodeDuplicateMembers, http.StatusBadRequest},
	{ErrNotRoomMember, CodeNotRoomMember, http.StatusForbidden},
	{ErrMemberExists, CodeMemberExists, http.StatusConflict},
	{ErrMissingCredential, CodeMissingCredential, http.StatusUnauthorized},
	{ErrInvalidCredential, CodeInvalidCredential, http.StatusUnauthorized},
	{ErrNotAuthenticated, CodeUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, CodeForbidden, http.StatusForbidden},
	{ErrAlreadyConnected, CodeBadRequest, http.StatusBadRequest},
	{ErrInvalidFrame, CodeBadRequest, http.StatusBadRequest},
	{ErrInvalidDestination, CodeBadRequest, http.StatusBadRequest},
}

// ErrorCode maps err onto a wire code and an HTTP status. Unknown errors
// are internal.
func ErrorCode(err error) (string, int) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return CodeInternalError, http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to a client.
func PublicMessage(err error) string {
	if code, _ := ErrorCode(err); code == CodeInternalError {
		return "internal error"
	}
	return err.Error()
}
