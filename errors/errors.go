package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrInvalidRoomID      = fmt.Errorf("invalid room id")
	ErrRoomNotFound       = fmt.Errorf("room not found")
	ErrSameUserDirectRoom = fmt.Errorf("cannot create a direct room with yourself")
	ErrNotMember          = fmt.Errorf("user is not a member of the room")
	ErrEmptyContent       = fmt.Errorf("message content is empty")
	ErrContentTooLong     = fmt.Errorf("message content is too long")
	ErrInvalidCursor      = fmt.Errorf("invalid cursor")
	ErrPersistence        = fmt.Errorf("message could not be saved")

	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidRequest     = fmt.Errorf("invalid request")
	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrSessionExpired     = fmt.Errorf("session expired")
	ErrUnauthenticated    = fmt.Errorf("unauthenticated")

	ErrSinkOverflow = fmt.Errorf("sink buffer is full")
	ErrSinkClosed   = fmt.Errorf("sink is closed")
)

// MapToHTTPStatus translates a service error into the status code of the REST layer.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRoomID),
		errors.Is(err, ErrSameUserDirectRoom),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
