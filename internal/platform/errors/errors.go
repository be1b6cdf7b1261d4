package apperrors

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConflict             = errors.New("active session already exists")
	ErrInvalidState         = errors.New("invalid state transition")
	ErrStorageFailure       = errors.New("storage failure")
	ErrNoActiveSession      = errors.New("no active session")
	ErrBroadcastUnavailable = errors.New("broadcast channel unavailable")
)
