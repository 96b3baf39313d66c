package routechat_errors

import "errors"

// Failure taxonomy returned by the core services. Handlers map these to
// HTTP statuses; nothing inside the core swallows them.
var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidParticipantSet = errors.New("invalid participant set")
	ErrEmptyMessage          = errors.New("empty message")
	ErrUploadFailed          = errors.New("upload failed")
	ErrFileTooLarge          = errors.New("file too large")
	ErrCallInProgress        = errors.New("call already in progress")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrAlreadyExists         = errors.New("already exists")
)
