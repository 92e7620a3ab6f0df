package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration covers invalid settings and unusable inputs detected
	// before any query is served (bad alpha, empty corpus, unknown chunking
	// mode).
	ErrConfiguration       = errors.New("configuration error")
	ErrEmptyCorpus         = fmt.Errorf("%w: corpus contains no valid chunks", ErrConfiguration)
	ErrInvalidChunkingMode = fmt.Errorf("%w: invalid chunking mode", ErrConfiguration)

	ErrInvalidInput = errors.New("invalid input")
	ErrCollaborator = errors.New("collaborator failure")
	ErrNotReady     = errors.New("pipeline not ready")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")

	ErrIdempotencyConflict = errors.New("idempotency conflict")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Configf returns an ErrConfiguration-wrapped error.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// CollaboratorError records which external dependency failed. It matches
// ErrCollaborator under errors.Is and unwraps to the underlying cause.
type CollaboratorError struct {
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", ErrCollaborator.Error(), e.Name, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

// Collaborator wraps err as a failure of the named collaborator. A nil err
// yields nil.
func Collaborator(name string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Name: name, Err: err}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrCollaborator), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
