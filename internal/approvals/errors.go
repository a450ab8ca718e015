package approvals

import "errors"

var (
	ErrNotFound      = errors.New("approval not found")
	ErrConflict      = errors.New("approval already processed")
	ErrReplyRequired = errors.New("reply required")
	ErrInvalidAction = errors.New("invalid action")

	// ErrThreadClosed is returned by a direct send on a thread that is already sent or declined
	ErrThreadClosed = errors.New("thread already sent or declined")
)

// IsValidation reports errors caused by the request itself, raised before any mutation
func IsValidation(err error) bool {
	return errors.Is(err, ErrReplyRequired) || errors.Is(err, ErrInvalidAction)
}
