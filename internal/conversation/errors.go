package conversation

import "errors"

// CompletionError reports a failed completer call.
type CompletionError struct {
	Reason  string
	Timeout bool
	Err     error
}

func (e *CompletionError) Error() string {
	if e.Timeout {
		return "completion timed out: " + e.Reason
	}
	return "completion failed: " + e.Reason
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ErrEmptyReply is returned when the completer succeeds with no text.
var ErrEmptyReply = errors.New("completion returned an empty reply")
