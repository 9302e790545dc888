package console

import (
	"errors"
	"fmt"
)

// Messages shown to the operator when a command cannot run yet.
const (
	MsgPickIdPhoto       = "Pick an ID photo."
	MsgPickSelfie        = "Pick a selfie."
	MsgStartSessionFirst = "Start session first."
	MsgUploadBothFirst   = "Upload both ID and selfie first."
)

const maxErrorBody = 512

var ErrUnknownWorkspace = errors.New("unknown workspace")

// PreconditionError is returned when a command is refused locally. No request
// has been sent when this error is returned.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// StatusError is a non-2xx answer from the verification service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// DecodeError means the service answered 2xx but the body does not have the
// shape the operation needs.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err is a locally refused command.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

func precondition(msg string) error {
	return &PreconditionError{Message: msg}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
