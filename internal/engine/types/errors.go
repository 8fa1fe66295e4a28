package types

import (
	"errors"
	"fmt"
)

var (
	ErrState        = errors.New("invalid task state")
	ErrFilesystem   = errors.New("filesystem error")
	ErrFileExists   = errors.New("destination file exists")
	ErrNetwork      = errors.New("network error")
	ErrIntegrity    = errors.New("integrity check failed")
	ErrStaleStaging = errors.New("staging file larger than remote size")
)

// Error ties a failure to the operation that produced it. Kind is one of the
// sentinel errors above; Err is the underlying cause, if any.
type Error struct {
	Op     string
	Kind   error
	Err    error
	Detail string
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StateError reports an operation that is invalid in the current state.
func StateError(op string, state TaskState) error {
	return &Error{Op: op, Kind: ErrState, Detail: fmt.Sprintf("task is %s", state)}
}

// FilesystemError wraps a file operation failure.
func FilesystemError(op string, err error) error {
	return &Error{Op: op, Kind: ErrFilesystem, Err: err}
}

// NetworkError wraps a transport or protocol failure.
func NetworkError(op string, err error, detail string) error {
	return &Error{Op: op, Kind: ErrNetwork, Err: err, Detail: detail}
}

// IntegrityError wraps a checksum mismatch.
func IntegrityError(op string, err error) error {
	return &Error{Op: op, Kind: ErrIntegrity, Err: err}
}

// FileExistsError reports a destination that would be overwritten.
func FileExistsError(op, path string) error {
	return &Error{Op: op, Kind: ErrFilesystem, Err: ErrFileExists, Detail: path}
}

// StaleStagingError describes a staging file longer than the remote resource.
// It is logged and healed, never returned to callers.
func StaleStagingError(length, total int64) error {
	return &Error{Op: "check staging", Kind: ErrStaleStaging, Detail: fmt.Sprintf("%d bytes staged, remote has %d", length, total)}
}
