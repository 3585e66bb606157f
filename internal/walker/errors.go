package walker

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by every operation attempted before Initialize succeeded.
var ErrNotInitialized = errors.New("walker client not initialized")

// ConnectionError means the endpoint could not be reached after all attempts.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteOperationError wraps any failure of a named walker call.
type RemoteOperationError struct {
	Op  string
	Err error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("walker %s: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

type CreateEntityError struct {
	Kind string
	Err  error
}

func (e *CreateEntityError) Error() string {
	return fmt.Sprintf("create %s: %v", e.Kind, e.Err)
}

func (e *CreateEntityError) Unwrap() error { return e.Err }

// StatusError is a non-success reply from the endpoint, decoded from an RFC 7807 problem.
type StatusError struct {
	Code   int
	Title  string
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Code, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Title)
}

// problem is the wire form of StatusError.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}
