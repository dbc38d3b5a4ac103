package mail

import "errors"

var (
	// ErrThreadClosed is returned when an append targets a thread that is no
	// longer active. Stale handles to a closed conversation surface here.
	ErrThreadClosed = errors.New("thread is not active")
	// ErrAlreadyClosed is returned when closing a thread that is already
	// closed.
	ErrAlreadyClosed = errors.New("thread is already closed")
	// ErrThreadNotFound is returned when no thread matches the lookup.
	// Callers must treat it as "no applicable thread", not as a fault.
	ErrThreadNotFound = errors.New("thread not found")
)
