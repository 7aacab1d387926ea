package viewer

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Update after Close.
	ErrClosed = errors.New("viewer: controller closed")

	// ErrAttachment wraps a failure to obtain a rendering surface. It is an
	// integration fault and leaves the controller without a viewer instance.
	ErrAttachment = errors.New("viewer: attachment point unavailable")

	errNilDocument = errors.New("engine returned no document")
)

// LoadError is the cause carried by EventError when a document fails to load.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("viewer: load %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
