package service

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every *NotFoundError via errors.Is
var ErrNotFound = errors.New("not found")

// NotFoundError reports that the primary record addressed by an id does not exist
type NotFoundError struct {
	Kind string // display name, e.g. "Author"
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CascadeFailure is one dependent mutation that failed during a delete policy
type CascadeFailure struct {
	Kind    string `json:"kind"` // "book" or "bookinstance"
	ID      string `json:"id"`
	Op      string `json:"op"` // "delete", "detach" or "lookup instances"
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// CascadeError is returned, alongside the DeleteResult, when a delete policy ran to
// completion but some dependent mutations failed. Nothing is rolled back.
type CascadeError struct {
	Kind     string
	ID       string
	Failures []CascadeFailure
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("delete %s %s: %d dependent mutation(s) failed", e.Kind, e.ID, len(e.Failures))
}

func (e *CascadeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
