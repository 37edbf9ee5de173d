/*
errors.go - Centralized error types for the enrollment engine

ERROR CATEGORIES:
  1. Rejections - business rule violations the operator can recover from
     (capacity, conflicts, receipts, empty cart). The session stays in the
     same state and the operator retries.
  2. Storage failures - the ledger cannot be read or written. The current
     operation aborts; nothing is partially committed.
  3. Workflow errors - calling a session operation in the wrong state.

USAGE:
  if errors.Is(err, enrollment.ErrTimeConflict) { ... }

  var c *enrollment.Conflict
  if errors.As(err, &c) {
      fmt.Println("conflicts with", c.With)
  }
*/
package enrollment

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCapacityExceeded is returned when the offering is already full.
	ErrCapacityExceeded = errors.New("course group is full")

	// ErrTimeConflict is returned when the candidate shares a time slot with a held course.
	ErrTimeConflict = errors.New("time conflict")

	// ErrDuplicateSubject is returned when the subject is already held under another group.
	ErrDuplicateSubject = errors.New("duplicate subject")

	// ErrDuplicateReceipt is returned when the receipt already pays for an active enrollment.
	ErrDuplicateReceipt = errors.New("receipt already used by an active enrollment")

	// ErrReceiptRequired is returned when an empty receipt is supplied.
	ErrReceiptRequired = errors.New("receipt number is required")

	// ErrEmptySelection is returned when finishing selection with an empty cart.
	ErrEmptySelection = errors.New("cart is empty, select at least one course")

	// ErrStorageUnavailable is returned when the ledger store cannot be read or written.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")

	// ErrUnknownCourse is returned for an id that is not in the catalog.
	ErrUnknownCourse = errors.New("unknown course id")

	// ErrAlreadySelected is returned when the course is already in the cart.
	ErrAlreadySelected = errors.New("course is already selected")

	// ErrAlreadyEnrolled is returned when the student is already active in the course.
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this course")

	// ErrNotSelected is returned when removing a course that is neither selected nor enrolled.
	ErrNotSelected = errors.New("course is not in the selection")

	// ErrContactRequired is returned when committing without contact details.
	ErrContactRequired = errors.New("contact details are required")

	// ErrNoActiveEnrollments is returned when editing a student with nothing active.
	ErrNoActiveEnrollments = errors.New("student has no active enrollments")

	// ErrInvalidState is returned when an operation is not allowed in the session state.
	ErrInvalidState = errors.New("operation not allowed in current session state")

	// ErrInvalidEvent is returned when an event fails basic shape checks on append.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrTornCommit marks a trailing commit that a store found incomplete on scan.
	// Stores log it and skip the events; it is never returned to callers.
	ErrTornCommit = errors.New("incomplete commit at end of ledger")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictKind tells which conflict rule fired.
type ConflictKind string

const (
	ConflictTime    ConflictKind = "time_conflict"
	ConflictSubject ConflictKind = "duplicate_subject"
)

// ConflictSource tells whether the conflicting course was confirmed or in the cart.
type ConflictSource string

const (
	SourceHistory ConflictSource = "history"
	SourceCart    ConflictSource = "cart"
)

// Conflict is the outcome of a failed conflict check.
type Conflict struct {
	Kind      ConflictKind
	Source    ConflictSource
	Candidate string // name of the course being added
	With      string // name of the held course it collides with
	Subject   string // subject name, for duplicate subjects
}

func (c *Conflict) Error() string {
	where := "registered course"
	if c.Source == SourceCart {
		where = "course in cart"
	}
	switch c.Kind {
	case ConflictSubject:
		return fmt.Sprintf("subject %q is already taken (%s %q)", c.Subject, where, c.With)
	default:
		return fmt.Sprintf("%q has a time conflict with %s %q", c.Candidate, where, c.With)
	}
}

func (c *Conflict) Unwrap() error {
	if c.Kind == ConflictSubject {
		return ErrDuplicateSubject
	}
	return ErrTimeConflict
}

// CapacityError describes a full course group.
type CapacityError struct {
	CourseID   string
	CourseName string
	Capacity   int
	Occupied   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("course group %q is full (%d/%d)", e.CourseName, e.Occupied, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// ReceiptError describes a rejected receipt.
type ReceiptError struct {
	ReceiptID string
}

func (e *ReceiptError) Error() string {
	return fmt.Sprintf("receipt %q is already used by an active enrollment", e.ReceiptID)
}

func (e *ReceiptError) Unwrap() error { return ErrDuplicateReceipt }

// ResolveError collects every problem found when a cart is re-checked against
// the student's confirmed history. The session is aborted when it is returned.
type ResolveError struct {
	Problems []error
}

func (e *ResolveError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "selection conflicts with current enrollments: " + strings.Join(msgs, "; ")
}

func (e *ResolveError) Unwrap() []error { return e.Problems }

// StorageError wraps an underlying store failure.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.Err} }

// StateError describes an operation attempted in the wrong session state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection returns true if the error is a recoverable business rule rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrTimeConflict) ||
		errors.Is(err, ErrDuplicateSubject) ||
		errors.Is(err, ErrDuplicateReceipt) ||
		errors.Is(err, ErrReceiptRequired) ||
		errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrUnknownCourse) ||
		errors.Is(err, ErrAlreadySelected) ||
		errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrNotSelected) ||
		errors.Is(err, ErrContactRequired)
}

// IsStorageFailure returns true if the ledger store failed.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
