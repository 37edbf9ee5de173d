/*
edit.go - Edit workflow for an existing registration

PURPOSE:
  Lets a student cancel active courses and add new ones in one session.

BASELINE:
  The session opens with the student's current active enrollments. Members
  can be marked for cancellation (toggle) and new offerings can be added.
  Additions pass the same gates as registration, checked against the active
  set minus pending cancellations plus the other additions. Adding a course
  that is marked for cancellation unmarks it instead.

FINISH:
  - nothing changed: StateUnchanged, no payment, no contact, no writes
  - otherwise additions are re-resolved against a fresh read of the ledger,
    then the session moves to Paying

COMMIT (one atomic batch):
  1. a Cancelled event per marked course, reusing that enrollment's receipt
  2. an Active event per addition under a new receipt (required only when
     there are additions)
*/
package enrollment

import (
	"context"
	"fmt"
	"strings"
)

// ToggleResult tells what Toggle did.
type ToggleResult string

const (
	ToggleDroppedAddition ToggleResult = "dropped_addition"
	ToggleMarkedCancel    ToggleResult = "marked_cancel"
	ToggleUnmarkedCancel  ToggleResult = "unmarked_cancel"
)

// Edit drives changes to one student's active enrollments.
type Edit struct {
	ledger  *Ledger
	catalog Catalog
	state   State

	student StudentKey
	contact *Contact
	active  []Event
	cancel  map[string]bool
	added   []Offering

	committed []Event
}

// OpenEdit loads the student's active enrollments as the edit baseline.
func OpenEdit(ctx context.Context, ledger *Ledger, catalog Catalog, student StudentKey) (*Edit, error) {
	active, err := ledger.CurrentActiveEnrollments(ctx, student)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveEnrollments, student)
	}
	return &Edit{
		ledger:  ledger,
		catalog: catalog,
		state:   StateSelecting,
		student: student,
		active:  active,
		cancel:  make(map[string]bool),
	}, nil
}

func (e *Edit) State() State        { return e.state }
func (e *Edit) Student() StudentKey { return e.student }
func (e *Edit) Committed() []Event  { return e.committed }

// Active returns the baseline active enrollments.
func (e *Edit) Active() []Event { return e.active }

// Added returns the offerings to be added, in order.
func (e *Edit) Added() []Offering {
	out := make([]Offering, len(e.added))
	copy(out, e.added)
	return out
}

// Remaining returns active enrollments not marked for cancellation.
func (e *Edit) Remaining() []Event {
	var out []Event
	for _, ev := range e.active {
		if !e.cancel[ev.CourseID] {
			out = append(out, ev)
		}
	}
	return out
}

// Cancelled returns active enrollments marked for cancellation.
func (e *Edit) Cancelled() []Event {
	var out []Event
	for _, ev := range e.active {
		if e.cancel[ev.CourseID] {
			out = append(out, ev)
		}
	}
	return out
}

// IsEnrolled reports whether the course is active and not marked for cancellation.
func (e *Edit) IsEnrolled(courseID string) bool {
	for _, ev := range e.Remaining() {
		if ev.CourseID == courseID {
			return true
		}
	}
	return false
}

// IsAdded reports whether the course is pending addition.
func (e *Edit) IsAdded(courseID string) bool { return indexOf(e.added, courseID) >= 0 }

// Changed reports whether finishing would write anything.
func (e *Edit) Changed() bool { return len(e.added) > 0 || len(e.cancel) > 0 }

// Add queues a new offering. A course marked for cancellation is kept
// instead, so the student is never charged twice for the same seat.
func (e *Edit) Add(ctx context.Context, courseID string) (Offering, error) {
	if err := e.expect("add", StateSelecting); err != nil {
		return Offering{}, err
	}
	off, err := lookup(e.catalog, courseID)
	if err != nil {
		e.ledger.reject(err)
		return Offering{}, err
	}
	if e.cancel[off.ID] {
		delete(e.cancel, off.ID)
		return off, nil
	}
	if err := checkCapacity(ctx, e.ledger, off); err != nil {
		return Offering{}, err
	}
	if e.IsEnrolled(off.ID) {
		e.ledger.reject(ErrAlreadyEnrolled)
		return Offering{}, fmt.Errorf("%w: %q", ErrAlreadyEnrolled, off.Name)
	}
	if e.IsAdded(off.ID) {
		e.ledger.reject(ErrAlreadySelected)
		return Offering{}, fmt.Errorf("%w: %q", ErrAlreadySelected, off.Name)
	}
	if c := CheckConflict(e.Remaining(), off, e.added); c != nil {
		e.ledger.reject(c)
		return Offering{}, c
	}
	e.added = append(e.added, off)
	return off, nil
}

// Toggle drops a pending addition, or marks/unmarks an active course for cancellation.
func (e *Edit) Toggle(courseID string) (ToggleResult, error) {
	if err := e.expect("toggle", StateSelecting); err != nil {
		return "", err
	}
	courseID = strings.TrimSpace(courseID)
	if i := indexOf(e.added, courseID); i >= 0 {
		e.added = append(e.added[:i], e.added[i+1:]...)
		return ToggleDroppedAddition, nil
	}
	for _, ev := range e.active {
		if ev.CourseID != courseID {
			continue
		}
		if e.cancel[courseID] {
			delete(e.cancel, courseID)
			return ToggleUnmarkedCancel, nil
		}
		e.cancel[courseID] = true
		return ToggleMarkedCancel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotSelected, courseID)
}

// Finish ends editing. It returns false with StateUnchanged when nothing changed.
// Otherwise additions are re-resolved and the session moves to Paying;
// a *ResolveError aborts it.
func (e *Edit) Finish(ctx context.Context) (bool, error) {
	if err := e.expect("finish", StateSelecting); err != nil {
		return false, err
	}
	if !e.Changed() {
		e.state = StateUnchanged
		return false, nil
	}
	e.state = StateResolving

	fresh, err := e.ledger.CurrentActiveEnrollments(ctx, e.student)
	if err != nil {
		e.state = StateAborted
		return false, err
	}
	var history []Event
	for _, ev := range fresh {
		if !e.cancel[ev.CourseID] {
			history = append(history, ev)
		}
	}
	problems, err := resolve(ctx, e.ledger, history, e.added)
	if err != nil {
		e.state = StateAborted
		return false, err
	}
	if len(problems) > 0 {
		e.state = StateAborted
		resolveErr := &ResolveError{Problems: problems}
		e.ledger.reject(resolveErr)
		return false, resolveErr
	}
	e.state = StatePaying
	return true, nil
}

// NeedsReceipt reports whether committing requires a new receipt.
func (e *Edit) NeedsReceipt() bool { return len(e.added) > 0 }

// SetContact records the student's updated phone and email.
func (e *Edit) SetContact(c Contact) error {
	if err := e.expect("set contact", StatePaying); err != nil {
		return err
	}
	e.contact = &c
	return nil
}

// Invoice prices the additions; the tier counts remaining plus added subjects.
func (e *Edit) Invoice() (Invoice, error) {
	if err := e.expect("invoice", StatePaying); err != nil {
		return Invoice{}, err
	}
	return e.catalog.Prices().QuoteFor(len(e.Remaining()), len(e.added)), nil
}

// Commit writes cancellations and additions as one atomic batch.
// receiptID is ignored when there are no additions.
func (e *Edit) Commit(ctx context.Context, receiptID string) ([]Event, error) {
	if err := e.expect("commit", StatePaying); err != nil {
		return nil, err
	}
	if e.contact == nil {
		e.ledger.reject(ErrContactRequired)
		return nil, ErrContactRequired
	}
	if e.NeedsReceipt() {
		var err error
		receiptID, err = checkReceipt(ctx, e.ledger, receiptID)
		if err != nil {
			if IsStorageFailure(err) {
				e.state = StateAborted
			}
			return nil, err
		}
	}

	student := Student{Key: e.student, Contact: *e.contact}
	var evs []Event
	for _, ev := range e.Cancelled() {
		cancelled := ev
		cancelled.Contact = student.Contact
		cancelled.Status = StatusCancelled
		evs = append(evs, cancelled)
	}
	for _, off := range e.added {
		evs = append(evs, newEvent(student, off, StatusActive, receiptID))
	}

	committed, err := e.ledger.Commit(ctx, evs)
	if err != nil {
		if IsStorageFailure(err) {
			e.state = StateAborted
		}
		return nil, err
	}
	e.committed = committed
	e.state = StateCommitted
	return committed, nil
}

// Abort discards the session. Nothing is written.
func (e *Edit) Abort() error {
	if e.state.Terminal() {
		return &StateError{Op: "abort", State: e.state}
	}
	e.state = StateAborted
	return nil
}

func (e *Edit) expect(op string, want State) error {
	if e.state != want {
		return &StateError{Op: op, State: e.state}
	}
	return nil
}
