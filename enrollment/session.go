/*
session.go - Registration workflow (cart state machine)

STATES:
  Selecting -> Identifying -> Resolving -> Paying -> Committed
  Aborted is reachable from any non-terminal state on explicit exit, from
  Resolving when the cart conflicts with the student's history, and from
  Paying when the ledger store fails.

SELECTING:
  Courses are added to the cart one at a time. Each add is gated by:
    1. the id exists in the catalog
    2. capacity: occupancy < capacity
    3. the course is not already in the cart
    4. CheckConflict against the cart only (identity is not known yet)

RESOLVING (two-pass protocol):
  Once the student is identified, every cart item is checked again for
  capacity and against the student's confirmed history. Any problem aborts
  the whole session, nothing is written. All problems are reported at once.

PAYING:
  The receipt must be non-empty and must not pay for any currently active
  enrollment. A rejected receipt leaves the session in Paying so the
  operator can supply another one.

COMMITTED:
  One Active event per cart item, all sharing the receipt, written as a
  single atomic commit.
*/
package enrollment

import (
	"context"
	"fmt"
	"strings"
)

// State is a session state.
type State string

const (
	StateSelecting   State = "selecting"
	StateIdentifying State = "identifying"
	StateResolving   State = "resolving"
	StatePaying      State = "paying"
	StateCommitted   State = "committed"
	StateUnchanged   State = "unchanged"
	StateAborted     State = "aborted"
)

// Terminal reports whether no further operations are possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateUnchanged || s == StateAborted
}

// =============================================================================
// REGISTRATION SESSION
// =============================================================================

// Registration drives one student registration.
type Registration struct {
	ledger  *Ledger
	catalog Catalog
	state   State

	cart    []Offering
	student StudentKey
	contact *Contact
	history []Event

	committed []Event
}

// NewRegistration starts a registration in the Selecting state.
func NewRegistration(ledger *Ledger, catalog Catalog) *Registration {
	return &Registration{ledger: ledger, catalog: catalog, state: StateSelecting}
}

func (r *Registration) State() State        { return r.state }
func (r *Registration) Student() StudentKey { return r.student }
func (r *Registration) Committed() []Event  { return r.committed }

// Cart returns the selected offerings in selection order.
func (r *Registration) Cart() []Offering {
	out := make([]Offering, len(r.cart))
	copy(out, r.cart)
	return out
}

// History returns the student's active enrollments loaded at identification.
func (r *Registration) History() []Event { return r.history }

// InCart reports whether the course id is selected.
func (r *Registration) InCart(courseID string) bool {
	return indexOf(r.cart, courseID) >= 0
}

// Select adds a course to the cart.
func (r *Registration) Select(ctx context.Context, courseID string) (Offering, error) {
	if err := r.expect("select", StateSelecting); err != nil {
		return Offering{}, err
	}
	off, err := lookup(r.catalog, courseID)
	if err != nil {
		r.ledger.reject(err)
		return Offering{}, err
	}
	if err := checkCapacity(ctx, r.ledger, off); err != nil {
		return Offering{}, err
	}
	if r.InCart(off.ID) {
		r.ledger.reject(ErrAlreadySelected)
		return Offering{}, fmt.Errorf("%w: %q", ErrAlreadySelected, off.Name)
	}
	if c := CheckConflict(nil, off, r.cart); c != nil {
		r.ledger.reject(c)
		return Offering{}, c
	}
	r.cart = append(r.cart, off)
	return off, nil
}

// Remove drops a course from the cart.
func (r *Registration) Remove(courseID string) (Offering, error) {
	if err := r.expect("remove", StateSelecting); err != nil {
		return Offering{}, err
	}
	i := indexOf(r.cart, courseID)
	if i < 0 {
		return Offering{}, fmt.Errorf("%w: %q", ErrNotSelected, courseID)
	}
	off := r.cart[i]
	r.cart = append(r.cart[:i], r.cart[i+1:]...)
	return off, nil
}

// Finish ends selection. The cart must not be empty.
func (r *Registration) Finish() error {
	if err := r.expect("finish", StateSelecting); err != nil {
		return err
	}
	if len(r.cart) == 0 {
		r.ledger.reject(ErrEmptySelection)
		return ErrEmptySelection
	}
	r.state = StateIdentifying
	return nil
}

// Identify loads the student's history and re-checks the cart against it.
// A *ResolveError aborts the session.
func (r *Registration) Identify(ctx context.Context, student StudentKey) error {
	if err := r.expect("identify", StateIdentifying); err != nil {
		return err
	}
	history, err := r.ledger.CurrentActiveEnrollments(ctx, student)
	if err != nil {
		r.state = StateAborted
		return err
	}
	r.student = student
	r.history = history
	r.state = StateResolving

	problems, err := resolve(ctx, r.ledger, history, r.cart)
	if err != nil {
		r.state = StateAborted
		return err
	}
	if len(problems) > 0 {
		r.state = StateAborted
		resolveErr := &ResolveError{Problems: problems}
		r.ledger.reject(resolveErr)
		return resolveErr
	}
	r.state = StatePaying
	return nil
}

// SetContact records the student's phone and email.
func (r *Registration) SetContact(c Contact) error {
	if err := r.expect("set contact", StatePaying); err != nil {
		return err
	}
	r.contact = &c
	return nil
}

// Invoice prices the cart using the student's whole portfolio for the tier.
func (r *Registration) Invoice() (Invoice, error) {
	if err := r.expect("invoice", StatePaying); err != nil {
		return Invoice{}, err
	}
	return r.catalog.Prices().QuoteFor(len(r.history), len(r.cart)), nil
}

// Pay validates the receipt and commits the cart.
// Receipt rejections leave the session in Paying; storage failures abort it.
func (r *Registration) Pay(ctx context.Context, receiptID string) ([]Event, error) {
	if err := r.expect("pay", StatePaying); err != nil {
		return nil, err
	}
	if r.contact == nil {
		r.ledger.reject(ErrContactRequired)
		return nil, ErrContactRequired
	}
	receiptID, err := checkReceipt(ctx, r.ledger, receiptID)
	if err != nil {
		if IsStorageFailure(err) {
			r.state = StateAborted
		}
		return nil, err
	}

	evs := make([]Event, len(r.cart))
	for i, off := range r.cart {
		evs[i] = newEvent(Student{Key: r.student, Contact: *r.contact}, off, StatusActive, receiptID)
	}
	committed, err := r.ledger.Commit(ctx, evs)
	if err != nil {
		if IsStorageFailure(err) {
			r.state = StateAborted
		}
		return nil, err
	}
	r.committed = committed
	r.state = StateCommitted
	return committed, nil
}

// Abort discards the session. Nothing is written.
func (r *Registration) Abort() error {
	if r.state.Terminal() {
		return &StateError{Op: "abort", State: r.state}
	}
	r.state = StateAborted
	r.cart = nil
	return nil
}

func (r *Registration) expect(op string, want State) error {
	if r.state != want {
		return &StateError{Op: op, State: r.state}
	}
	return nil
}

// =============================================================================
// SHARED GATES
// =============================================================================

func lookup(c Catalog, courseID string) (Offering, error) {
	off, ok := c.Offering(strings.TrimSpace(courseID))
	if !ok {
		return Offering{}, fmt.Errorf("%w: %q", ErrUnknownCourse, courseID)
	}
	return off, nil
}

func checkCapacity(ctx context.Context, l *Ledger, off Offering) error {
	occupied, err := l.CurrentOccupancy(ctx, off.ID)
	if err != nil {
		return err
	}
	if occupied >= off.Capacity {
		capErr := &CapacityError{CourseID: off.ID, CourseName: off.Name, Capacity: off.Capacity, Occupied: occupied}
		l.reject(capErr)
		return capErr
	}
	return nil
}

// resolve re-checks capacity and history conflicts for every item.
// Rule violations are collected; a storage failure is returned as err.
func resolve(ctx context.Context, l *Ledger, history []Event, items []Offering) ([]error, error) {
	var problems []error
	for _, off := range items {
		occupied, err := l.CurrentOccupancy(ctx, off.ID)
		if err != nil {
			return nil, err
		}
		if occupied >= off.Capacity {
			problems = append(problems, &CapacityError{CourseID: off.ID, CourseName: off.Name, Capacity: off.Capacity, Occupied: occupied})
			continue
		}
		if c := CheckConflict(history, off, nil); c != nil {
			problems = append(problems, c)
		}
	}
	return problems, nil
}

func checkReceipt(ctx context.Context, l *Ledger, receiptID string) (string, error) {
	receiptID = strings.TrimSpace(receiptID)
	if receiptID == "" {
		l.reject(ErrReceiptRequired)
		return "", ErrReceiptRequired
	}
	active, err := l.IsReceiptActive(ctx, receiptID)
	if err != nil {
		return "", err
	}
	if active {
		recErr := &ReceiptError{ReceiptID: receiptID}
		l.reject(recErr)
		return "", recErr
	}
	return receiptID, nil
}

func newEvent(s Student, off Offering, status Status, receiptID string) Event {
	return Event{
		Student:    s.Key,
		Contact:    s.Contact,
		CourseID:   off.ID,
		CourseName: off.Name,
		TimeKeys:   off.TimeKeys,
		Status:     status,
		ReceiptID:  receiptID,
	}
}

func indexOf(offs []Offering, courseID string) int {
	for i, o := range offs {
		if o.ID == courseID {
			return i
		}
	}
	return -1
}
