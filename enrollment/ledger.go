/*
ledger.go - Append-only enrollment ledger

PURPOSE:
  The Ledger is the only way events reach a Store. It stamps events with
  ids, commit ids and timestamps, enforces the receipt invariant, and writes
  every commit as one atomic batch.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: once written, an event is never modified.
  3. RECEIPT UNIQUENESS: an Active event may share its receipt with the other
     events of its own commit, but never with an enrollment that is
     currently Active when the commit starts.
  4. ATOMIC COMMITS: all events of a commit are written together or not at all.

CORRECTIONS:
  A cancellation is an appended Cancelled event that reuses the receipt of
  the enrollment it cancels. Both events stay in the log.

EXAMPLE FLOW:
  1. Register Math + Physics with receipt R1: [Active Math R1, Active Physics R1]
  2. Cancel Physics: [Cancelled Physics R1]
  3. R1 is still active (Math), so a new commit cannot use R1
  4. Cancel Math: R1 is free again

SEE ALSO:
  - store.go: Low-level persistence interface
  - state.go: Replay folds used for receipt checks
*/
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// OBSERVER - Hook for metrics
// =============================================================================

// Observer is notified about commits and rejections.
type Observer interface {
	Committed(evs []Event)
	Rejected(reason string)
}

type nopObserver struct{}

func (nopObserver) Committed([]Event) {}
func (nopObserver) Rejected(string)   {}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger wraps a Store with enrollment invariants.
type Ledger struct {
	store    Store
	state    *Reconstructor
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(led *Ledger) {
		if l != nil {
			led.logger = l
		}
	}
}

// WithObserver registers a commit/rejection observer.
func WithObserver(o Observer) Option {
	return func(led *Ledger) {
		if o != nil {
			led.observer = o
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(led *Ledger) {
		if now != nil {
			led.now = now
		}
	}
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		state:    NewReconstructor(store),
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the reconstructor reading this ledger's store.
func (l *Ledger) State() *Reconstructor { return l.state }

// Append writes a single event as its own commit.
func (l *Ledger) Append(ctx context.Context, ev Event) (Event, error) {
	evs, err := l.Commit(ctx, []Event{ev})
	if err != nil {
		return Event{}, err
	}
	return evs[0], nil
}

// Commit writes evs as one atomic batch and returns the stamped events.
// Each event gets an id, the shared commit id and size, and a timestamp.
func (l *Ledger) Commit(ctx context.Context, evs []Event) ([]Event, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	for _, ev := range evs {
		if err := validateEvent(ev); err != nil {
			return nil, err
		}
	}

	if err := l.checkReceipts(ctx, evs); err != nil {
		return nil, err
	}

	commitID := l.newID()
	at := l.now().UTC().Truncate(time.Second)
	stamped := make([]Event, len(evs))
	for i, ev := range evs {
		ev.ID = l.newID()
		ev.CommitID = commitID
		ev.CommitSize = len(evs)
		ev.Timestamp = at
		stamped[i] = ev
	}

	if err := l.store.AppendBatch(ctx, stamped); err != nil {
		l.logger.Error("ledger commit failed",
			zap.String("commit_id", commitID),
			zap.Int("events", len(stamped)),
			zap.Error(err))
		if !errors.Is(err, ErrStorageUnavailable) {
			err = NewStorageError("append batch", err)
		}
		return nil, err
	}

	l.logger.Info("ledger commit written",
		zap.String("commit_id", commitID),
		zap.Int("events", len(stamped)),
		zap.String("student", stamped[0].Student.String()))
	l.observer.Committed(stamped)
	return stamped, nil
}

// checkReceipts rejects Active events whose receipt is already active.
func (l *Ledger) checkReceipts(ctx context.Context, evs []Event) error {
	var receipts []string
	seen := make(map[string]bool)
	for _, ev := range evs {
		if ev.IsActive() && !seen[ev.ReceiptID] {
			seen[ev.ReceiptID] = true
			receipts = append(receipts, ev.ReceiptID)
		}
	}
	if len(receipts) == 0 {
		return nil
	}
	snap, err := l.state.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, r := range receipts {
		if snap.ReceiptActive(r) {
			l.reject(ErrDuplicateReceipt)
			return &ReceiptError{ReceiptID: r}
		}
	}
	return nil
}

// Scan yields every event in write order.
func (l *Ledger) Scan(ctx context.Context) iter.Seq2[Event, error] {
	return l.store.Scan(ctx)
}

// IsReceiptActive reports whether some event carrying receiptID is the
// current status of its (student, course) pair and that status is Active.
func (l *Ledger) IsReceiptActive(ctx context.Context, receiptID string) (bool, error) {
	snap, err := l.state.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.ReceiptActive(receiptID), nil
}

// CurrentActiveEnrollments delegates to the reconstructor.
func (l *Ledger) CurrentActiveEnrollments(ctx context.Context, student StudentKey) ([]Event, error) {
	return l.state.CurrentActiveEnrollments(ctx, student)
}

// CurrentOccupancy delegates to the reconstructor.
func (l *Ledger) CurrentOccupancy(ctx context.Context, courseID string) (int, error) {
	return l.state.CurrentOccupancy(ctx, courseID)
}

// LatestContact delegates to the reconstructor.
func (l *Ledger) LatestContact(ctx context.Context, student StudentKey) (Contact, bool, error) {
	return l.state.LatestContact(ctx, student)
}

// reject reports a rejection to the observer and debug log.
func (l *Ledger) reject(err error) {
	reason := RejectionReason(err)
	l.logger.Debug("enrollment rejected", zap.String("reason", reason), zap.Error(err))
	l.observer.Rejected(reason)
}

func validateEvent(ev Event) error {
	switch {
	case ev.Student.IsZero():
		return fmt.Errorf("%w: missing student identity", ErrInvalidEvent)
	case ev.CourseID == "":
		return fmt.Errorf("%w: missing course id", ErrInvalidEvent)
	case !ev.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, ev.Status)
	case ev.IsActive() && ev.ReceiptID == "":
		return ErrReceiptRequired
	}
	return nil
}

// RejectionReason maps an error to a short, stable label for metrics and logs.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrTimeConflict):
		return "time_conflict"
	case errors.Is(err, ErrDuplicateSubject):
		return "duplicate_subject"
	case errors.Is(err, ErrDuplicateReceipt):
		return "duplicate_receipt"
	case errors.Is(err, ErrReceiptRequired):
		return "receipt_required"
	case errors.Is(err, ErrEmptySelection):
		return "empty_selection"
	case errors.Is(err, ErrUnknownCourse):
		return "unknown_course"
	case errors.Is(err, ErrAlreadySelected):
		return "already_selected"
	case errors.Is(err, ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, ErrContactRequired):
		return "contact_required"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "other"
	}
}
