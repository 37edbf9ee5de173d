/*
state.go - Current state derived by replaying the ledger

PURPOSE:
  Answers "what is this student enrolled in?" and "how full is this course?"
  without any stored state. Each query is a fresh full scan of the log.

OVERRIDE RULE:
  For a (student, course) pair the chronologically last event wins.
  [Active, Cancelled, Active] is Active. Later events replace earlier ones;
  they are never merged or summed.

WHY NO CACHE?
  A cached table would have to be kept in sync with every append. Replaying
  is cheap at tutoring-center scale and can never go stale.
*/
package enrollment

import (
	"context"
	"sort"
)

// =============================================================================
// RECONSTRUCTOR
// =============================================================================

// Reconstructor derives current enrollment state from a Store.
type Reconstructor struct {
	Store Store
}

func NewReconstructor(store Store) *Reconstructor {
	return &Reconstructor{Store: store}
}

type positioned struct {
	seq int
	ev  Event
}

// CurrentActiveEnrollments returns the student's currently active enrollments.
// Active records or overwrites the entry for its course; Cancelled removes it.
// Results are ordered by the log position of each surviving event.
func (r *Reconstructor) CurrentActiveEnrollments(ctx context.Context, student StudentKey) ([]Event, error) {
	active := make(map[string]positioned)
	seq := 0
	err := replay(ctx, r.Store, func(ev Event) {
		seq++
		if ev.Student != student {
			return
		}
		switch ev.Status {
		case StatusActive:
			active[ev.CourseID] = positioned{seq: seq, ev: ev}
		case StatusCancelled:
			delete(active, ev.CourseID)
		}
	})
	if err != nil {
		return nil, err
	}
	items := make([]positioned, 0, len(active))
	for _, p := range active {
		items = append(items, p)
	}
	return inLogOrder(items), nil
}

// CurrentOccupancy counts distinct students whose last event for the course is Active.
func (r *Reconstructor) CurrentOccupancy(ctx context.Context, courseID string) (int, error) {
	last := make(map[StudentKey]Status)
	err := replay(ctx, r.Store, func(ev Event) {
		if ev.CourseID == courseID {
			last[ev.Student] = ev.Status
		}
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, status := range last {
		if status == StatusActive {
			n++
		}
	}
	return n, nil
}

// LatestContact returns the contact details of the student's last event of
// any status. ok is false when the student has no events.
func (r *Reconstructor) LatestContact(ctx context.Context, student StudentKey) (c Contact, ok bool, err error) {
	err = replay(ctx, r.Store, func(ev Event) {
		if ev.Student == student {
			c, ok = ev.Contact, true
		}
	})
	if err != nil {
		return Contact{}, false, err
	}
	return c, ok, nil
}

// OccupancyByCourse computes occupancy for every course in one scan.
func (r *Reconstructor) OccupancyByCourse(ctx context.Context) (map[string]int, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, ev := range snap.Active() {
		counts[ev.CourseID]++
	}
	return counts, nil
}

// =============================================================================
// SNAPSHOT - Last event per (student, course), for ledger-wide questions
// =============================================================================

// Snapshot is the folded state of the whole ledger at the time of a scan.
type Snapshot struct {
	latest  map[enrollmentKey]positioned
	contact map[StudentKey]Contact
}

// Snapshot folds the whole log into the latest event per (student, course)
// and the latest contact details per student.
func (r *Reconstructor) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		latest:  make(map[enrollmentKey]positioned),
		contact: make(map[StudentKey]Contact),
	}
	seq := 0
	err := replay(ctx, r.Store, func(ev Event) {
		seq++
		snap.latest[keyOf(ev)] = positioned{seq: seq, ev: ev}
		snap.contact[ev.Student] = ev.Contact
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Active returns every currently active enrollment, in log order.
func (s *Snapshot) Active() []Event {
	active := make([]positioned, 0, len(s.latest))
	for _, p := range s.latest {
		if p.ev.IsActive() {
			active = append(active, p)
		}
	}
	return inLogOrder(active)
}

// ReceiptActive reports whether any currently active enrollment carries the receipt.
func (s *Snapshot) ReceiptActive(receiptID string) bool {
	for _, p := range s.latest {
		if p.ev.IsActive() && p.ev.ReceiptID == receiptID {
			return true
		}
	}
	return false
}

// Contact returns the last recorded contact details of the student.
func (s *Snapshot) Contact(student StudentKey) (Contact, bool) {
	c, ok := s.contact[student]
	return c, ok
}

func inLogOrder(items []positioned) []Event {
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]Event, len(items))
	for i, p := range items {
		out[i] = p.ev
	}
	return out
}
