package enrollment_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/enrollment/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	alice = enrollment.StudentKey{Name: "Alice", Surname: "Beridze", FatherName: "Giorgi"}
	bob   = enrollment.StudentKey{Name: "Bob", Surname: "Kapanadze", FatherName: "Levan"}
	carol = enrollment.StudentKey{Name: "Carol", Surname: "Lomidze", FatherName: "Nika"}

	aliceContact = enrollment.Contact{Phone: "555123456", Email: "alice@example.com"}
	bobContact   = enrollment.Contact{Phone: "555654321", Email: "bob@example.com"}
)

func testCatalog() *enrollment.StaticCatalog {
	return enrollment.NewStaticCatalog(
		enrollment.NewPriceTable(decimal.NewFromInt(100)),
		enrollment.Offering{ID: "1", Name: "Mathematics (Group 1)", TimeKeys: enrollment.TimeKeys{"mon_15", "thu_15"}, Capacity: 2},
		enrollment.Offering{ID: "2", Name: "Mathematics (Group 2)", TimeKeys: enrollment.TimeKeys{"tue_17", "fri_17"}, Capacity: 2},
		enrollment.Offering{ID: "3", Name: "Physics", TimeKeys: enrollment.TimeKeys{"mon_15"}, Capacity: 2},
		enrollment.Offering{ID: "4", Name: "English", TimeKeys: enrollment.TimeKeys{"wed_10"}, Capacity: 1},
		enrollment.Offering{ID: "5", Name: "Chemistry", TimeKeys: enrollment.TimeKeys{"sat_12"}, Capacity: 2},
		enrollment.Offering{ID: "6", Name: "History", TimeKeys: enrollment.TimeKeys{"sun_11"}, Capacity: 2},
	)
}

func newTestLedger(t *testing.T, opts ...enrollment.Option) (*enrollment.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := time.Date(2025, time.September, 1, 10, 0, 0, 0, time.UTC)
	opts = append([]enrollment.Option{enrollment.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})}, opts...)
	return enrollment.NewLedger(mem, opts...), mem
}

func event(student enrollment.StudentKey, off enrollment.Offering, status enrollment.Status, receipt string) enrollment.Event {
	return enrollment.Event{
		Student:    student,
		Contact:    aliceContact,
		CourseID:   off.ID,
		CourseName: off.Name,
		TimeKeys:   off.TimeKeys,
		Status:     status,
		ReceiptID:  receipt,
	}
}

func offering(t *testing.T, cat enrollment.Catalog, id string) enrollment.Offering {
	t.Helper()
	off, ok := cat.Offering(id)
	require.True(t, ok, "offering %s missing from test catalog", id)
	return off
}

// enroll commits Active events for student directly through the ledger.
func enroll(t *testing.T, l *enrollment.Ledger, student enrollment.StudentKey, receipt string, offs ...enrollment.Offering) []enrollment.Event {
	t.Helper()
	evs := make([]enrollment.Event, len(offs))
	for i, off := range offs {
		evs[i] = event(student, off, enrollment.StatusActive, receipt)
	}
	committed, err := l.Commit(context.Background(), evs)
	require.NoError(t, err)
	return committed
}

// occupancies reads the current occupancy of each course.
func occupancies(t *testing.T, l *enrollment.Ledger, ids ...string) map[string]int {
	t.Helper()
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		n, err := l.CurrentOccupancy(context.Background(), id)
		require.NoError(t, err)
		out[id] = n
	}
	return out
}

func courseIDs(evs []enrollment.Event) []string {
	ids := make([]string, len(evs))
	for i, ev := range evs {
		ids[i] = ev.CourseID
	}
	return ids
}

// =============================================================================
// FAILING STORE
// =============================================================================

var errDiskGone = errors.New("disk gone")

// flakyStore wraps a memory store and fails reads or writes on demand.
type flakyStore struct {
	*store.Memory

	mu         sync.Mutex
	failReads  bool
	failWrites bool
}

func (f *flakyStore) set(reads, writes bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads, f.failWrites = reads, writes
}

func (f *flakyStore) AppendBatch(ctx context.Context, evs []enrollment.Event) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errDiskGone
	}
	return f.Memory.AppendBatch(ctx, evs)
}

func (f *flakyStore) Scan(ctx context.Context) iter.Seq2[enrollment.Event, error] {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return func(yield func(enrollment.Event, error) bool) {
			yield(enrollment.Event{}, errDiskGone)
		}
	}
	return f.Memory.Scan(ctx)
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	commits    [][]enrollment.Event
	rejections []string
}

func (r *recordingObserver) Committed(evs []enrollment.Event) { r.commits = append(r.commits, evs) }
func (r *recordingObserver) Rejected(reason string)           { r.rejections = append(r.rejections, reason) }
