package enrollment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/enrollment/store"
)

func newRegistration(t *testing.T) (*enrollment.Registration, *enrollment.Ledger, *store.Memory) {
	t.Helper()
	ledger, mem := newTestLedger(t)
	return enrollment.NewRegistration(ledger, testCatalog()), ledger, mem
}

// =============================================================================
// SELECTION TESTS
// =============================================================================

func TestRegistration_HappyPath(t *testing.T) {
	// GIVEN: A new student selecting Math G1 and Chemistry
	// WHEN: Identifying, giving contact details and paying with R1
	// THEN: Two Active events sharing R1 are committed in one batch

	reg, ledger, mem := newRegistration(t)
	ctx := context.Background()
	before := occupancies(t, ledger, "1", "5")

	_, err := reg.Select(ctx, "1")
	require.NoError(t, err)
	_, err = reg.Select(ctx, " 5 ")
	require.NoError(t, err)
	require.NoError(t, reg.Finish())
	assert.Equal(t, enrollment.StateIdentifying, reg.State())

	require.NoError(t, reg.Identify(ctx, alice))
	assert.Equal(t, enrollment.StatePaying, reg.State())
	require.NoError(t, reg.SetContact(aliceContact))

	inv, err := reg.Invoice()
	require.NoError(t, err)
	assert.Equal(t, 5, inv.DiscountPercent)
	assert.Equal(t, "190.00", inv.Total.StringFixed(2))

	evs, err := reg.Pay(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, enrollment.StateCommitted, reg.State())
	require.Len(t, evs, 2)
	assert.Equal(t, []string{"1", "5"}, courseIDs(evs))
	for _, ev := range evs {
		assert.Equal(t, "R1", ev.ReceiptID)
		assert.Equal(t, aliceContact, ev.Contact)
		assert.Equal(t, enrollment.StatusActive, ev.Status)
	}
	assert.Equal(t, 2, mem.Len())

	active, err := ledger.CurrentActiveEnrollments(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	after := occupancies(t, ledger, "1", "5")
	for id, n := range before {
		assert.Equal(t, n+1, after[id], "course %s", id)
	}
}

func TestRegistration_SelectRejections(t *testing.T) {
	reg, _, _ := newRegistration(t)
	ctx := context.Background()

	_, err := reg.Select(ctx, "1")
	require.NoError(t, err)

	_, err = reg.Select(ctx, "99")
	assert.ErrorIs(t, err, enrollment.ErrUnknownCourse)

	_, err = reg.Select(ctx, "1")
	assert.ErrorIs(t, err, enrollment.ErrAlreadySelected)

	_, err = reg.Select(ctx, "3")
	assert.ErrorIs(t, err, enrollment.ErrTimeConflict)

	_, err = reg.Select(ctx, "2")
	assert.ErrorIs(t, err, enrollment.ErrDuplicateSubject)

	assert.Equal(t, enrollment.StateSelecting, reg.State())
	assert.Len(t, reg.Cart(), 1)
}

func TestRegistration_FullCourseRejected(t *testing.T) {
	// GIVEN: English has capacity 1 and Bob holds the seat
	// WHEN: Selecting English
	// THEN: CapacityError

	reg, ledger, _ := newRegistration(t)
	enroll(t, ledger, bob, "R9", offering(t, testCatalog(), "4"))

	_, err := reg.Select(context.Background(), "4")
	var capErr *enrollment.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 1, capErr.Occupied)
	assert.Equal(t, 1, capErr.Capacity)
}

func TestRegistration_RemoveAndEmptyFinish(t *testing.T) {
	reg, _, _ := newRegistration(t)
	ctx := context.Background()

	_, err := reg.Select(ctx, "5")
	require.NoError(t, err)
	off, err := reg.Remove("5")
	require.NoError(t, err)
	assert.Equal(t, "Chemistry", off.Name)

	_, err = reg.Remove("5")
	assert.ErrorIs(t, err, enrollment.ErrNotSelected)

	err = reg.Finish()
	assert.ErrorIs(t, err, enrollment.ErrEmptySelection)
	assert.Equal(t, enrollment.StateSelecting, reg.State())
}

// =============================================================================
// RESOLUTION TESTS
// =============================================================================

func TestRegistration_ResolveAbortsOnHistoryConflict(t *testing.T) {
	// GIVEN: Alice already holds Math G1 (mon_15) and Chemistry
	// WHEN: She selects Physics (mon_15) and Math G2, then identifies
	// THEN: The session aborts reporting both problems, nothing is written

	reg, ledger, mem := newRegistration(t)
	ctx := context.Background()
	cat := testCatalog()
	enroll(t, ledger, alice, "R1", offering(t, cat, "1"), offering(t, cat, "5"))

	_, err := reg.Select(ctx, "3")
	require.NoError(t, err)
	_, err = reg.Select(ctx, "6")
	require.NoError(t, err)
	_, err = reg.Select(ctx, "2")
	require.NoError(t, err)
	require.NoError(t, reg.Finish())

	err = reg.Identify(ctx, alice)

	var resolveErr *enrollment.ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Len(t, resolveErr.Problems, 2)
	assert.ErrorIs(t, err, enrollment.ErrTimeConflict)
	assert.ErrorIs(t, err, enrollment.ErrDuplicateSubject)
	assert.Equal(t, enrollment.StateAborted, reg.State())
	assert.Equal(t, 2, mem.Len())

	_, err = reg.Pay(ctx, "R2")
	assert.ErrorIs(t, err, enrollment.ErrInvalidState)
}

func TestRegistration_ResolveRechecksCapacity(t *testing.T) {
	// GIVEN: English (capacity 1) was free when selected
	// WHEN: Bob takes the seat before Alice identifies
	// THEN: Identification aborts with a capacity problem

	reg, ledger, _ := newRegistration(t)
	ctx := context.Background()

	_, err := reg.Select(ctx, "4")
	require.NoError(t, err)
	require.NoError(t, reg.Finish())
	enroll(t, ledger, bob, "R9", offering(t, testCatalog(), "4"))

	err = reg.Identify(ctx, alice)
	assert.ErrorIs(t, err, enrollment.ErrCapacityExceeded)
	assert.Equal(t, enrollment.StateAborted, reg.State())
}

func TestRegistration_InvoiceCountsHistory(t *testing.T) {
	// GIVEN: Alice holds 2 subjects
	// WHEN: She registers 1 more at base 100
	// THEN: Tier 3 (10%) applies to the one new subject

	reg, ledger, _ := newRegistration(t)
	ctx := context.Background()
	cat := testCatalog()
	enroll(t, ledger, alice, "R1", offering(t, cat, "1"), offering(t, cat, "5"))

	_, err := reg.Select(ctx, "6")
	require.NoError(t, err)
	require.NoError(t, reg.Finish())
	require.NoError(t, reg.Identify(ctx, alice))

	inv, err := reg.Invoice()
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Prior)
	assert.Equal(t, 10, inv.DiscountPercent)
	assert.Equal(t, "90.00", inv.Total.StringFixed(2))
	assert.Len(t, reg.History(), 2)
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestRegistration_PayRejectionsKeepSession(t *testing.T) {
	// GIVEN: R1 pays for Bob's active enrollment
	// WHEN: Alice pays without contact, with an empty receipt, then with R1
	// THEN: Each is rejected and the session stays in Paying; R2 then succeeds

	reg, ledger, _ := newRegistration(t)
	ctx := context.Background()
	enroll(t, ledger, bob, "R1", offering(t, testCatalog(), "6"))

	_, err := reg.Select(ctx, "5")
	require.NoError(t, err)
	require.NoError(t, reg.Finish())
	require.NoError(t, reg.Identify(ctx, alice))

	_, err = reg.Pay(ctx, "R2")
	assert.ErrorIs(t, err, enrollment.ErrContactRequired)

	require.NoError(t, reg.SetContact(aliceContact))

	_, err = reg.Pay(ctx, "   ")
	assert.ErrorIs(t, err, enrollment.ErrReceiptRequired)

	_, err = reg.Pay(ctx, "R1")
	assert.ErrorIs(t, err, enrollment.ErrDuplicateReceipt)
	assert.Equal(t, enrollment.StatePaying, reg.State())

	evs, err := reg.Pay(ctx, " R2 ")
	require.NoError(t, err)
	assert.Equal(t, "R2", evs[0].ReceiptID)
	assert.Equal(t, evs, reg.Committed())
}

func TestRegistration_StorageFailureAborts(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory()}
	ledger := enrollment.NewLedger(fs)
	reg := enrollment.NewRegistration(ledger, testCatalog())
	ctx := context.Background()

	_, err := reg.Select(ctx, "5")
	require.NoError(t, err)
	require.NoError(t, reg.Finish())
	require.NoError(t, reg.Identify(ctx, alice))
	require.NoError(t, reg.SetContact(aliceContact))

	fs.set(false, true)
	_, err = reg.Pay(ctx, "R1")
	assert.True(t, enrollment.IsStorageFailure(err))
	assert.Equal(t, enrollment.StateAborted, reg.State())
	assert.Zero(t, fs.Len())
}

func TestRegistration_Abort(t *testing.T) {
	reg, _, mem := newRegistration(t)
	ctx := context.Background()

	_, err := reg.Select(ctx, "5")
	require.NoError(t, err)
	require.NoError(t, reg.Abort())
	assert.Equal(t, enrollment.StateAborted, reg.State())
	assert.Empty(t, reg.Cart())
	assert.Zero(t, mem.Len())

	assert.ErrorIs(t, reg.Abort(), enrollment.ErrInvalidState)
	_, err = reg.Select(ctx, "6")
	assert.ErrorIs(t, err, enrollment.ErrInvalidState)
}
