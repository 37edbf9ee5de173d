package enrollment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/enrollment-engine/enrollment"
)

func TestListAvailability(t *testing.T) {
	ledger, _ := newTestLedger(t)
	cat := testCatalog()
	enroll(t, ledger, alice, "R1", offering(t, cat, "4"))

	avail, err := enrollment.ListAvailability(context.Background(), ledger.State(), cat)
	require.NoError(t, err)
	require.Len(t, avail, len(cat.Offerings()))

	assert.Equal(t, "1", avail[0].Offering.ID)
	english := avail[3]
	assert.Equal(t, "4", english.Offering.ID)
	assert.Equal(t, 1, english.Occupied)
	assert.Equal(t, 0, english.Available)
	assert.True(t, english.Full())
	assert.False(t, avail[0].Full())
}

func TestBuildOccupancyReport(t *testing.T) {
	// GIVEN: Alice and Bob in Chemistry, Bob later updates his contact details
	// WHEN: Building the occupancy report
	// THEN: Chemistry has one group with both students and Bob's latest contact

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	cat := testCatalog()
	chem, hist := offering(t, cat, "5"), offering(t, cat, "6")
	enroll(t, ledger, alice, "R1", chem)

	bobChem := event(bob, chem, enrollment.StatusActive, "R2")
	bobChem.Contact = bobContact
	_, err := ledger.Append(ctx, bobChem)
	require.NoError(t, err)

	updated := enrollment.Contact{Phone: "555000000", Email: "bob@new.example.com"}
	bobHist := event(bob, hist, enrollment.StatusActive, "R3")
	bobHist.Contact = updated
	_, err = ledger.Append(ctx, bobHist)
	require.NoError(t, err)

	report, err := enrollment.BuildOccupancyReport(ctx, ledger.State(), cat)
	require.NoError(t, err)
	require.Len(t, report, len(cat.Offerings()))

	var chemSection enrollment.CourseOccupancy
	for _, c := range report {
		if c.Offering.ID == "5" {
			chemSection = c
		}
	}
	assert.Equal(t, 2, chemSection.Occupied)
	assert.Equal(t, 0, chemSection.Available)
	require.Len(t, chemSection.Groups, 1)
	group := chemSection.Groups[0]
	assert.Equal(t, enrollment.TimeKeys{"sat_12"}, group.TimeKeys)
	require.Len(t, group.Students, 2)
	assert.Equal(t, alice, group.Students[0].Student)
	assert.Equal(t, bob, group.Students[1].Student)
	assert.Equal(t, updated, group.Students[1].Contact)

	assert.Empty(t, report[0].Groups)
}

func TestBuildStudentsReport(t *testing.T) {
	// GIVEN: Carol (cancelled everything), Bob and Alice active
	// WHEN: Building the students report
	// THEN: Alice and Bob, sorted by name

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	cat := testCatalog()
	chem := offering(t, cat, "5")

	enroll(t, ledger, carol, "R0", chem)
	_, err := ledger.Append(ctx, event(carol, chem, enrollment.StatusCancelled, "R0"))
	require.NoError(t, err)
	enroll(t, ledger, bob, "R1", chem, offering(t, cat, "6"))
	enroll(t, ledger, alice, "R2", offering(t, cat, "1"))

	report, err := enrollment.BuildStudentsReport(ctx, ledger.State())
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, alice, report[0].Student)
	assert.Equal(t, bob, report[1].Student)
	assert.Equal(t, []string{"5", "6"}, courseIDs(report[1].Courses))
}
