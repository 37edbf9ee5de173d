package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/enrollment-engine/catalog"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/enrollment/store"
	"github.com/warp/enrollment-engine/identity"
)

func init() {
	color.NoColor = true
}

// =============================================================================
// TEST SETUP
// =============================================================================

var anaKey = enrollment.StudentKey{Name: "Ana", Surname: "Gelashvili", FatherName: "Irakli"}

func newTestConsole(t *testing.T, ledger *enrollment.Ledger, script ...string) (*Console, *bytes.Buffer) {
	t.Helper()
	cat, err := catalog.NewFactory().Default()
	require.NoError(t, err)
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(script, "\n") + "\n")
	return New(ledger, cat, identity.New(identity.ScriptAny), in, &out, nil), &out
}

func newLedger() *enrollment.Ledger {
	return enrollment.NewLedger(store.NewMemory())
}

func identityLines() []string {
	return []string{"Ana", "Gelashvili", "Irakli"}
}

func contactLines() []string {
	return []string{"599123456", "ana@example.com"}
}

func script(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// =============================================================================
// REGISTRATION TESTS
// =============================================================================

func TestConsole_Register(t *testing.T) {
	// GIVEN: An operator registering Mathematics G1 and English G1
	// WHEN: Selecting, retrying a duplicate, identifying and paying
	// THEN: Both courses are saved under R1

	ledger := newLedger()
	console, out := newTestConsole(t, ledger, script(
		[]string{"1", "1", "1", "99", "5", "F"},
		identityLines(),
		contactLines(),
		[]string{"R1", "0"},
	)...)

	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Added Mathematics (Group 1)")
	assert.Contains(t, text, "course is already selected")
	assert.Contains(t, text, "unknown course id")
	assert.Contains(t, text, "Amount due: 190.00")
	assert.Contains(t, text, "Registration saved: 2 course(s)")
	assert.Contains(t, text, "Goodbye.")

	active, err := ledger.CurrentActiveEnrollments(context.Background(), anaKey)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestConsole_RegisterRetriesBadInput(t *testing.T) {
	// GIVEN: R1 is already in use
	// WHEN: The operator types an invalid name, phone and the used receipt first
	// THEN: Each prompt repeats until valid input, then the registration is saved

	ledger := newLedger()
	first, _ := newTestConsole(t, ledger, script(
		[]string{"1", "1", "F"}, identityLines(), contactLines(), []string{"R1", "0"},
	)...)
	require.NoError(t, first.Run(context.Background()))

	console, out := newTestConsole(t, ledger, script(
		[]string{"1", "5", "F"},
		[]string{"B0b", "Bob", "Kapanadze", "Levan"},
		[]string{"123", "599000000", "bob@example.com"},
		[]string{"R1", "R2", "0"},
	)...)
	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "name must contain letters only")
	assert.Contains(t, text, "phone number must consist of 9 digits")
	assert.Contains(t, text, `receipt "R1" is already used`)
	assert.Contains(t, text, "Registration saved: 1 course(s)")
}

func TestConsole_RegisterExitWritesNothing(t *testing.T) {
	ledger := newLedger()
	console, out := newTestConsole(t, ledger, "1", "1", "X", "0")

	require.NoError(t, console.Run(context.Background()))
	assert.Contains(t, out.String(), "Registration cancelled, nothing saved.")

	n, err := ledger.CurrentOccupancy(context.Background(), "1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsole_RegisterConflictWithHistory(t *testing.T) {
	ledger := newLedger()
	first, _ := newTestConsole(t, ledger, script(
		[]string{"1", "1", "F"}, identityLines(), contactLines(), []string{"R1", "0"},
	)...)
	require.NoError(t, first.Run(context.Background()))

	console, out := newTestConsole(t, ledger, script(
		[]string{"1", "2", "F"}, identityLines(), []string{"0"},
	)...)
	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "conflicts with the student's current enrollments")
	assert.Contains(t, text, `subject "Mathematics" is already taken`)
	assert.Contains(t, text, "Session cancelled, nothing saved.")
}

func TestConsole_EmptyCartCannotFinish(t *testing.T) {
	console, out := newTestConsole(t, newLedger(), "1", "F", "X", "0")
	require.NoError(t, console.Run(context.Background()))
	assert.Contains(t, out.String(), "cart is empty")
}

// =============================================================================
// EDIT TESTS
// =============================================================================

func TestConsole_EditCancelAndAdd(t *testing.T) {
	// GIVEN: Ana holds Mathematics G1 and English G1
	// WHEN: The operator cancels Mathematics G1 and adds Mathematics G2 with R2
	// THEN: The change is saved as two records

	ledger := newLedger()
	first, _ := newTestConsole(t, ledger, script(
		[]string{"1", "1", "5", "F"}, identityLines(), contactLines(), []string{"R1", "0"},
	)...)
	require.NoError(t, first.Run(context.Background()))

	console, out := newTestConsole(t, ledger, script(
		[]string{"2"}, identityLines(),
		[]string{"2", "del 1", "2", "F"},
		contactLines(),
		[]string{"R1", "R2", "0"},
	)...)
	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, `subject "Mathematics" is already taken`)
	assert.Contains(t, text, "Course 1 marked for cancellation")
	assert.Contains(t, text, "Will add Mathematics (Group 2)")
	assert.Contains(t, text, "[to cancel]")
	assert.Contains(t, text, "Changes saved: 2 record(s) written.")

	active, err := ledger.CurrentActiveEnrollments(context.Background(), anaKey)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "2", active[1].CourseID)
	assert.Equal(t, "R2", active[1].ReceiptID)
}

func TestConsole_EditNoChanges(t *testing.T) {
	ledger := newLedger()
	first, _ := newTestConsole(t, ledger, script(
		[]string{"1", "1", "F"}, identityLines(), contactLines(), []string{"R1", "0"},
	)...)
	require.NoError(t, first.Run(context.Background()))

	console, out := newTestConsole(t, ledger, script(
		[]string{"2"}, identityLines(), []string{"del 1", "del 1", "F", "0"},
	)...)
	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Course 1 restored")
	assert.Contains(t, text, "No changes made.")
}

func TestConsole_EditUnknownStudent(t *testing.T) {
	console, out := newTestConsole(t, newLedger(), script([]string{"2"}, identityLines(), []string{"0"})...)
	require.NoError(t, console.Run(context.Background()))
	assert.Contains(t, out.String(), "student has no active enrollments")
}

// =============================================================================
// REPORT TESTS
// =============================================================================

func TestConsole_Reports(t *testing.T) {
	ledger := newLedger()
	first, _ := newTestConsole(t, ledger, script(
		[]string{"1", "1", "F"}, identityLines(), contactLines(), []string{"R1", "0"},
	)...)
	require.NoError(t, first.Run(context.Background()))

	console, out := newTestConsole(t, ledger, "3", "1", "2", "7", "0", "0")
	require.NoError(t, console.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "COURSE OCCUPANCY REPORT")
	assert.Contains(t, text, "occupied 1/12")
	assert.Contains(t, text, "ACTIVE STUDENTS REPORT")
	assert.Contains(t, text, "Mathematics (Group 1) [R1]")
	assert.Contains(t, text, "Students: 1")
	assert.Contains(t, text, "Unknown option.")
}

func TestConsole_EndOfInputExits(t *testing.T) {
	console, _ := newTestConsole(t, newLedger(), "1", "1")
	assert.NoError(t, console.Run(context.Background()))
}

func TestParseCommand(t *testing.T) {
	cmd, arg := parseCommand(" DEL  7 ")
	assert.Equal(t, cmdDelete, cmd)
	assert.Equal(t, "7", arg)

	cmd, _ = parseCommand("f")
	assert.Equal(t, cmdFinish, cmd)
	cmd, _ = parseCommand("X")
	assert.Equal(t, cmdExit, cmd)
	cmd, arg = parseCommand("11")
	assert.Equal(t, cmdSelect, cmd)
	assert.Equal(t, "11", arg)
}

func TestPrintReports(t *testing.T) {
	ledger := newLedger()
	cat, err := catalog.NewFactory().Default()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintStudents(context.Background(), &buf, ledger))
	assert.Contains(t, buf.String(), "No active students.")

	buf.Reset()
	require.NoError(t, PrintOccupancy(context.Background(), &buf, ledger, cat))
	assert.Contains(t, buf.String(), "no active students")
}
