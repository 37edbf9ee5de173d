package csvlog_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/store/csvlog"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const headerLine = "name,surname,father_name,phone,email,course_id,course_name,time_keys,status,receipt_id,timestamp,event_id,commit_id,commit_size\n"

func tempPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "registry", "students_registry.csv")
}

func sampleEvent(id, course, commit string, size int) enrollment.Event {
	return enrollment.Event{
		ID:         id,
		Student:    enrollment.StudentKey{Name: "Luka", Surname: "Chkheidze", FatherName: "Zurab"},
		Contact:    enrollment.Contact{Phone: "577000111", Email: "luka@example.com"},
		CourseID:   course,
		CourseName: "Mathematics (Group 1)",
		TimeKeys:   enrollment.TimeKeys{"mon_15", "thu_15"},
		Status:     enrollment.StatusActive,
		ReceiptID:  "R-1",
		Timestamp:  time.Date(2025, time.October, 2, 9, 30, 0, 0, time.UTC),
		CommitID:   commit,
		CommitSize: size,
	}
}

func scanAll(t *testing.T, s enrollment.Store) []enrollment.Event {
	t.Helper()
	var out []enrollment.Event
	for ev, err := range s.Scan(context.Background()) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

// =============================================================================
// FILE LIFECYCLE TESTS
// =============================================================================

func TestNew_CreatesFileWithHeader(t *testing.T) {
	path := tempPath(t)

	log, err := csvlog.New(path)
	require.NoError(t, err)
	assert.Equal(t, path, log.Path())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))
	assert.Empty(t, scanAll(t, log))
}

func TestNew_KeepsExistingRows(t *testing.T) {
	path := tempPath(t)
	log, err := csvlog.New(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(context.Background(), sampleEvent("e1", "1", "c1", 1)))

	reopened, err := csvlog.New(path)
	require.NoError(t, err)
	assert.Len(t, scanAll(t, reopened), 1)
}

func TestLog_RoundTrip(t *testing.T) {
	// GIVEN: A commit of two events with names containing commas and quotes
	// WHEN: Appending and scanning
	// THEN: Every field survives the CSV encoding

	log, err := csvlog.New(tempPath(t))
	require.NoError(t, err)

	first := sampleEvent("e1", "1", "c1", 2)
	second := sampleEvent("e2", "5", "c1", 2)
	second.CourseName = `Chemistry, "lab" group`
	second.Status = enrollment.StatusCancelled

	require.NoError(t, log.AppendBatch(context.Background(), []enrollment.Event{first, second}))

	got := scanAll(t, log)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0])
	assert.Equal(t, second, got[1])
}

// =============================================================================
// CRASH RECOVERY TESTS
// =============================================================================

func TestLog_SkipsTornCommit(t *testing.T) {
	// GIVEN: A complete commit followed by a commit of size 3 with only 2 rows on disk
	// WHEN: Scanning
	// THEN: Only the complete commit is yielded and the torn one is logged

	core, logs := observer.New(zap.WarnLevel)
	path := tempPath(t)
	log, err := csvlog.New(path, csvlog.WithLogger(zap.New(core)))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, sampleEvent("e1", "1", "c1", 1)))
	require.NoError(t, log.AppendBatch(ctx, []enrollment.Event{
		sampleEvent("e2", "2", "c2", 3),
		sampleEvent("e3", "3", "c2", 3),
	}))

	got := scanAll(t, log)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)

	entries := logs.FilterMessage("skipping incomplete commit").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "c2", entries[0].ContextMap()["commit_id"])
}

func TestLog_TornCommitInTheMiddle(t *testing.T) {
	log, err := csvlog.New(tempPath(t))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, sampleEvent("e1", "1", "c1", 2)))
	require.NoError(t, log.Append(ctx, sampleEvent("e2", "2", "c2", 1)))

	got := scanAll(t, log)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].ID)
}

func TestNew_RepairsPartialLine(t *testing.T) {
	// GIVEN: A registry whose last row was cut mid-write
	// WHEN: Opening it
	// THEN: The partial row is removed and new rows append cleanly

	path := tempPath(t)
	log, err := csvlog.New(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(context.Background(), sampleEvent("e1", "1", "c1", 1)))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("Luka,Chkheidze,Zur")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	repaired, err := csvlog.New(path)
	require.NoError(t, err)
	require.NoError(t, repaired.Append(context.Background(), sampleEvent("e2", "2", "c2", 1)))

	got := scanAll(t, repaired)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[1].ID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Zur\n")
}

func TestNew_RepairsTruncatedHeader(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("name,surn"), 0o644))

	_, err := csvlog.New(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))
}

// =============================================================================
// COMPATIBILITY TESTS
// =============================================================================

func TestLog_ReadsLegacyLayout(t *testing.T) {
	// GIVEN: A registry written before the event/commit columns existed
	// WHEN: Scanning
	// THEN: Each row is its own commit

	path := tempPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	legacy := strings.Join([]string{
		"name,surname,father_name,phone,email,course_id,course_name,time_keys,status,receipt_id,timestamp",
		"Mariam,Kvaratskhelia,Tamaz,599123456,mariam@example.com,3,English (Group 1),wed_10,Active,R-5,2024-09-01 10:00:00",
		"Mariam,Kvaratskhelia,Tamaz,599123456,mariam@example.com,3,English (Group 1),wed_10,Cancelled,R-5,2024-10-01 10:00:00",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	log, err := csvlog.New(path)
	require.NoError(t, err)

	got := scanAll(t, log)
	require.Len(t, got, 2)
	assert.Equal(t, enrollment.StatusCancelled, got[1].Status)
	assert.Equal(t, 1, got[0].CommitSize)
	assert.Equal(t, time.Date(2024, time.September, 1, 10, 0, 0, 0, time.UTC), got[0].Timestamp)

	ledger := enrollment.NewLedger(log)
	active, err := ledger.CurrentActiveEnrollments(context.Background(),
		enrollment.StudentKey{Name: "Mariam", Surname: "Kvaratskhelia", FatherName: "Tamaz"})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestNew_WidensLegacyHeader(t *testing.T) {
	// GIVEN: A legacy registry with one row
	// WHEN: Opening it, appending a 3-event commit and losing its last row
	// THEN: The header carries the commit columns and the torn commit is skipped

	path := tempPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	legacy := "name,surname,father_name,phone,email,course_id,course_name,time_keys,status,receipt_id,timestamp\n" +
		"Mariam,Kvaratskhelia,Tamaz,599123456,mariam@example.com,3,English (Group 1),wed_10,Active,R-5,2024-09-01 10:00:00\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	log, err := csvlog.New(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), headerLine))

	require.NoError(t, log.AppendBatch(context.Background(), []enrollment.Event{
		sampleEvent("e1", "1", "c1", 3),
		sampleEvent("e2", "2", "c1", 3),
		sampleEvent("e3", "4", "c1", 3),
	}))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	require.Len(t, lines, 6) // header, legacy row, 3 rows, trailing ""
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines[:4], "")), 0o644))

	reopened, err := csvlog.New(path)
	require.NoError(t, err)
	got := scanAll(t, reopened)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].CourseID)
	assert.Equal(t, 1, got[0].CommitSize)
}

func TestNew_RejectsUnknownShortHeader(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("student,course\n"), 0o644))

	_, err := csvlog.New(path)
	assert.ErrorIs(t, err, enrollment.ErrStorageUnavailable)
}

func TestLog_BadRowIsStorageError(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(headerLine+"A,B,C,1,a@b.c,1,Math,mon_10,Paused,R,2024-01-01 00:00:00,e1,c1,1\n"), 0o644))

	log, err := csvlog.New(path)
	require.NoError(t, err)

	var scanErr error
	for _, err := range log.Scan(context.Background()) {
		scanErr = err
	}
	assert.ErrorIs(t, scanErr, enrollment.ErrStorageUnavailable)
	assert.Contains(t, scanErr.Error(), "parse row 2")
}

func TestLog_MissingFileIsEmpty(t *testing.T) {
	path := tempPath(t)
	log, err := csvlog.New(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	assert.Empty(t, scanAll(t, log))
}
