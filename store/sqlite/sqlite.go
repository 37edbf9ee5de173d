/*
Package sqlite provides a SQLite-backed implementation of enrollment.Store.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist in this package
  - Triggers abort any UPDATE or DELETE on the events table, so even manual
    edits through the sqlite3 shell cannot rewrite history

KEY TABLE:
  events: one row per enrollment event, ordered by seq (insertion order).
  id is stamped by enrollment.Ledger; events appended directly without one
  are stored with a NULL id, which UNIQUE allows more than once.

INDEXES:
  - idx_events_student: active-enrollment replay filtered by student
  - idx_events_course:  occupancy replay filtered by course
  - idx_events_receipt: receipt lookups
  - idx_events_commit:  commit grouping

ATOMIC COMMITS:
  AppendBatch writes all events of a commit inside one SQL transaction.
  A crash mid-commit rolls the whole commit back.

WAL MODE:
  Opened with WAL for crash recovery. The pool is limited to one connection
  so that ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/enrollments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := enrollment.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/enrollment-engine/enrollment"
)

// Store implements enrollment.Store using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// New opens (and creates if needed) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing connection. The schema must already exist.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE,
		name TEXT NOT NULL,
		surname TEXT NOT NULL,
		father_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		course_id TEXT NOT NULL,
		course_name TEXT NOT NULL,
		time_keys TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('Active', 'Cancelled')),
		receipt_id TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		commit_id TEXT NOT NULL,
		commit_size INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_events_student
		ON events(name, surname, father_name, seq);
	CREATE INDEX IF NOT EXISTS idx_events_course
		ON events(course_id, seq);
	CREATE INDEX IF NOT EXISTS idx_events_receipt
		ON events(receipt_id) WHERE receipt_id <> '';
	CREATE INDEX IF NOT EXISTS idx_events_commit
		ON events(commit_id);

	CREATE TRIGGER IF NOT EXISTS events_no_update
		BEFORE UPDATE ON events
		BEGIN SELECT RAISE(ABORT, 'events are append-only'); END;

	CREATE TRIGGER IF NOT EXISTS events_no_delete
		BEFORE DELETE ON events
		BEGIN SELECT RAISE(ABORT, 'events are append-only'); END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type eventRow struct {
	Seq        int64          `db:"seq"`
	ID         sql.NullString `db:"id"`
	Name       string         `db:"name"`
	Surname    string         `db:"surname"`
	FatherName string         `db:"father_name"`
	Phone      string         `db:"phone"`
	Email      string         `db:"email"`
	CourseID   string         `db:"course_id"`
	CourseName string         `db:"course_name"`
	TimeKeys   string         `db:"time_keys"`
	Status     string         `db:"status"`
	ReceiptID  string         `db:"receipt_id"`
	Timestamp  string         `db:"timestamp"`
	CommitID   string         `db:"commit_id"`
	CommitSize int            `db:"commit_size"`
}

func toRow(ev enrollment.Event) eventRow {
	commitSize := ev.CommitSize
	if commitSize <= 0 {
		commitSize = 1
	}
	return eventRow{
		ID:         sql.NullString{String: ev.ID, Valid: ev.ID != ""},
		Name:       ev.Student.Name,
		Surname:    ev.Student.Surname,
		FatherName: ev.Student.FatherName,
		Phone:      ev.Contact.Phone,
		Email:      ev.Contact.Email,
		CourseID:   ev.CourseID,
		CourseName: ev.CourseName,
		TimeKeys:   ev.TimeKeys.String(),
		Status:     string(ev.Status),
		ReceiptID:  ev.ReceiptID,
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
		CommitID:   ev.CommitID,
		CommitSize: commitSize,
	}
}

func (r eventRow) toEvent() enrollment.Event {
	ts, _ := time.Parse(time.RFC3339, r.Timestamp)
	return enrollment.Event{
		ID:         r.ID.String,
		Student:    enrollment.StudentKey{Name: r.Name, Surname: r.Surname, FatherName: r.FatherName},
		Contact:    enrollment.Contact{Phone: r.Phone, Email: r.Email},
		CourseID:   r.CourseID,
		CourseName: r.CourseName,
		TimeKeys:   enrollment.ParseTimeKeys(r.TimeKeys),
		Status:     enrollment.Status(r.Status),
		ReceiptID:  r.ReceiptID,
		Timestamp:  ts,
		CommitID:   r.CommitID,
		CommitSize: r.CommitSize,
	}
}

// =============================================================================
// EVENT STORE (enrollment.Store interface)
// =============================================================================

const insertEvent = `
	INSERT INTO events
	(id, name, surname, father_name, phone, email, course_id, course_name,
	 time_keys, status, receipt_id, timestamp, commit_id, commit_size)
	VALUES (:id, :name, :surname, :father_name, :phone, :email, :course_id, :course_name,
	 :time_keys, :status, :receipt_id, :timestamp, :commit_id, :commit_size)
`

// Append adds one event.
func (s *Store) Append(ctx context.Context, ev enrollment.Event) error {
	return s.AppendBatch(ctx, []enrollment.Event{ev})
}

// AppendBatch adds every event of a commit in one transaction.
func (s *Store) AppendBatch(ctx context.Context, evs []enrollment.Event) error {
	if len(evs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return enrollment.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, ev := range evs {
		if _, err := tx.NamedExecContext(ctx, insertEvent, toRow(ev)); err != nil {
			return enrollment.NewStorageError("insert event", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return enrollment.NewStorageError("commit transaction", err)
	}
	return nil
}

const selectEvents = `
	SELECT seq, id, name, surname, father_name, phone, email, course_id, course_name,
	       time_keys, status, receipt_id, timestamp, commit_id, commit_size
	FROM events
	ORDER BY seq ASC
`

// Scan streams every event in insertion order.
func (s *Store) Scan(ctx context.Context) iter.Seq2[enrollment.Event, error] {
	return func(yield func(enrollment.Event, error) bool) {
		rows, err := s.db.QueryxContext(ctx, selectEvents)
		if err != nil {
			yield(enrollment.Event{}, enrollment.NewStorageError("query events", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row eventRow
			if err := rows.StructScan(&row); err != nil {
				yield(enrollment.Event{}, enrollment.NewStorageError("scan event", err))
				return
			}
			if !yield(row.toEvent(), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(enrollment.Event{}, enrollment.NewStorageError("read events", err))
		}
	}
}

var _ enrollment.Store = (*Store)(nil)
