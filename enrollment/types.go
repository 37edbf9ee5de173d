/*
Package enrollment provides the enrollment ledger and the conflict/pricing engine.

PURPOSE:
  Students are enrolled into time-scheduled course offerings. Every
  enrollment and every cancellation is an immutable Event appended to a
  ledger. There is no "current enrollments" table: whether a student is
  enrolled, and how full a course is, is always derived by replaying the
  log.

KEY CONCEPTS IN THIS FILE (types.go):
  - Offering: a catalog course with time slots and a capacity
  - TimeKeys: the opaque time-slot tokens of an offering
  - StudentKey: (name, surname, father name), the unique student identity
  - Event: one Active/Cancelled record for a (student, course) pair

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified, a cancellation is a new event
  2. Last write wins: the latest event per (student, course) is the truth
  3. Atomic commits: all events of one registration land together or not at all
  4. Precision: prices use decimal.Decimal

SEE ALSO:
  - ledger.go: append-only ledger with receipt uniqueness
  - state.go: replay folds (active enrollments, occupancy)
  - conflict.go: time/subject conflict detection
  - pricing.go: discount tiers
  - session.go, edit.go: registration and edit workflows
*/
package enrollment

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// OFFERING - Catalog course (read-only to the engine)
// =============================================================================

// Offering is one schedulable course group from the catalog.
type Offering struct {
	ID          string
	Name        string
	TimeKeys    TimeKeys
	Capacity    int
	TimeDisplay string
}

// Subject returns the subject name of the offering.
func (o Offering) Subject() string { return SubjectName(o.Name) }

// SubjectName strips the parenthetical group/time qualifier from a course name.
// "Math (Group 2)" and "Math (Evening)" share the subject "Math".
func SubjectName(courseName string) string {
	if i := strings.Index(courseName, "("); i >= 0 {
		courseName = courseName[:i]
	}
	return strings.TrimSpace(courseName)
}

// =============================================================================
// TIME KEYS
// =============================================================================

// TimeKeys is the ordered list of time-slot tokens of an offering.
// Two offerings conflict when their token sets intersect.
type TimeKeys []string

const timeKeySeparator = ";"

// ParseTimeKeys splits a serialized time-key string.
func ParseTimeKeys(s string) TimeKeys {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, timeKeySeparator)
	keys := make(TimeKeys, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// String joins the keys with the storage separator.
func (k TimeKeys) String() string { return strings.Join(k, timeKeySeparator) }

// Intersects reports whether the two key sets share any token.
func (k TimeKeys) Intersects(other TimeKeys) bool {
	if len(k) == 0 || len(other) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(k))
	for _, key := range k {
		set[key] = struct{}{}
	}
	for _, key := range other {
		if _, ok := set[key]; ok {
			return true
		}
	}
	return false
}

// =============================================================================
// STUDENT
// =============================================================================

// StudentKey uniquely identifies a student.
type StudentKey struct {
	Name       string
	Surname    string
	FatherName string
}

func (k StudentKey) String() string {
	return k.Name + " " + k.Surname + " (" + k.FatherName + ")"
}

// IsZero reports whether no identity fields are set.
func (k StudentKey) IsZero() bool {
	return k.Name == "" && k.Surname == "" && k.FatherName == ""
}

// Contact is the last-write-wins contact information of a student.
type Contact struct {
	Phone string
	Email string
}

// Student is a validated identity plus contact details.
type Student struct {
	Key     StudentKey
	Contact Contact
}

// SortStudentKeys orders keys by name, surname, father name.
func SortStudentKeys(keys []StudentKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Surname != b.Surname {
			return a.Surname < b.Surname
		}
		return a.FatherName < b.FatherName
	})
}

// =============================================================================
// EVENT - Atomic unit of the ledger
// =============================================================================

// Status is the enrollment status recorded by an event.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCancelled Status = "Cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s == StatusActive || s == StatusCancelled }

// Event is one immutable ledger entry.
type Event struct {
	ID         string
	Student    StudentKey
	Contact    Contact
	CourseID   string
	CourseName string
	TimeKeys   TimeKeys
	Status     Status
	ReceiptID  string
	Timestamp  time.Time

	// CommitID groups the events written by one commit; CommitSize is how many
	// events that commit holds. Stores use them to drop a torn trailing commit.
	CommitID   string
	CommitSize int
}

// IsActive reports whether the event records an Active status.
func (e Event) IsActive() bool { return e.Status == StatusActive }

// Subject returns the subject name of the event's course.
func (e Event) Subject() string { return SubjectName(e.CourseName) }

// enrollmentKey is the (student, course) pair the override rule is keyed on.
type enrollmentKey struct {
	Student  StudentKey
	CourseID string
}

func keyOf(e Event) enrollmentKey {
	return enrollmentKey{Student: e.Student, CourseID: e.CourseID}
}
