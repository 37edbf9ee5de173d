/*
report.go - Administrative views derived from the ledger

REPORTS:
  - Availability: per offering occupancy and free seats (operator listing)
  - Occupancy: per offering, active students grouped by (course, time keys)
  - Active students: every student with at least one active enrollment,
    with last-write-wins contact details

All reports are computed from a single Snapshot scan, so every number in one
report reflects the same ledger state.
*/
package enrollment

import (
	"context"
	"sort"
)

// =============================================================================
// AVAILABILITY
// =============================================================================

// Availability is an offering with its current occupancy.
type Availability struct {
	Offering  Offering
	Occupied  int
	Available int
}

// Full reports whether no seats are left.
func (a Availability) Full() bool { return a.Available <= 0 }

// ListAvailability returns every catalog offering with occupancy, in catalog order.
func ListAvailability(ctx context.Context, r *Reconstructor, catalog Catalog) ([]Availability, error) {
	counts, err := r.OccupancyByCourse(ctx)
	if err != nil {
		return nil, err
	}
	offs := catalog.Offerings()
	out := make([]Availability, len(offs))
	for i, off := range offs {
		occupied := counts[off.ID]
		out[i] = Availability{Offering: off, Occupied: occupied, Available: off.Capacity - occupied}
	}
	return out, nil
}

// =============================================================================
// OCCUPANCY REPORT
// =============================================================================

// RosterEntry is one active student in a group.
type RosterEntry struct {
	Student StudentKey
	Contact Contact
}

// GroupRoster lists the active students of one (course, time keys) group.
type GroupRoster struct {
	TimeKeys TimeKeys
	Students []RosterEntry
}

// CourseOccupancy is the occupancy report section for one offering.
type CourseOccupancy struct {
	Offering  Offering
	Occupied  int
	Available int
	Groups    []GroupRoster
}

// BuildOccupancyReport groups active students per offering and time-key set.
// Groups are ordered by their serialized time keys; students by log position.
func BuildOccupancyReport(ctx context.Context, r *Reconstructor, catalog Catalog) ([]CourseOccupancy, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		courseID string
		timeKeys string
	}
	groups := make(map[groupKey]*GroupRoster)
	for _, ev := range snap.Active() {
		k := groupKey{courseID: ev.CourseID, timeKeys: ev.TimeKeys.String()}
		g, ok := groups[k]
		if !ok {
			g = &GroupRoster{TimeKeys: ev.TimeKeys}
			groups[k] = g
		}
		contact, _ := snap.Contact(ev.Student)
		g.Students = append(g.Students, RosterEntry{Student: ev.Student, Contact: contact})
	}

	offs := catalog.Offerings()
	out := make([]CourseOccupancy, 0, len(offs))
	for _, off := range offs {
		section := CourseOccupancy{Offering: off}
		for k, g := range groups {
			if k.courseID == off.ID {
				section.Groups = append(section.Groups, *g)
				section.Occupied += len(g.Students)
			}
		}
		sort.Slice(section.Groups, func(i, j int) bool {
			return section.Groups[i].TimeKeys.String() < section.Groups[j].TimeKeys.String()
		})
		section.Available = off.Capacity - section.Occupied
		out = append(out, section)
	}
	return out, nil
}

// =============================================================================
// ACTIVE STUDENTS REPORT
// =============================================================================

// StudentEnrollments is one student's line in the active students report.
type StudentEnrollments struct {
	Student StudentKey
	Contact Contact
	Courses []Event
}

// BuildStudentsReport lists students with active enrollments, sorted by identity.
func BuildStudentsReport(ctx context.Context, r *Reconstructor) ([]StudentEnrollments, error) {
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	byStudent := make(map[StudentKey][]Event)
	for _, ev := range snap.Active() {
		byStudent[ev.Student] = append(byStudent[ev.Student], ev)
	}
	keys := make([]StudentKey, 0, len(byStudent))
	for k := range byStudent {
		keys = append(keys, k)
	}
	SortStudentKeys(keys)

	out := make([]StudentEnrollments, len(keys))
	for i, k := range keys {
		contact, _ := snap.Contact(k)
		out[i] = StudentEnrollments{Student: k, Contact: contact, Courses: byStudent[k]}
	}
	return out, nil
}
