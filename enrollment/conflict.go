/*
conflict.go - Time and subject conflict detection

RULES:
  A candidate offering may not be added when, against any held course:
  1. its time-key set intersects the held course's time keys (TimeConflict), or
  2. its subject name equals the held course's subject (DuplicateSubject).

ORDER:
  Confirmed history is checked before the pending cart. Within each set the
  first hit is returned; there is no ranking among several conflicts.

PRECONDITION:
  Offerings carry at least one time key. An offering with none can never
  produce a TimeConflict; the catalog factory rejects such offerings.
*/
package enrollment

// CheckConflict decides whether candidate can join history and cart.
// It returns nil when the candidate may be added.
func CheckConflict(history []Event, candidate Offering, cart []Offering) *Conflict {
	subject := candidate.Subject()

	for _, held := range history {
		if c := conflictWith(candidate, subject, held.CourseName, held.TimeKeys, SourceHistory); c != nil {
			return c
		}
	}
	for _, held := range cart {
		if c := conflictWith(candidate, subject, held.Name, held.TimeKeys, SourceCart); c != nil {
			return c
		}
	}
	return nil
}

func conflictWith(candidate Offering, subject, heldName string, heldKeys TimeKeys, source ConflictSource) *Conflict {
	if candidate.TimeKeys.Intersects(heldKeys) {
		return &Conflict{Kind: ConflictTime, Source: source, Candidate: candidate.Name, With: heldName}
	}
	if SubjectName(heldName) == subject {
		return &Conflict{Kind: ConflictSubject, Source: source, Candidate: candidate.Name, With: heldName, Subject: subject}
	}
	return nil
}
