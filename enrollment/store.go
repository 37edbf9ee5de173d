/*
store.go - Persistence interface for enrollment events

PURPOSE:
  Defines the boundary between the engine and durable storage. A Store is an
  append-only sequence of events in write order.

APPEND-ONLY CONTRACT:
  - Append(): single event write
  - AppendBatch(): all-or-nothing multi-event write (one commit)
  - Scan(): lazy, restartable read of every event in write order
  - NO Update() or Delete() methods exist

TORN COMMITS:
  A commit is written as one batch. If a process dies while a batch is being
  written, a store must never let Scan yield part of that batch. SQLite gets
  this from its transaction; the CSV log checks CommitSize on read and drops
  an incomplete trailing commit.

IMPLEMENTATIONS:
  - enrollment/store/memory.go: in-memory, for tests and demos
  - store/sqlite/sqlite.go: SQLite via sqlx
  - store/csvlog/csvlog.go: CSV file in the registry column layout

SEE ALSO:
  - ledger.go: Invariant-enforcing wrapper around Store
*/
package enrollment

import (
	"context"
	"errors"
	"iter"
)

// Store persists enrollment events.
// IMPORTANT: Store is APPEND-ONLY. Cancellation is a new event.
type Store interface {
	// Append persists one event.
	Append(ctx context.Context, ev Event) error

	// AppendBatch persists every event of one commit atomically.
	AppendBatch(ctx context.Context, evs []Event) error

	// Scan yields every event in write order. Each call starts a fresh read.
	// A storage failure is yielded once as a non-nil error, then the sequence ends.
	Scan(ctx context.Context) iter.Seq2[Event, error]
}

// replay feeds every event of the store to fn, in write order.
func replay(ctx context.Context, s Store, fn func(Event)) error {
	for ev, err := range s.Scan(ctx) {
		if err != nil {
			if !errors.Is(err, ErrStorageUnavailable) {
				err = NewStorageError("scan", err)
			}
			return err
		}
		fn(ev)
	}
	return nil
}
