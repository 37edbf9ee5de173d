// Package store provides in-process enrollment.Store implementations.
package store

import (
	"context"
	"iter"
	"sync"

	"github.com/warp/enrollment-engine/enrollment"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	events []enrollment.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

// Append adds a single event. Append-only.
func (m *Memory) Append(_ context.Context, ev enrollment.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, cloneEvent(ev))
	return nil
}

// AppendBatch adds every event of a commit under one lock, so a concurrent
// Scan sees either none or all of them.
func (m *Memory) AppendBatch(_ context.Context, evs []enrollment.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range evs {
		m.events = append(m.events, cloneEvent(ev))
	}
	return nil
}

// Scan yields a point-in-time copy of the log.
func (m *Memory) Scan(ctx context.Context) iter.Seq2[enrollment.Event, error] {
	return func(yield func(enrollment.Event, error) bool) {
		m.mu.RLock()
		events := make([]enrollment.Event, len(m.events))
		copy(events, m.events)
		m.mu.RUnlock()

		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				yield(enrollment.Event{}, enrollment.NewStorageError("scan", err))
				return
			}
			if !yield(cloneEvent(ev), nil) {
				return
			}
		}
	}
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// cloneEvent copies the time-key slice so callers cannot mutate stored events.
func cloneEvent(ev enrollment.Event) enrollment.Event {
	if ev.TimeKeys != nil {
		keys := make(enrollment.TimeKeys, len(ev.TimeKeys))
		copy(keys, ev.TimeKeys)
		ev.TimeKeys = keys
	}
	return ev
}

var _ enrollment.Store = (*Memory)(nil)
