package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process suppression window for single-node
// deployments. Entries are evicted lazily on access and by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// ShouldSuppress implements Store.
func (s *MemoryStore) ShouldSuppress(_ context.Context, sensorID, conditionKey string, now time.Time) (bool, error) {
	k := key(sensorID, conditionKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[k]
	if !ok {
		return false, nil
	}
	if entry.Expired(now) {
		delete(s.entries, k)
		return false, nil
	}
	return true, nil
}

// RecordFired implements Store.
func (s *MemoryStore) RecordFired(_ context.Context, sensorID, conditionKey, alertID string, window time.Duration, now time.Time) error {
	if window <= 0 {
		return nil
	}
	s.mu.Lock()
	s.entries[key(sensorID, conditionKey)] = Entry{
		AlertID: alertID,
		FiredAt: now,
		Window:  window,
	}
	s.mu.Unlock()
	return nil
}

// Sweep purges expired entries to bound memory. Safe to run concurrently
// with ShouldSuppress/RecordFired.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
