// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package session

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"
)

// MemoryStore keeps sessions in process memory. A janitor goroutine evicts
// expired records until Close is called.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]record

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the store's clock.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore creates a store with the given TTL whose janitor sweeps
// every interval.
func NewMemoryStore(ttl, interval time.Duration, opts ...MemoryOption) (*MemoryStore, error) {
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").With("ttl", ttl).Errorf("session ttl must be positive")
	}
	if interval <= 0 {
		return nil, oops.Code("SESSION_INVALID_INTERVAL").With("interval", interval).Errorf("janitor interval must be positive")
	}

	m := &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]record),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.janitor(interval)
	return m, nil
}

func (m *MemoryStore) janitor(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep removes expired records and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.records {
		if !now.Before(rec.ExpiresAt) {
			delete(m.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored records, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || !m.now().Before(rec.ExpiresAt) {
		return nil, notFound(id)
	}
	return rec.session(id), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Empty() {
		if s.ID != "" {
			delete(m.records, s.ID)
			s.ID = ""
		}
		return nil
	}

	stale, err := s.prepare(m.now(), m.ttl)
	if err != nil {
		return err
	}
	if stale != "" {
		delete(m.records, stale)
	}
	m.records[s.ID] = s.record()
	return nil
}

// Destroy implements Store.
func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Close stops the janitor and waits for it to exit. It is safe to call more
// than once.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
	return nil
}

var _ Store = (*MemoryStore)(nil)
