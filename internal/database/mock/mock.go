// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu      sync.RWMutex
	samples []database.Sample
	nextID  int64
	closed  bool

	// Error injection
	ListIdentitiesError error
	EachSampleError     error
	CountError          error
	InsertError         error
	PingError           error
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{nextID: 1}
}

// AddSample adds a sample to the mock store, assigning an id and a capture time when missing
func (m *MockStore) AddSample(s database.Sample) database.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID
	m.nextID++
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Unix(s.ID, 0).UTC()
	}
	m.samples = append(m.samples, s)
	return s
}

// Samples returns a copy of the stored samples in insertion order
func (m *MockStore) Samples() []database.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.Sample(nil), m.samples...)
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// ListIdentities returns the distinct (user id, name) pairs ordered by id then name
func (m *MockStore) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	if m.ListIdentitiesError != nil {
		return nil, m.ListIdentitiesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct {
		id   int
		name string
	}
	byKey := make(map[key]*database.Identity)
	for _, s := range m.samples {
		k := key{s.UserID, s.UserName}
		ident, ok := byKey[k]
		if !ok {
			ident = &database.Identity{UserID: s.UserID, UserName: s.UserName}
			byKey[k] = ident
		}
		ident.Samples++
		if s.CapturedAt.After(ident.LastCaptured) {
			ident.LastCaptured = s.CapturedAt
		}
	}

	identities := make([]database.Identity, 0, len(byKey))
	for _, ident := range byKey {
		identities = append(identities, *ident)
	}
	sort.Slice(identities, func(i, j int) bool {
		if identities[i].UserID != identities[j].UserID {
			return identities[i].UserID < identities[j].UserID
		}
		return identities[i].UserName < identities[j].UserName
	})
	return identities, nil
}

// EachSample calls fn for every sample, oldest capture time first
func (m *MockStore) EachSample(ctx context.Context, fn func(database.Sample) error) error {
	if m.EachSampleError != nil {
		return m.EachSampleError
	}
	samples := m.Samples()
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].CapturedAt.Before(samples[j].CapturedAt)
	})
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of samples
func (m *MockStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples), nil
}

// InsertSample stores a sample and returns its id
func (m *MockStore) InsertSample(ctx context.Context, s database.Sample) (int64, error) {
	if m.InsertError != nil {
		return 0, m.InsertError
	}
	return m.AddSample(s).ID, nil
}

// Ping returns PingError
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingError
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ database.Store = (*MockStore)(nil)
