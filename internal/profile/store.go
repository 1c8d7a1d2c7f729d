package profile

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the keyed profile persistence contract. Correctness of the whole
// engine rests on two properties every implementation must honor:
// GetOrCreate is idempotent, and Update is an atomic read-modify-write
// serialized per user id (never behind one global lock).
type Store interface {
	// GetOrCreate returns a copy of the profile, creating it at neutral
	// trust on first sight of the identity.
	GetOrCreate(ctx context.Context, userID string) (*Profile, error)

	// Update applies fn to the profile under the per-key lock. The profile
	// is created first if missing. fn returning an error aborts the write.
	Update(ctx context.Context, userID string, fn func(*Profile) error) error

	// Delete evicts the profile. Missing keys are not an error.
	Delete(ctx context.Context, userID string) error

	// ScanAll visits a read-only copy of every profile. fn returning an
	// error stops the scan.
	ScanAll(ctx context.Context, fn func(*Profile) error) error

	// Count returns the number of stored profiles.
	Count(ctx context.Context) (int, error)

	Close() error
}

// MemoryStore is the in-process reference Store. Each profile carries its
// own mutex so unrelated users never serialize on each other.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*lockedProfile
	now      func() time.Time
}

type lockedProfile struct {
	mu sync.Mutex
	p  *Profile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*lockedProfile),
		now:      time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryStore) entry(userID string) *lockedProfile {
	s.mu.RLock()
	lp, ok := s.profiles[userID]
	s.mu.RUnlock()
	if ok {
		return lp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lp, ok = s.profiles[userID]; ok {
		return lp
	}
	lp = &lockedProfile{p: New(userID, s.now().UTC())}
	s.profiles[userID] = lp
	return lp
}

// GetOrCreate returns a copy of the profile, creating it if absent.
func (s *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lp := s.entry(userID)
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.p.Clone(), nil
}

// Update applies fn under the profile's own lock.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(*Profile) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lp := s.entry(userID)
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if err := fn(lp.p); err != nil {
		return err
	}
	lp.p.ClampScores()
	return nil
}

// Delete evicts the profile if present.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

// ScanAll visits a copy of every profile in stable key order.
func (s *MemoryStore) ScanAll(ctx context.Context, fn func(*Profile) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.RLock()
		lp, ok := s.profiles[id]
		s.mu.RUnlock()
		if !ok {
			continue // evicted mid-scan
		}
		lp.mu.Lock()
		cp := lp.p.Clone()
		lp.mu.Unlock()
		if err := fn(cp); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored profiles.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
