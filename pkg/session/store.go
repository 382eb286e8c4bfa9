package session

import (
	"fmt"
	"sync"
	"time"
)

// Store is the session persistence contract. Apply is the only mutation
// path: it runs fn on the session under a per-session lock so every
// read-modify-write is serialized. Concurrent Apply calls for different
// sessions proceed in parallel.
type Store interface {
	// Apply loads (or creates) the session and runs fn on it inside the
	// session's critical section. The returned session is a detached copy.
	Apply(sessionID string, fn func(*Session) error) (*Session, error)

	// Get returns a detached copy of the session, or nil if unknown.
	Get(sessionID string) (*Session, error)

	// List returns detached copies of all live sessions.
	List() ([]*Session, error)

	// Close releases background resources.
	Close()
}

// InMemoryStore implements Store with in-memory storage and TTL cleanup.
// Suitable for single-node deployments; multi-node deployments use the
// Redis-backed store instead.
type InMemoryStore struct {
	entries map[string]*entry
	mu      sync.RWMutex

	maxAge     time.Duration // Session TTL (default: 1 hour)
	cleanupTTL time.Duration // Cleanup interval (default: 5 minutes)

	stopCleanup chan struct{}
	cleanupOnce sync.Once

	now func() time.Time
}

// entry pairs a session with its own lock. Apply holds entry.mu for the
// whole read-modify-write; the registry lock is only held while finding or
// creating the entry.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// StoreOption is a functional option for configuring InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithMaxAge sets the maximum idle age for sessions before cleanup.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.maxAge = d }
}

// WithCleanupInterval sets how often the cleanup routine runs.
func WithCleanupInterval(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.cleanupTTL = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *InMemoryStore) { s.now = now }
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		entries:     make(map[string]*entry),
		maxAge:      1 * time.Hour,
		cleanupTTL:  5 * time.Minute,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Apply implements Store.
func (s *InMemoryStore) Apply(sessionID string, fn func(*Session) error) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{sess: NewSession(sessionID, s.now())}
		s.entries[sessionID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.sess); err != nil {
		return nil, err
	}
	return e.sess.Clone(), nil
}

// Get implements Store. Stale sessions are treated as not found; actual
// removal happens in cleanupLoop.
func (s *InMemoryStore) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s.now().Sub(e.sess.LastActivity) > s.maxAge {
		return nil, nil
	}
	return e.sess.Clone(), nil
}

// List implements Store.
func (s *InMemoryStore) List() ([]*Session, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.sess.Clone())
		e.mu.Unlock()
	}
	return out, nil
}

// Close stops the cleanup goroutine.
func (s *InMemoryStore) Close() {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// cleanupLoop periodically removes expired sessions.
func (s *InMemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes sessions idle past maxAge. Session fields are only read
// under the entry lock; staleness is re-checked right before deletion so an
// entry being Applied at that instant survives the sweep.
func (s *InMemoryStore) cleanup() {
	s.mu.RLock()
	candidates := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		candidates[id] = e
	}
	s.mu.RUnlock()

	var stale []string
	for id, e := range candidates {
		e.mu.Lock()
		if s.now().Sub(e.sess.LastActivity) > s.maxAge {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	if len(stale) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range stale {
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		e.mu.Lock()
		if s.now().Sub(e.sess.LastActivity) > s.maxAge {
			delete(s.entries, id)
		}
		e.mu.Unlock()
	}
}

// StoreStats contains session store statistics.
type StoreStats struct {
	SessionCount int `json:"session_count"`
	TotalTurns   int `json:"total_turns"`
	Reported     int `json:"reported"`
}

// Stats returns current session store statistics. Entry pointers are
// collected under the registry lock, then each session is read under its
// own lock so a concurrent Apply never races these reads.
func (s *InMemoryStore) Stats() StoreStats {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	stats := StoreStats{SessionCount: len(entries)}
	for _, e := range entries {
		e.mu.Lock()
		stats.TotalTurns += len(e.sess.Turns)
		if e.sess.Reported {
			stats.Reported++
		}
		e.mu.Unlock()
	}
	return stats
}

// Ensure InMemoryStore implements Store
var _ Store = (*InMemoryStore)(nil)
