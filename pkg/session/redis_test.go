package session

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestRedisApplyRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)

	snap, err := store.Apply("s1", func(s *Session) error {
		s.RecordTurn("share your otp", nil, 0.72, true, time.Now())
		s.Transition(StateSuspected)
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if snap.State != StateSuspected || snap.TurnCount() != 1 {
		t.Errorf("snapshot = state %s, %d turns", snap.State, snap.TurnCount())
	}

	loaded, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded == nil {
		t.Fatal("session not persisted")
	}
	if loaded.State != StateSuspected {
		t.Errorf("loaded state = %s, want SUSPECTED", loaded.State)
	}
	if loaded.Timeline[0].Confidence != 0.72 || !loaded.Timeline[0].Detected {
		t.Errorf("timeline did not survive round trip: %+v", loaded.Timeline[0])
	}
}

func TestRedisGetUnknownSession(t *testing.T) {
	store := newTestRedisStore(t)

	got, err := store.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("unknown session should return nil")
	}
}

func TestRedisApplyAccumulates(t *testing.T) {
	store := newTestRedisStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Apply("s1", func(s *Session) error {
			s.RecordTurn("msg", nil, 0, false, time.Now())
			return nil
		}); err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
	}

	s, _ := store.Get("s1")
	if s.TurnCount() != 3 {
		t.Errorf("turn count = %d, want 3", s.TurnCount())
	}
}

func TestRedisList(t *testing.T) {
	store := newTestRedisStore(t)

	store.Apply("a", func(s *Session) error { return nil })
	store.Apply("b", func(s *Session) error { return nil })

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("listed %d sessions, want 2", len(sessions))
	}
}
