package session

import (
	"sync"
	"testing"
	"time"

	"github.com/decoylabs/scamtrap/pkg/signal"
)

func TestApplyCreatesSession(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	snap, err := store.Apply("s1", func(s *Session) error {
		if s.State != StateInit {
			t.Errorf("new session state = %s, want INIT", s.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if snap.ID != "s1" {
		t.Errorf("snapshot id = %s", snap.ID)
	}
}

func TestApplyRejectsEmptyID(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	if _, err := store.Apply("", func(s *Session) error { return nil }); err == nil {
		t.Error("Apply with empty id should error")
	}
}

func TestApplySerializesPerSession(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	weights := signal.DefaultWeights()
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Apply("shared", func(s *Session) error {
				set := signal.Set{weights.New(signal.TypeUrgency)}
				s.RecordTurn("hurry up", set, 0.25, false, time.Now())
				return nil
			})
			if err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	final, err := store.Get("shared")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.TurnCount() != workers {
		t.Errorf("turn count = %d, want %d (lost updates)", final.TurnCount(), workers)
	}
	if len(final.Timeline) != workers {
		t.Errorf("timeline length = %d, want %d", len(final.Timeline), workers)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	snap, _ := store.Apply("s1", func(s *Session) error {
		s.RecordTurn("hello", nil, 0, false, time.Now())
		return nil
	})

	snap.Turns[0].Text = "tampered"
	snap.State = StateReported

	fresh, _ := store.Get("s1")
	if fresh.Turns[0].Text != "hello" || fresh.State != StateInit {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestTimelineAlignsWithTurns(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	for i := 0; i < 5; i++ {
		store.Apply("s1", func(s *Session) error {
			s.RecordTurn("msg", nil, 0, false, time.Now())
			return nil
		})
	}

	s, _ := store.Get("s1")
	if len(s.Timeline) != len(s.Turns) {
		t.Fatalf("timeline %d != turns %d", len(s.Timeline), len(s.Turns))
	}
	for i, snap := range s.Timeline {
		if snap.Turn != i+1 {
			t.Errorf("snapshot %d has turn %d, want %d", i, snap.Turn, i+1)
		}
	}
}

func TestExpiredSessionTreatedAsGone(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	store := NewInMemoryStore(WithMaxAge(time.Minute), WithClock(clock))
	defer store.Close()

	store.Apply("s1", func(s *Session) error { return nil })

	current = current.Add(2 * time.Minute)
	got, err := store.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expired session returned, want nil")
	}
}

func TestCleanupRemovesStale(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	store := NewInMemoryStore(WithMaxAge(time.Minute), WithClock(clock))
	defer store.Close()

	store.Apply("old", func(s *Session) error { return nil })
	current = current.Add(2 * time.Minute)
	store.Apply("fresh", func(s *Session) error { return nil })

	store.cleanup()

	stats := store.Stats()
	if stats.SessionCount != 1 {
		t.Errorf("session count after cleanup = %d, want 1", stats.SessionCount)
	}
}

func TestConcurrentApplyStatsAndCleanup(t *testing.T) {
	store := NewInMemoryStore(
		WithMaxAge(50*time.Millisecond),
		WithCleanupInterval(time.Millisecond),
	)
	defer store.Close()

	weights := signal.DefaultWeights()
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, err := store.Apply(id, func(s *Session) error {
					set := signal.Set{weights.New(signal.TypeUrgency)}
					s.RecordTurn("hurry", set, 0.25, false, time.Now())
					return nil
				})
				if err != nil {
					t.Errorf("Apply: %v", err)
					return
				}
			}
		}("sess-" + string(rune('a'+w)))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			stats := store.Stats()
			if stats.TotalTurns < 0 || stats.SessionCount < 0 {
				t.Errorf("stats went negative: %+v", stats)
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestCleanupSparesActivelyAppliedSession(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	store := NewInMemoryStore(WithMaxAge(time.Minute), WithClock(clock))
	defer store.Close()

	store.Apply("s1", func(s *Session) error { return nil })

	// An Apply that refreshes activity after the sweep collected its
	// candidates must keep the session alive: the sweep re-checks
	// staleness right before deleting.
	current = current.Add(2 * time.Minute)
	store.Apply("s1", func(s *Session) error {
		s.RecordTurn("still here", nil, 0, false, current)
		return nil
	})
	store.cleanup()

	got, _ := store.Get("s1")
	if got == nil {
		t.Fatal("active session was swept by cleanup")
	}
	if got.TurnCount() != 1 {
		t.Errorf("turn count = %d, want 1", got.TurnCount())
	}
}

func TestStats(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()

	store.Apply("a", func(s *Session) error {
		s.RecordTurn("one", nil, 0, false, time.Now())
		s.RecordTurn("two", nil, 0, false, time.Now())
		return nil
	})
	store.Apply("b", func(s *Session) error {
		s.MarkReported(false)
		return nil
	})

	stats := store.Stats()
	if stats.SessionCount != 2 || stats.TotalTurns != 2 || stats.Reported != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
