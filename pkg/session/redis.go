package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of Redis for multi-node deployments.
// Sessions are stored as JSON blobs with a TTL refreshed on every write.
//
// Write serialization is process-local: each gateway instance owns the
// sessions routed to it, so the per-session lock lives in this process and
// Redis provides durability and visibility, not locking.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	locks sync.Map // sessionID -> *sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithCancel(context.Background())
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl, ctx: ctx, cancel: cancel}, nil
}

func sessionKey(id string) string { return "scamtrap:session:" + id }

func (s *RedisStore) lockFor(sessionID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Apply implements Store.
func (s *RedisStore) Apply(sessionID string, fn func(*Session) error) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = NewSession(sessionID, time.Now())
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Get implements Store.
func (s *RedisStore) Get(sessionID string) (*Session, error) {
	return s.load(sessionID)
}

// List implements Store.
func (s *RedisStore) List() ([]*Session, error) {
	var out []*Session
	iter := s.client.Scan(s.ctx, 0, sessionKey("*"), 100).Iterator()
	for iter.Next(s.ctx) {
		raw, err := s.client.Get(s.ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("decoding session %s: %w", iter.Val(), err)
		}
		out = append(out, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}
	return out, nil
}

// Close releases the client connection.
func (s *RedisStore) Close() {
	s.cancel()
	_ = s.client.Close()
}

func (s *RedisStore) load(sessionID string) (*Session, error) {
	raw, err := s.client.Get(s.ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *RedisStore) save(sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(s.ctx, sessionKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", sess.ID, err)
	}
	return nil
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
