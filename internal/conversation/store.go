package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SessionStore persists sessions between events. Get reports false for
// a missing or expired session.
type SessionStore interface {
	Get(ctx context.Context, k Key) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, k Key) error
}

// MemoryStore keeps sessions in process memory. Sessions idle for longer
// than the TTL are treated as missing and removed by Sweep.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[Key]Session
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, items: map[Key]Session{}, now: time.Now}
}

func (m *MemoryStore) expired(s Session) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

func (m *MemoryStore) Get(_ context.Context, k Key) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[k]
	if !ok || m.expired(s) {
		return Session{}, false, nil
	}
	return s, true, nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now()
	}
	m.items[s.Key()] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, k)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Sweep removes expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, s := range m.items {
		if m.expired(s) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, every time.Duration, log zerolog.Logger) error {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}

// RedisStore keeps sessions as JSON values with a TTL, so several server
// instances can share them.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(k Key) string { return "session:" + k.String() }

func (r *RedisStore) Get(ctx context.Context, k Key) (Session, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKey(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("get session %s: %w", k, err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// a corrupt value is dropped and the dialogue restarts
		_ = r.rdb.Del(ctx, redisKey(k)).Err()
		return Session{}, false, nil
	}
	return s, true, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisKey(s.Key()), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", s.Key(), err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, k Key) error {
	return r.rdb.Del(ctx, redisKey(k)).Err()
}
