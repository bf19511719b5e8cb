package designer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store keeps working sets between requests, one per (user, event type).
type Store interface {
	Get(ctx context.Context, userID, eventTypeID uint) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID, eventTypeID uint) error
}

func sessionKey(userID, eventTypeID uint) string {
	return fmt.Sprintf("designer:session:%d:%d", userID, eventTypeID)
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (r *redisStore) Get(ctx context.Context, userID, eventTypeID uint) (*Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(userID, eventTypeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, errors.Wrap(err, "load designer session")
	}
	var s Session
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode designer session")
	}
	return &s, nil
}

// Put refreshes the TTL on every write so an active editor keeps the session.
func (r *redisStore) Put(ctx context.Context, s *Session) error {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode designer session")
	}
	return errors.Wrap(r.client.Set(ctx, sessionKey(s.UserID, s.EventTypeID), raw, r.ttl).Err(), "save designer session")
}

func (r *redisStore) Delete(ctx context.Context, userID, eventTypeID uint) error {
	return errors.Wrap(r.client.Del(ctx, sessionKey(userID, eventTypeID)).Err(), "delete designer session")
}

// memoryStore is used when Redis is not configured and in tests. Sessions are
// stored encoded so callers never share a live *Session.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, userID, eventTypeID uint) (*Session, error) {
	m.mu.Lock()
	raw, ok := m.sessions[sessionKey(userID, eventTypeID)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoSession
	}
	var s Session
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode designer session")
	}
	return &s, nil
}

func (m *memoryStore) Put(_ context.Context, s *Session) error {
	raw, err := sonic.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode designer session")
	}
	m.mu.Lock()
	m.sessions[sessionKey(s.UserID, s.EventTypeID)] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, userID, eventTypeID uint) error {
	m.mu.Lock()
	delete(m.sessions, sessionKey(userID, eventTypeID))
	m.mu.Unlock()
	return nil
}
