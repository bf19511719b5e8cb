package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store persists one stack per owning user. A missing stack loads as empty.
type Store interface {
	Load(ctx context.Context, ownerID uint) (*Stack, error)
	Save(ctx context.Context, ownerID uint, s *Stack) error
	Delete(ctx context.Context, ownerID uint) error
}

func stackKey(ownerID uint) string {
	return fmt.Sprintf("session:stack:%d", ownerID)
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (r *redisStore) Load(ctx context.Context, ownerID uint) (*Stack, error) {
	raw, err := r.client.Get(ctx, stackKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Stack{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session stack")
	}
	var s Stack
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode session stack")
	}
	return &s, nil
}

func (r *redisStore) Save(ctx context.Context, ownerID uint, s *Stack) error {
	if s.Current == nil && len(s.Backups) == 0 {
		return r.Delete(ctx, ownerID)
	}
	raw, err := sonic.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode session stack")
	}
	return errors.Wrap(r.client.Set(ctx, stackKey(ownerID), raw, r.ttl).Err(), "save session stack")
}

func (r *redisStore) Delete(ctx context.Context, ownerID uint) error {
	return errors.Wrap(r.client.Del(ctx, stackKey(ownerID)).Err(), "delete session stack")
}

type memoryStore struct {
	mu     sync.Mutex
	stacks map[uint][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{stacks: make(map[uint][]byte)}
}

func (m *memoryStore) Load(_ context.Context, ownerID uint) (*Stack, error) {
	m.mu.Lock()
	raw, ok := m.stacks[ownerID]
	m.mu.Unlock()
	if !ok {
		return &Stack{}, nil
	}
	var s Stack
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode session stack")
	}
	return &s, nil
}

func (m *memoryStore) Save(ctx context.Context, ownerID uint, s *Stack) error {
	if s.Current == nil && len(s.Backups) == 0 {
		return m.Delete(ctx, ownerID)
	}
	raw, err := sonic.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode session stack")
	}
	m.mu.Lock()
	m.stacks[ownerID] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, ownerID uint) error {
	m.mu.Lock()
	delete(m.stacks, ownerID)
	m.mu.Unlock()
	return nil
}
