package eventtype

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// FieldCache holds read-through copies of persisted field sets.
type FieldCache interface {
	Get(ctx context.Context, eventTypeID uint) (*FieldSet, bool)
	Set(ctx context.Context, eventTypeID uint, set *FieldSet) error
	Invalidate(ctx context.Context, eventTypeID uint) error
}

type redisFieldCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFieldCache(client *redis.Client, ttl time.Duration) FieldCache {
	return &redisFieldCache{client: client, ttl: ttl}
}

func fieldsKey(eventTypeID uint) string {
	return fmt.Sprintf("eventtype:%d:fields", eventTypeID)
}

// Get treats every failure as a miss.
func (c *redisFieldCache) Get(ctx context.Context, eventTypeID uint) (*FieldSet, bool) {
	raw, err := c.client.Get(ctx, fieldsKey(eventTypeID)).Bytes()
	if err != nil {
		return nil, false
	}
	var set FieldSet
	if err := sonic.Unmarshal(raw, &set); err != nil {
		return nil, false
	}
	return &set, true
}

func (c *redisFieldCache) Set(ctx context.Context, eventTypeID uint, set *FieldSet) error {
	raw, err := sonic.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "encode field set")
	}
	return errors.Wrap(c.client.Set(ctx, fieldsKey(eventTypeID), raw, c.ttl).Err(), "cache field set")
}

func (c *redisFieldCache) Invalidate(ctx context.Context, eventTypeID uint) error {
	return errors.Wrap(c.client.Del(ctx, fieldsKey(eventTypeID)).Err(), "invalidate field set")
}
