package utils

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharath018/school-management-backend/config"
)

var (
	RedisClient *redis.Client
	Ctx         = context.Background()
)

// ErrTokenNotFound is returned by GetToken when the key is missing or expired.
var ErrTokenNotFound = errors.New("token not found or expired")

// InitRedis connects the shared client and pings it once.
func InitRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(Ctx, 5*time.Second)
	defer cancel()
	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	log.Printf("✅ Redis connected at %s (db=%d)", cfg.RedisAddr, cfg.RedisDB)
	return nil
}

// SetToken stores a short-lived value such as a password reset token.
func SetToken(key, value string, ttl time.Duration) error {
	return RedisClient.Set(Ctx, key, value, ttl).Err()
}

func GetToken(key string) (string, error) {
	val, err := RedisClient.Get(Ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	return val, err
}

func DeleteToken(key string) error {
	return RedisClient.Del(Ctx, key).Err()
}
