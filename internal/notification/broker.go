package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Broker fans in-app notifications out to the streams a user has open.
type Broker interface {
	Publish(ctx context.Context, userID uint, payload []byte) error
	// Subscribe returns the user's feed and a func that ends the subscription.
	Subscribe(ctx context.Context, userID uint) (<-chan []byte, func(), error)
}

func userChannel(userID uint) string {
	return fmt.Sprintf("notifications:user:%d", userID)
}

// ===========================
// 🟥 Redis pub/sub
// ===========================

type redisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) Broker {
	return &redisBroker{client: client}
}

func (b *redisBroker) Publish(ctx context.Context, userID uint, payload []byte) error {
	return errors.Wrap(b.client.Publish(ctx, userChannel(userID), payload).Err(), "publish notification")
}

func (b *redisBroker) Subscribe(ctx context.Context, userID uint) (<-chan []byte, func(), error) {
	sub := b.client.Subscribe(ctx, userChannel(userID))
	// Receive waits for the subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, errors.Wrap(err, "subscribe notifications")
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}, nil
}

// ===========================
// 🧠 In-process
// ===========================

// memoryBroker serves a single instance without Redis.
type memoryBroker struct {
	mu   sync.Mutex
	subs map[uint]map[chan []byte]struct{}
}

func NewMemoryBroker() Broker {
	return &memoryBroker{subs: make(map[uint]map[chan []byte]struct{})}
}

func (b *memoryBroker) Publish(_ context.Context, userID uint, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[userID] {
		select {
		case ch <- payload:
		default:
			// slow reader, drop
		}
	}
	return nil
}

func (b *memoryBroker) Subscribe(_ context.Context, userID uint) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan []byte]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}, nil
}

func (b *memoryBroker) subscribers(userID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}
