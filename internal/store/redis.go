package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const changeChannelPrefix = "shortlink:changes:"

// RedisStore is a Store backed by Redis. Change notifications are fanned
// out over a pub/sub channel per key, so every subscribed process sees a
// Change for every write, including its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		// If URL parsing fails, try as simple host:port
		opt = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	old, err := r.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return err
	}

	return r.publish(ctx, Change{Key: key, Old: old, New: value})
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	old, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return err
	}

	return r.publish(ctx, Change{Key: key, Old: old, Removed: true})
}

func (r *RedisStore) Subscribe(key string, handler func(Change)) (cancel func()) {
	sub := r.client.Subscribe(context.Background(), changeChannelPrefix+key)

	go func() {
		for msg := range sub.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Printf("Warning: dropping malformed change notification on %s: %v", msg.Channel, err)
				continue
			}
			handler(change)
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			log.Printf("Warning: failed to close subscription for %s: %v", key, err)
		}
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	return r.client.Publish(ctx, changeChannelPrefix+change.Key, payload).Err()
}
