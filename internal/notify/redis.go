package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openmohaa/match-server/internal/models"
)

// Channel is the pub/sub channel notifications are published on.
const Channel = "matchd:notifications"

// RoundKey holds the mirrored round snapshot in SharedState.
const RoundKey = "round"

// RedisClient is the subset of *redis.Client used here.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSink publishes notifications as JSON and mirrors the round snapshot
// into shared state.
type RedisSink struct {
	client RedisClient
	state  *SharedState
}

func NewRedisSink(client RedisClient, state *SharedState) *RedisSink {
	return &RedisSink{client: client, state: state}
}

func (s *RedisSink) Deliver(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if s.state == nil {
		return nil
	}
	switch p := n.Payload.(type) {
	case models.RoundSnapshot:
		return s.state.Set(ctx, RoundKey, p)
	}
	if n.Type == models.NotifySessionEnded {
		return s.state.Set(ctx, RoundKey, models.RoundSnapshot{State: models.RoundNone})
	}
	return nil
}

// SharedState reads and writes JSON values owned by the shared Redis
// instance. Get always fetches and Set always pushes; nothing is cached.
type SharedState struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

func NewSharedState(client RedisClient, prefix string, ttl time.Duration) *SharedState {
	if prefix == "" {
		prefix = "matchd:state:"
	}
	return &SharedState{client: client, prefix: prefix, ttl: ttl}
}

// Get decodes the value at key into dest. It reports false when the key is unset.
func (s *SharedState) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set encodes value and stores it at key.
func (s *SharedState) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
