package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "rollup"
	// BumpChannel carries version bumps between processes sharing a Redis.
	BumpChannel = "rollup.bump"
)

// Redis stores JSON payloads under versioned keys. InvalidateAll bumps the
// version instead of scanning, which orphans every previous key until its
// TTL lapses.
type Redis struct {
	client  *redis.Client
	prefix  string
	channel string
}

// NewRedis constructs a Redis store. Keys are written under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix, channel: BumpChannel}
}

func (r *Redis) versionKey() string {
	return r.prefix + ":version"
}

// Version returns the current cache version, initialising when missing.
func (r *Redis) Version(ctx context.Context) (int64, error) {
	ver, err := r.client.Get(ctx, r.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := r.client.SetNX(ctx, r.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return r.client.Get(ctx, r.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := r.client.Set(ctx, r.versionKey(), ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (r *Redis) buildKey(ctx context.Context, key string) (string, error) {
	ver, err := r.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("cache: version: %w", err)
	}
	return fmt.Sprintf("%s:%s:%d", r.prefix, key, ver), nil
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, key string, dest any) (bool, error) {
	full, err := r.buildKey(ctx, key)
	if err != nil {
		return false, err
	}
	payload, err := r.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		// A payload from an older shape is treated as absent.
		return false, nil
	}
	return true, nil
}

// Save implements Store.
func (r *Redis) Save(ctx context.Context, key string, value any, ttl time.Duration) error {
	full, err := r.buildKey(ctx, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, full, raw, ttl).Err()
}

// Invalidate implements Store.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	full, err := r.buildKey(ctx, key)
	if err != nil {
		return err
	}
	return r.client.Del(ctx, full).Err()
}

// InvalidateAll increments the version and publishes it.
func (r *Redis) InvalidateAll(ctx context.Context) error {
	if _, err := r.Version(ctx); err != nil {
		return err
	}
	ver, err := r.client.Incr(ctx, r.versionKey()).Result()
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other writers
// until ctx is done. Passing an empty channel uses BumpChannel.
func (r *Redis) ListenForInvalidation(ctx context.Context, channel string, onBump func(version int64)) error {
	if channel == "" {
		channel = r.channel
	}
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: subscribe %s: %w", channel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				current, err := r.Version(ctx)
				if err == nil && ver > current {
					_ = r.client.Set(ctx, r.versionKey(), ver, 0).Err()
				}
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}
