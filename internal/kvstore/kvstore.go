// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package kvstore is the TTL'd Redis-backed namespace for the token
// blocklist, refresh-token hashes, and in-flight task records
// (the "blocklist:", "refresh:", and "task:" prefixes of spec §6). It
// follows the teacher's go-redis client usage from
// internal/queue/redis_queue.go and internal/config/redis.go.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blocklistPrefix = "blocklist:"
	refreshPrefix   = "refresh:"
	taskPrefix      = "task:"
)

// ErrNotFound is returned when a key does not exist (or has expired).
var ErrNotFound = errors.New("kvstore: key not found")

// Store describes the TTL'd key-value operations the rest of the system
// depends on.
type Store interface {
	Blocklist(ctx context.Context, jti string, ttl time.Duration) error
	IsBlocklisted(ctx context.Context, jti string) (bool, error)

	SaveRefresh(ctx context.Context, userID, jti, tokenHash string, ttl time.Duration) error
	// ConsumeRefresh atomically validates and deletes a refresh record.
	// It returns ErrNotFound if absent (treat as theft) and a mismatch
	// error if the stored hash differs from tokenHash.
	ConsumeRefresh(ctx context.Context, userID, jti, tokenHash string) error

	SetTask(ctx context.Context, documentID string, value []byte, ttl time.Duration) error
	GetTask(ctx context.Context, documentID string) ([]byte, error)
}

// RedisStore implements Store over go-redis.
type RedisStore struct {
	client *redis.Client
}

// New constructs a RedisStore, pinging the connection up front the way
// the teacher's NewRedisQueue does.
func New(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kvstore: ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Blocklist marks a token jti as revoked for the remainder of its
// lifetime.
func (s *RedisStore) Blocklist(ctx context.Context, jti string, ttl time.Duration) error {
	if err := s.client.Set(ctx, blocklistPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: blocklist %s: %w", jti, err)
	}
	return nil
}

// IsBlocklisted checks membership; absence (including post-expiry) means
// not blocklisted.
func (s *RedisStore) IsBlocklisted(ctx context.Context, jti string) (bool, error) {
	_, err := s.client.Get(ctx, blocklistPrefix+jti).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kvstore: check blocklist %s: %w", jti, err)
	}
	return true, nil
}

func refreshKey(userID, jti string) string {
	return fmt.Sprintf("%s%s:%s", refreshPrefix, userID, jti)
}

// SaveRefresh stores the SHA-256 hash of a freshly issued refresh token.
func (s *RedisStore) SaveRefresh(ctx context.Context, userID, jti, tokenHash string, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshKey(userID, jti), tokenHash, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: save refresh %s/%s: %w", userID, jti, err)
	}
	return nil
}

// ConsumeRefresh implements single-use rotation: a Lua script performs
// the read-compare-delete atomically so two concurrent presentations of
// the same token can never both succeed, satisfying the replay invariant
// (spec §8 property 3).
var consumeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return -1
end
if stored ~= ARGV[1] then
	return -2
end
redis.call("DEL", KEYS[1])
return 1
`)

func (s *RedisStore) ConsumeRefresh(ctx context.Context, userID, jti, tokenHash string) error {
	key := refreshKey(userID, jti)
	res, err := consumeScript.Run(ctx, s.client, []string{key}, tokenHash).Int()
	if err != nil {
		return fmt.Errorf("kvstore: consume refresh %s/%s: %w", userID, jti, err)
	}
	switch res {
	case -1:
		return ErrNotFound
	case -2:
		return errors.New("kvstore: refresh token hash mismatch")
	case 1:
		return nil
	default:
		log.Printf("kvstore: unexpected consume refresh result %d", res)
		return fmt.Errorf("kvstore: unexpected result %d", res)
	}
}

// SetTask persists a task record snapshot (see internal/ingestor for the
// JSON shape) under the "task:" prefix with the configured TTL.
func (s *RedisStore) SetTask(ctx context.Context, documentID string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, taskPrefix+documentID, value, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: set task %s: %w", documentID, err)
	}
	return nil
}

// GetTask returns the last persisted snapshot for a task.
func (s *RedisStore) GetTask(ctx context.Context, documentID string) ([]byte, error) {
	val, err := s.client.Get(ctx, taskPrefix+documentID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get task %s: %w", documentID, err)
	}
	return val, nil
}
