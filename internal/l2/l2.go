// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l2.go -- Redis tier for user-state records: MsgPack-encoded values under
// "<prefix>:<kind>:<id>" keys, the ErrMiss sentinel that drives tier
// fallthrough, and the pub/sub hooks used for peer cache invalidation.

// Package l2 provides the Redis tier.
package l2

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/openedx/edx-platform-sub027/internal/codec"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("l2: miss")

// Options configures a Store.
type Options struct {
	Client    redis.UniversalClient
	Codec     codec.Codec // defaults to codec.MsgPack
	KeyPrefix string      // defaults to "videostate"
}

// Store is the Redis tier.
type Store struct {
	client    redis.UniversalClient
	codec     codec.Codec
	keyPrefix string
	hits      atomic.Int64
	misses    atomic.Int64
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.Codec == nil {
		opts.Codec = codec.MsgPack{}
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "videostate"
	}
	return &Store{client: opts.Client, codec: opts.Codec, keyPrefix: opts.KeyPrefix}
}

// Key returns the Redis key for a record of kind with id.
func (s *Store) Key(kind, id string) string {
	return s.keyPrefix + ":" + kind + ":" + id
}

// Set stores value. A ttl <= 0 stores without expiry.
func (s *Store) Set(ctx context.Context, kind, id string, value any, ttl time.Duration) error {
	b, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("l2 marshal: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	k := s.Key(kind, id)
	if err := s.client.Set(ctx, k, b, ttl).Err(); err != nil {
		return fmt.Errorf("l2 set %s: %w", k, err)
	}
	return nil
}

// Get decodes the stored value into dest, or returns ErrMiss.
func (s *Store) Get(ctx context.Context, kind, id string, dest any) error {
	k := s.Key(kind, id)
	b, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		s.misses.Add(1)
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("l2 get %s: %w", k, err)
	}
	if err := s.codec.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("l2 unmarshal %s: %w", k, err)
	}
	s.hits.Add(1)
	return nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, kind, id string) error {
	k := s.Key(kind, id)
	if err := s.client.Del(ctx, k).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("l2 delete %s: %w", k, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a record; -1 means no expiry.
func (s *Store) TTL(ctx context.Context, kind, id string) (time.Duration, error) {
	return s.client.TTL(ctx, s.Key(kind, id)).Result()
}

// Publish sends payload on channel.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription on channel.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.client.Subscribe(ctx, channel)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats holds hit/miss counts.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}
