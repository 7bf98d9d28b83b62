// Package cache keeps portal session state in Redis, for deployments that
// run more than one portal instance.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "pconnect:state:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int

	// TTL expires a whole namespace after this long without writes. Zero
	// keeps namespaces until cleared.
	TTL time.Duration
}

// StateStore is a Redis-backed session state store. Each namespace is one
// hash.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect opens a client and checks it with a ping.
func Connect(ctx context.Context, opts Options) (*StateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	return NewStateStore(client, opts.TTL), nil
}

// NewStateStore wraps an existing client.
func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

// Get returns the value of key in namespace.
func (s *StateStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, keyPrefix+namespace, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value and extends the namespace TTL.
func (s *StateStore) Set(ctx context.Context, namespace, key, value string) error {
	hash := keyPrefix + namespace
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, hash, key, value)
		if s.ttl > 0 {
			p.Expire(ctx, hash, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key from namespace.
func (s *StateStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.client.HDel(ctx, keyPrefix+namespace, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Clear drops the whole namespace.
func (s *StateStore) Clear(ctx context.Context, namespace string) error {
	if err := s.client.Del(ctx, keyPrefix+namespace).Err(); err != nil {
		return fmt.Errorf("clearing %s: %w", namespace, err)
	}
	return nil
}

// Close closes the client.
func (s *StateStore) Close() error {
	return s.client.Close()
}
