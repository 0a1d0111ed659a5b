package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed response cache keyed by (provider, prompt). A
// cache miss or an unreachable Redis just means the provider gets invoked;
// errors are logged, never surfaced.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func key(providerID, promptText string) string {
	sum := sha256.Sum256([]byte(providerID + "\x00" + promptText))
	return "textwand:response:" + hex.EncodeToString(sum[:])
}

// Get implements invoke.Cache.
func (s *Store) Get(ctx context.Context, providerID, promptText string) (string, bool) {
	val, err := s.client.Get(ctx, key(providerID, promptText)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("cache: get: %v", err)
		return "", false
	}
	return val, true
}

// Put implements invoke.Cache.
func (s *Store) Put(ctx context.Context, providerID, promptText, response string) {
	if err := s.client.Set(ctx, key(providerID, promptText), response, s.ttl).Err(); err != nil {
		log.Printf("cache: set: %v", err)
	}
}
