package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bullion/compliance-service/internal/pkg/clock"
)

// AlertClaimer hands out short-lived exclusive claims so overlapping sweeps
// do not both send the same alert before either has recorded it.
type AlertClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisClaimer claims keys with SET NX so the guard holds across replicas
type RedisClaimer struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClaimer creates a claimer on top of a redis client
func NewRedisClaimer(client redis.UniversalClient, prefix string) *RedisClaimer {
	return &RedisClaimer{client: client, prefix: prefix}
}

func (r *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, "1", ttl).Result()
}

func (r *RedisClaimer) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// LocalClaimer is an in-process claimer for single replica deployments
type LocalClaimer struct {
	mu     sync.Mutex
	clock  clock.Clock
	claims map[string]time.Time
}

// NewLocalClaimer creates an in-process claimer
func NewLocalClaimer(clk clock.Clock) *LocalClaimer {
	return &LocalClaimer{clock: clk, claims: make(map[string]time.Time)}
}

func (l *LocalClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if expires, ok := l.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.claims[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalClaimer) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, key)
	return nil
}
