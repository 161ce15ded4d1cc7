package clients

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/orchestrator"
)

// redisPinger is the interface used by RedisClient for health probing.
// It is implemented by the real go-redis client and by test doubles.
type redisPinger interface {
	PingResult(ctx context.Context) (string, error)
	Close() error
}

// realRedisPinger adapts a *redis.Client to redisPinger so tests need not
// construct a *redis.StatusCmd.
type realRedisPinger struct {
	client *redis.Client
}

func (r *realRedisPinger) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisPinger) Close() error {
	return r.client.Close()
}

// RedisClient probes a Redis-compatible cache with a circuit breaker.
type RedisClient struct {
	name     string
	addr     string
	password string
	db       int
	cb       *gobreaker.CircuitBreaker
	pinger   redisPinger
}

// NewRedisClient creates a RedisClient for a probes entry of kind redis.
// The real go-redis client is built lazily on each Probe call.
func NewRedisClient(p config.ProbeConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		name:     p.Name,
		addr:     p.Addr,
		password: p.Password,
		db:       p.DB,
		cb:       cb,
	}
}

// Probe sends PING and expects PONG.
func (c *RedisClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guarded(c.name, c.cb, func() error {
		p := c.pinger
		if p == nil {
			p = &realRedisPinger{
				client: redis.NewClient(&redis.Options{
					Addr:     c.addr,
					Password: c.password,
					DB:       c.db,
				}),
			}
			defer p.Close() //nolint:errcheck
		}

		val, err := p.PingResult(ctx)
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil
	})
}
