package sequence

import (
	"context"
	"fmt"
	"time"

	"expensehub/internal/core"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "expensehub:bill_seq:"

// RedisSequencer keeps one counter per token and organisation in Redis. A
// counter is seeded from the store's billed count the first time the pair
// is seen, then INCR hands out values atomically across server instances.
type RedisSequencer struct {
	rdb   *redis.Client
	store Store
}

var _ core.BillSequencer = (*RedisSequencer)(nil)

// NewRedisClient parses url and verifies the server answers a PING.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedisSequencer(rdb *redis.Client, store Store) *RedisSequencer {
	return &RedisSequencer{rdb: rdb, store: store}
}

func (s *RedisSequencer) Next(ctx context.Context, tokenID, orgID int64) (int64, error) {
	key := fmt.Sprintf("%s%d:%d", keyPrefix, tokenID, orgID)

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("check bill sequence key: %w", err)
	}
	if exists == 0 {
		billed, err := s.store.CountBilledExpenses(ctx, tokenID, orgID)
		if err != nil {
			return 0, err
		}
		if err := s.rdb.SetNX(ctx, key, billed, 0).Err(); err != nil {
			return 0, fmt.Errorf("seed bill sequence: %w", err)
		}
	}

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment bill sequence: %w", err)
	}
	return n, nil
}

// Ping backs the readiness probe.
func (s *RedisSequencer) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
