package httpmiddleware

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore is a sliding window log kept in one Redis sorted set per key,
// shared by every API replica.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	max    int
	period time.Duration
}

// NewRedisStore creates a RedisStore allowing max requests per period.
func NewRedisStore(client redis.UniversalClient, prefix string, max int, period time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, max: max, period: period}
}

// Allow implements Store. Rejected requests are recorded too, so a client
// hammering the API stays limited.
func (s *RedisStore) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	redisKey := s.prefix + key
	cutoff := now.Add(-s.period).UnixNano()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, s.period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrap(err, "rate limit pipeline")
	}

	n := int(card.Val())
	return Decision{
		Allowed:   n <= s.max,
		Remaining: max(s.max-n, 0),
		ResetAt:   now.Add(s.period),
	}, nil
}
