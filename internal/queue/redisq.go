package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	r "github.com/redis/go-redis/v9"
)

const (
	readyKey = "jobs:ready"
	delayKey = "jobs:delayed"
)

// RedisQ implements Queue on a Redis list plus a delay zset.
type RedisQ struct{ rdb *r.Client }

// NewRedis wraps an existing Redis client.
func NewRedis(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

// Enqueue implements Queue.
func (q *RedisQ) Enqueue(ctx context.Context, jobID string, runAt time.Time) error {
	if time.Until(runAt) > 0 {
		return q.rdb.ZAdd(ctx, delayKey, r.Z{Score: float64(runAt.Unix()), Member: jobID}).Err()
	}
	return q.rdb.LPush(ctx, readyKey, jobID).Err()
}

// Dequeue implements Queue.
func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if errors.Is(err, r.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", err
	}
	if len(res) == 2 {
		return res[1], nil
	}
	return "", ErrEmpty
}

// MoveDue implements Queue.
func (q *RedisQ) MoveDue(ctx context.Context, now time.Time, batch int64) error {
	ids, err := q.rdb.ZRangeByScore(ctx, delayKey, &r.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.Unix()),
		Offset: 0,
		Count:  batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}
	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, readyKey, id)
		pipe.ZRem(ctx, delayKey, id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

var _ Queue = (*RedisQ)(nil)
