package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPopTimeout is how long Pop blocks before reporting an empty queue.
const DefaultPopTimeout = 5 * time.Second

type RedisQueue struct {
	rdb        redis.Cmdable
	queueName  string
	popTimeout time.Duration
}

func NewRedisQueue(rdb redis.Cmdable, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName, popTimeout: DefaultPopTimeout}
}

// Push enqueues a job ID (LPUSH). Consumers take from the other end.
func (q *RedisQueue) Push(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueName, jobID).Err()
}

// Pop blocks up to the pop timeout for a job ID (BRPOP). An empty string
// with a nil error means the queue stayed empty.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Len returns the number of waiting job IDs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
