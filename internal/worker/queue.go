package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueue pushes JSON payloads onto Redis lists consumed by the workers.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Push appends v to queue.
func (q *RedisQueue) Push(ctx context.Context, queue string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", queue, err)
	}
	return q.rdb.RPush(ctx, queue, raw).Err()
}

// Depths returns the length of each queue in one round trip.
func (q *RedisQueue) Depths(ctx context.Context, queues ...string) (map[string]int64, error) {
	pipe := q.rdb.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(queues))
	for _, name := range queues {
		cmds[name] = pipe.LLen(ctx, name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(queues))
	for name, cmd := range cmds {
		out[name] = cmd.Val()
	}
	return out, nil
}
