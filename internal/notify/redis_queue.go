package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisQueue pushes messages onto a Redis list for an out-of-process sender.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisQueue returns a queue transport writing to key.
func NewRedisQueue(client *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{client: client, key: key, logger: logger}
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		q.logger.Warn("notification enqueue failed", zap.String("template", msg.TemplateID), zap.Error(err))
		return err
	}
	return nil
}

// Pop blocks up to timeout for the oldest queued message. It returns nil, nil on timeout.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("decode queued notification: %w", err)
	}
	return &msg, nil
}
