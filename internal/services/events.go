package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tutor-backend/internal/models"
)

// TitleQueueKey is the Redis list holding pending chat-title jobs.
const TitleQueueKey = "queue:chat-title"

// UserChannel is the pub/sub channel carrying one user's live updates.
func UserChannel(username string) string {
	return fmt.Sprintf("user_updates:%s", username)
}

// RedisPublisher fans events out to websocket hubs via Redis pub/sub.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redisClient *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redisClient}
}

func (p *RedisPublisher) Publish(ctx context.Context, username string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, UserChannel(username), string(data)).Err()
}

// RedisTitleQueue pushes title jobs for the worker pool.
type RedisTitleQueue struct {
	redis *redis.Client
}

func NewRedisTitleQueue(redisClient *redis.Client) *RedisTitleQueue {
	return &RedisTitleQueue{redis: redisClient}
}

func (q *RedisTitleQueue) EnqueueTitle(ctx context.Context, job *models.TitleJob) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, TitleQueueKey, string(jobBytes)).Err()
}
