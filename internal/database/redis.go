package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients holds the two connections this service needs. Blocking queue
// reads (BLPOP) and pub/sub subscriptions each monopolize a connection, so
// they never share one.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue, err := dial(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("redis queue client: %w", err)
	}
	pubsub, err := dial(ctx, opt)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("redis pubsub client: %w", err)
	}

	return &RedisClients{Queue: queue, PubSub: pubsub}, nil
}

func dial(ctx context.Context, opt *redis.Options) (*redis.Client, error) {
	o := *opt
	client := redis.NewClient(&o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
