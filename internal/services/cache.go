package services

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// CaptionCache stores extracted transcripts so repeated submissions of the
// same video skip the caption chain. Implementations are best-effort: a cache
// outage degrades to a re-fetch, never to a failed job.
type CaptionCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

type RedisCaptionCache struct {
	rdb *redis.Client
}

func NewRedisCaptionCache(rdb *redis.Client) *RedisCaptionCache {
	return &RedisCaptionCache{rdb: rdb}
}

func (c *RedisCaptionCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("caption cache get failed for %s: %v", key, err)
		return "", false
	}
	return val, val != ""
}

func (c *RedisCaptionCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.rdb == nil || value == "" {
		return
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("caption cache set failed for %s: %v", key, err)
	}
}
