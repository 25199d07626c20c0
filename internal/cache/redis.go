// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// topicPoolKey stores the fetched topic pool so restarts within the pool's
// TTL reuse it instead of hammering the upstream pageviews API.
const topicPoolKey = "kwizniac:topic_pool"

// Client wraps the Redis connection used for the topic-pool cache. A nil
// *Client is valid and turns every operation into a cache miss, so the
// server runs fine without Redis configured.
type Client struct {
	rdb *redis.Client
}

// Connect initializes the Redis client from environment variables:
//   - REDIS_ADDR (required; returns nil client when unset)
//   - REDIS_DB (optional, default 0)
func Connect() (*Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// GetTopicPool returns the cached topic pool, or nil on a miss.
func (c *Client) GetTopicPool(ctx context.Context) ([]string, error) {
	if c == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, topicPoolKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read topic pool from Redis: %w", err)
	}
	var topics []string
	if err := json.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached topic pool: %w", err)
	}
	return topics, nil
}

// SetTopicPool stores the topic pool with the given TTL.
func (c *Client) SetTopicPool(ctx context.Context, topics []string, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topic pool: %w", err)
	}
	if err := c.rdb.Set(ctx, topicPoolKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write topic pool to Redis: %w", err)
	}
	return nil
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
